package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrConfigMissing is returned when a required environment variable is unset.
var ErrConfigMissing = errors.New("missing required configuration")

const (
	DefaultListenAddr      = ":8080"
	DefaultRepoURL         = "https://github.com/maunium/stickerpicker"
	DefaultBranch          = "master"
	DefaultRefreshInterval = time.Hour
	DefaultRefreshTimeout  = 5 * time.Minute
	DefaultSnapshotGrace   = 2 * time.Minute
	DefaultStoreTimeout    = 30 * time.Second
)

type StoreConfig struct {
	Server  string // PACKS_S3_SERVER, e.g. https://s3.example.org
	Bucket  string // PACKS_S3_BUCKET
	Timeout time.Duration
}

type MirrorConfig struct {
	RepoURL         string
	Branch          string
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
	SnapshotGrace   time.Duration
}

type Config struct {
	ListenAddr string
	Homeserver string
	LogLevel   string
	Store      StoreConfig
	Mirror     MirrorConfig
}

// LoadConfig reads the process configuration from the environment. Every
// missing required variable is reported in a single error wrapping
// ErrConfigMissing.
func LoadConfig() (Config, error) {
	return loadConfig(os.Getenv)
}

func loadConfig(getenv func(string) string) (Config, error) {
	var missing []string
	required := func(key string) string {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		Homeserver: required("HOMESERVER"),
		ListenAddr: stringOr(getenv("LISTEN_ADDR"), DefaultListenAddr),
		LogLevel:   stringOr(getenv("LOG_LEVEL"), "info"),
		Store: StoreConfig{
			Server: required("PACKS_S3_SERVER"),
			Bucket: required("PACKS_S3_BUCKET"),
		},
		Mirror: MirrorConfig{
			RepoURL: stringOr(getenv("MIRROR_REPO_URL"), DefaultRepoURL),
			Branch:  stringOr(getenv("MIRROR_BRANCH"), DefaultBranch),
		},
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s must be set", ErrConfigMissing, strings.Join(missing, ", "))
	}

	var err error
	if cfg.Store.Timeout, err = durationOr(getenv, "STORE_TIMEOUT", DefaultStoreTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Mirror.RefreshInterval, err = durationOr(getenv, "MIRROR_REFRESH_INTERVAL", DefaultRefreshInterval); err != nil {
		return Config{}, err
	}
	if cfg.Mirror.RefreshTimeout, err = durationOr(getenv, "MIRROR_REFRESH_TIMEOUT", DefaultRefreshTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Mirror.SnapshotGrace, err = durationOr(getenv, "MIRROR_SNAPSHOT_GRACE", DefaultSnapshotGrace); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func stringOr(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func durationOr(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return d, nil
}
