// Package objectstore is the gateway to the bucket holding sticker pack
// manifests and their media.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"

	"stickerserver/pkg/utils"
)

// ErrUnsupportedDelimiter is returned by List for any delimiter other than ""
// (recursive) and "/" (one level).
var ErrUnsupportedDelimiter = errors.New("unsupported list delimiter")

// ObjectInfo describes one listed key. Keys of grouped "directories" end in
// the delimiter and have IsPrefix set.
type ObjectInfo struct {
	Key      string
	Size     int64
	IsPrefix bool
}

// Object is a fetched object. StatusCode is the store's HTTP status and is
// passed through to clients as-is; Body is empty for non-2xx responses.
type Object struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func (o Object) OK() bool {
	return o.StatusCode >= 200 && o.StatusCode < 300
}

// Store is the subset of object store operations the server needs.
type Store interface {
	// List returns every key under prefix, paging transparently.
	List(ctx context.Context, prefix, delimiter string) ([]ObjectInfo, error)
	// Get fetches key. A store-reported failure such as 404 is returned as
	// an Object with that status and a nil error; err is reserved for
	// transport failures.
	Get(ctx context.Context, key string) (Object, error)
}

// Bucket is a Store backed by an S3-compatible public bucket using
// path-style addressing.
type Bucket struct {
	client  *minio.Client
	name    string
	timeout time.Duration
}

var _ Store = (*Bucket)(nil)

func Open(cfg utils.StoreConfig) (*Bucket, error) {
	endpoint, secure, err := parseEndpoint(cfg.Server)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		// empty static credentials make minio send anonymous requests
		Creds:        credentials.NewStaticV4("", "", ""),
		Secure:       secure,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("open bucket client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = utils.DefaultStoreTimeout
	}
	return &Bucket{client: client, name: cfg.Bucket, timeout: timeout}, nil
}

func MustOpen(cfg utils.StoreConfig) *Bucket {
	b, err := Open(cfg)
	if err != nil {
		log.Fatalf("failed to open bucket: %v", err)
	}
	return b
}

func (b *Bucket) List(ctx context.Context, prefix, delimiter string) ([]ObjectInfo, error) {
	var recursive bool
	switch delimiter {
	case "":
		recursive = true
	case "/":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDelimiter, delimiter)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var out []ObjectInfo
	for obj := range b.client.ListObjects(ctx, b.name, minio.ListObjectsOptions{
		Prefix:    normalizeKey(prefix),
		Recursive: recursive,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, obj.Err)
		}
		out = append(out, ObjectInfo{
			Key:      obj.Key,
			Size:     obj.Size,
			IsPrefix: !recursive && strings.HasSuffix(obj.Key, "/"),
		})
	}
	return out, nil
}

func (b *Bucket) Get(ctx context.Context, key string) (Object, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	obj, err := b.client.GetObject(ctx, b.name, normalizeKey(key), minio.GetObjectOptions{})
	if err != nil {
		return storeFailure(key, err)
	}
	defer obj.Close()

	body, err := io.ReadAll(obj)
	if err != nil {
		return storeFailure(key, err)
	}

	out := Object{StatusCode: http.StatusOK, Body: body}
	if info, err := obj.Stat(); err == nil {
		out.ContentType = info.ContentType
	}
	return out, nil
}

// storeFailure splits errors into store responses (returned as a status) and
// transport errors.
func storeFailure(key string, err error) (Object, error) {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode != 0 {
		return Object{StatusCode: resp.StatusCode}, nil
	}
	return Object{}, fmt.Errorf("get %q: %w", key, err)
}

// normalizeKey drops the leading slash; "/alice/" and "alice/" address the
// same objects in a path-style URL.
func normalizeKey(key string) string {
	return strings.TrimPrefix(key, "/")
}

func parseEndpoint(server string) (host string, secure bool, err error) {
	if !strings.Contains(server, "://") {
		return server, true, nil
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", false, fmt.Errorf("parse store endpoint %q: %w", server, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("store endpoint %q has no host", server)
	}
	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("store endpoint %q: unsupported scheme %q", server, u.Scheme)
	}
}
