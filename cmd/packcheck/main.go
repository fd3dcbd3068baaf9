package main

import (
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"stickerserver/internal/packs"
	"stickerserver/pkg/objectstore"
	"stickerserver/pkg/utils"
)

// packcheck builds the emote catalog of each given profile straight from the
// bucket and reports the first manifest that would make the server fail.
func main() {
	server := flag.String("server", os.Getenv("PACKS_S3_SERVER"), "object store endpoint")
	bucket := flag.String("bucket", os.Getenv("PACKS_S3_BUCKET"), "bucket name")
	timeout := flag.Duration("timeout", time.Minute, "overall timeout")
	flag.Parse()

	if *server == "" || *bucket == "" || flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: packcheck --server URL --bucket NAME PROFILE...")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store := objectstore.MustOpen(utils.StoreConfig{Server: *server, Bucket: *bucket, Timeout: *timeout})
	repo := packs.NewRepo(store, "")

	failed := 0
	for _, profile := range flag.Args() {
		if err := check(ctx, repo, profile); err != nil {
			log.WithError(err).WithField("profile", profile).Error("profile broken")
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func check(ctx context.Context, repo *packs.Repo, profile string) error {
	keys, err := repo.ListManifests(ctx, profile)
	if err != nil {
		return err
	}
	catalog, err := repo.UserEmotes(ctx, profile)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"profile":   profile,
		"manifests": len(keys),
		"images":    catalog.Images.Len(),
	}).Info("profile ok")
	return nil
}
