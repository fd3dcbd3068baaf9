package packs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"stickerserver/pkg/models"
	"stickerserver/pkg/objectstore"
)

var (
	ErrStoreList     = errors.New("store list failed")
	ErrStoreFetch    = errors.New("store fetch failed")
	ErrManifestParse = errors.New("manifest parse failed")
)

const manifestSuffix = ".json"

// Repo builds pack indexes and emote catalogs from the object store. It keeps
// no state between calls; every call lists and fetches afresh.
type Repo struct {
	Store      objectstore.Store
	Homeserver string
}

func NewRepo(store objectstore.Store, homeserver string) *Repo {
	return &Repo{Store: store, Homeserver: homeserver}
}

// ListManifests returns the manifest keys stored directly under the profile's
// prefix, sorted byte-wise. Nested prefixes are not descended into.
func (r *Repo) ListManifests(ctx context.Context, profile string) ([]string, error) {
	objs, err := r.Store.List(ctx, "/"+profile+"/", "/")
	if err != nil {
		return nil, fmt.Errorf("%w: profile %q: %w", ErrStoreList, profile, err)
	}

	keys := make([]string, 0, len(objs))
	for _, o := range objs {
		if o.IsPrefix || !strings.HasSuffix(o.Key, manifestSuffix) {
			continue
		}
		keys = append(keys, o.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *Repo) Index(ctx context.Context, profile string) (*models.PackIndex, error) {
	keys, err := r.ListManifests(ctx, profile)
	if err != nil {
		return nil, err
	}
	return &models.PackIndex{Packs: keys, HomeserverURL: r.Homeserver}, nil
}

// UserEmotes merges every manifest of the profile into one catalog. Manifests
// are applied in index order, so a later pack's sticker replaces an earlier
// one with the same ID while keeping the earlier position. A single failed
// fetch or parse fails the whole catalog.
func (r *Repo) UserEmotes(ctx context.Context, profile string) (*models.Catalog, error) {
	keys, err := r.ListManifests(ctx, profile)
	if err != nil {
		return nil, err
	}

	catalog := models.NewCatalog()
	for _, key := range keys {
		manifest, err := r.fetchManifest(ctx, key)
		if err != nil {
			return nil, err
		}
		for _, s := range manifest.Stickers {
			catalog.Add(s)
		}
	}

	log.WithFields(log.Fields{
		"component": "packs",
		"profile":   profile,
		"manifests": len(keys),
		"images":    catalog.Images.Len(),
	}).Debug("built emote catalog")
	return catalog, nil
}

func (r *Repo) fetchManifest(ctx context.Context, key string) (*models.Manifest, error) {
	obj, err := r.Store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStoreFetch, key, err)
	}
	if !obj.OK() {
		return nil, fmt.Errorf("%w: %s: store returned status %d", ErrStoreFetch, key, obj.StatusCode)
	}

	var m models.Manifest
	if err := json.Unmarshal(obj.Body, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrManifestParse, key, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrManifestParse, key, err)
	}
	return &m, nil
}
