package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"stickerserver/internal/packs"
	"stickerserver/pkg/objectstore"
)

func TestCheck(t *testing.T) {
	store := objectstore.NewMemory()
	store.Put("good/a.json", []byte(`{"stickers":[{"body":"x","url":"mxc://a/b","info":{"w":1,"h":1,"size":1,"mimetype":"image/png"},"net.maunium.telegram.sticker":{"id":"1"}}]}`))
	store.Put("bad/a.json", []byte(`not json`))
	repo := packs.NewRepo(store, "")

	assert.NoError(t, check(context.Background(), repo, "good"))
	assert.NoError(t, check(context.Background(), repo, "empty"))

	err := check(context.Background(), repo, "bad")
	assert.True(t, errors.Is(err, packs.ErrManifestParse))
}
