package models

import (
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultPackName is the display name every catalog carries. Packs do not
// expose a name of their own yet.
const DefaultPackName = "Sticker Pack"

// UsageSticker is the only usage tag emitted for catalog images.
const UsageSticker = "sticker"

// ImageInfo is passed through from the manifest unchanged.
type ImageInfo struct {
	W        int    `json:"w"`
	H        int    `json:"h"`
	Size     int    `json:"size"`
	MimeType string `json:"mimetype"`
}

// Manifest is one stickerpicker pack JSON document as stored in the bucket.
type Manifest struct {
	Title    string    `json:"title,omitempty"`
	ID       string    `json:"id,omitempty"`
	Stickers []Sticker `json:"stickers"`
}

// Validate rejects manifests that decode without error but cannot be merged:
// a missing or null sticker list, or a sticker without an external ID.
func (m *Manifest) Validate() error {
	if m.Stickers == nil {
		return errors.New("missing stickers")
	}
	for i, s := range m.Stickers {
		if s.Telegram.ID == "" {
			return fmt.Errorf("sticker %d: missing net.maunium.telegram.sticker.id", i)
		}
	}
	return nil
}

type Sticker struct {
	Body     string          `json:"body"`
	URL      string          `json:"url"`
	Info     ImageInfo       `json:"info"`
	Telegram TelegramSticker `json:"net.maunium.telegram.sticker"`
}

// TelegramSticker carries the external sticker ID used as the merge key.
type TelegramSticker struct {
	ID   string `json:"id"`
	Pack struct {
		ID        string `json:"id,omitempty"`
		ShortName string `json:"short_name,omitempty"`
	} `json:"pack"`
}

// PackIndex is the body of GET /:profile/packs/index.json.
type PackIndex struct {
	Packs         []string `json:"packs"`
	HomeserverURL string   `json:"homeserver_url"`
}

// Image is one catalog entry in im.ponies.user_emotes format.
type Image struct {
	Body  string    `json:"body"`
	Info  ImageInfo `json:"info"`
	URL   string    `json:"url"`
	Usage []string  `json:"usage"`
}

type Pack struct {
	DisplayName string `json:"display_name"`
}

// Catalog is the merged emote catalog for one profile. Images keeps the order
// in which IDs were first seen; it marshals as a JSON object in that order.
type Catalog struct {
	Images *orderedmap.OrderedMap[string, Image] `json:"images"`
	Pack   Pack                                  `json:"pack"`
}

func NewCatalog() *Catalog {
	return &Catalog{
		Images: orderedmap.New[string, Image](),
		Pack:   Pack{DisplayName: DefaultPackName},
	}
}

// Add inserts the sticker under its external ID. A repeated ID replaces the
// stored value in place.
func (c *Catalog) Add(s Sticker) {
	c.Images.Set(s.Telegram.ID, Image{
		Body:  s.Body,
		Info:  s.Info,
		URL:   s.URL,
		Usage: []string{UsageSticker},
	})
}

// IDs returns the image IDs in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, c.Images.Len())
	for pair := c.Images.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, pair.Key)
	}
	return ids
}
