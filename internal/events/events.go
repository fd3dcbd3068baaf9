package events

import "time"

const MirrorUpdated = "mirror.updated"

// MirrorEvent announces that a new web UI commit is being served.
type MirrorEvent struct {
	Type     string    `json:"type"`
	Commit   string    `json:"commit"`
	Previous string    `json:"previous,omitempty"`
	At       time.Time `json:"at"`
}
