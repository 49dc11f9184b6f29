package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DetailResult is the raw body of one detail link, tagged with the URL it
// came from. Results are ordered by discovery: page order, then in-page order.
type DetailResult struct {
	// URL is the absolute URL the body was fetched from.
	URL string `json:"url"`

	// SourcePage is the listing page the detail link was found on.
	SourcePage string `json:"source_page"`

	// Key is the identifier extracted from the body.
	// Empty when identification is disabled.
	Key string `json:"key,omitempty"`

	// Body is the raw response body.
	Body []byte `json:"-"` // Excluded from JSON to keep reports small

	// Size is len(Body), kept for reports that omit the body.
	Size int `json:"size"`

	// Hash is the SHA-256 hash of Body.
	Hash string `json:"hash"`

	// FetchedAt is when the body was received.
	FetchedAt time.Time `json:"fetched_at"`
}

// ComputeHash sets Hash and Size from Body.
// This should be called after setting the Body field.
func (d *DetailResult) ComputeHash() {
	d.Size = len(d.Body)
	if len(d.Body) == 0 {
		d.Hash = ""
		return
	}

	hash := sha256.Sum256(d.Body)
	d.Hash = hex.EncodeToString(hash[:])
}

// Name returns the identifier when present, otherwise the URL.
func (d *DetailResult) Name() string {
	if d.Key != "" {
		return d.Key
	}
	return d.URL
}
