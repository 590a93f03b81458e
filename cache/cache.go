// Package cache stores finished predictions keyed by the input recording
// and the artifacts that scored it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no entry exists for a key.
var ErrNotFound = errors.New("cache: not found")

// Entry is one cached prediction.
type Entry struct {
	Label         string    `json:"label"`
	ClassID       int       `json:"class_id"`
	Probabilities []float64 `json:"probabilities,omitempty"`
	SchemaVersion string    `json:"schema_version"`
	Fingerprint   string    `json:"fingerprint"`
	CreatedAt     time.Time `json:"created_at"`
}

// Cache is a prediction store. Implementations must be safe for concurrent
// use.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, entry *Entry) error
	Close() error
}

// Key derives the cache key of a recording. settings is a digest of the
// stage configuration that turns input into a feature vector. Any change to
// the feature schema, the artifacts or those settings yields a different key.
func Key(input []byte, schemaVersion, fingerprint, settings string) string {
	h := sha256.New()
	h.Write([]byte(schemaVersion))
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(settings))
	h.Write([]byte{0})
	h.Write(input)
	return hex.EncodeToString(h.Sum(nil))
}
