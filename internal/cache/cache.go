// Package cache stores generated artifacts under content fingerprints.
// Entries are write-once: the first artifact stored for a key wins and later
// writes for the same key are ignored.
package cache

import (
	"context"
	"errors"
	"time"
)

// Entry is a stored artifact.
type Entry struct {
	Key      string    `json:"key"`
	Artifact []byte    `json:"artifact"`
	StoredAt time.Time `json:"stored_at"`
}

// Store is implemented by every backend. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, artifact []byte) error
	Delete(ctx context.Context, key string) error
}

var (
	ErrEmptyKey    = errors.New("cache: key is required")
	ErrUnsupported = errors.New("cache: unsupported backend or eviction policy")
)

var now = time.Now

func newEntry(key string, artifact []byte) Entry {
	return Entry{Key: key, Artifact: append([]byte(nil), artifact...), StoredAt: now().UTC()}
}

func copyEntry(e Entry) *Entry {
	e.Artifact = append([]byte(nil), e.Artifact...)
	return &e
}
