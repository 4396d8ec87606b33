// Package store provides the durable key-value storage consumed by room
// actors. A room persists two entries: its full document snapshot and its
// optional passcode. Backends must be read-after-write consistent for a
// single caller and durable across process restarts (MemoryStore being
// the deliberate exception, for tests and throwaway deployments).
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("store: key not found")

// Store is the persistence backend interface. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get retrieves the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, overwriting any existing value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the store.
	Close() error
}
