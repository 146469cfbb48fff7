// Package kv defines the key-value persistence contract the snapshot
// synchronizer writes through. Backends are swappable (in-memory, embedded
// pebble, redis, postgres) without touching any task-tracking logic.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested key does not exist in the store.
var ErrNotFound = errors.New("key not found")

// Store is a minimal durable key-value interface. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the backend.
	Close() error
}
