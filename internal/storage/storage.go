// Package storage defines the object store contract and an in-memory
// implementation used for local runs and tests.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// ObjectStore holds file bytes by key.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Presign returns a URL that retrieves key until ttl elapses.
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
}
