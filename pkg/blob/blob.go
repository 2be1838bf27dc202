// Package blob stores version payloads outside the metadata database.
//
// The drive stores keep entry metadata, permissions and version records
// themselves; the bytes of each version can be delegated to a blob
// store so large payloads do not bloat the metadata database. Keys are
// version IDs, which are UUIDs and therefore safe for every backend.
//
// Three backends are provided: memory (tests), fs (single-node
// persistence) and s3 (durable object storage, including S3-compatible
// services behind a custom endpoint).
package blob

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested payload does not exist.
// Implementations wrap it with the offending key.
var ErrNotFound = errors.New("blob not found")

// Store is a flat key-to-bytes payload store.
//
// Put overwrites silently; version IDs are never reused, so a repeated
// Put for the same key only happens on a retried write of identical
// bytes. Delete is idempotent: deleting a missing key is not an error,
// which keeps cascading cleanups simple.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
