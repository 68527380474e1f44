// Package storage defines the document store the cache and run report are
// persisted through. Backends live in sub-packages: local filesystem, Google
// Cloud Storage, Postgres, and memory.
package storage

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Read when the named document has never been written.
var ErrNotExist = errors.New("document does not exist")

// Provider reads and replaces whole named documents.
type Provider interface {
	// Read returns the full document or an error wrapping ErrNotExist.
	Read(ctx context.Context, name string) ([]byte, error)
	// Write replaces the document. A failed write must leave the previous
	// version readable.
	Write(ctx context.Context, name string, data []byte) error
}
