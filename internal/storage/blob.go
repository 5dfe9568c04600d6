// Package storage defines the blob store contract used for raw page archives.
// Implementations live in the local, gcs and memory subpackages.
package storage

import (
	"context"
	"io"
)

// BlobStore writes immutable objects by path.
type BlobStore interface {
	// PutObject uploads data to path and returns a URI for the stored object.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// Exists reports whether an object is already stored at path.
	Exists(ctx context.Context, path string) (bool, error)
}
