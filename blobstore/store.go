// Package blobstore abstracts access to the immutable shard blobs a
// run is made of. Shards may live on the local filesystem or in
// S3-compatible object storage; the indexing core only ever sees the
// BlobStore and Blob interfaces.
package blobstore

import (
	"context"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore is an abstraction for accessing immutable shard blobs.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// List returns the names of all blobs with the given prefix,
	// in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// WritableBlobStore extends BlobStore with write operations. The
// indexing core never writes; this exists for shard writers and tests.
type WritableBlobStore interface {
	BlobStore
	// Put writes a blob atomically, replacing any existing blob.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob.
	Delete(ctx context.Context, name string) error
}

// Blob is a read-only handle to a shard blob.
type Blob interface {
	// ReadAt reads len(p) bytes starting at offset off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// Size returns the size of the blob in bytes.
	Size() int64
	// Close releases the handle.
	Close() error
}
