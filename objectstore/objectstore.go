// Package objectstore defines the durable byte-storage contract the executor
// adapter reads inputs from and writes outputs to.
package objectstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a requested path does not exist.
var ErrNotFound = errors.New("objectstore: not found")

// ErrTransient marks an error as retryable: a timeout, a 5xx, a connection
// reset. The executor adapter classifies these into compactor.KindTransient.
var ErrTransient = errors.New("objectstore: transient failure")

// ErrPermission marks an error as non-retryable authorization failure.
var ErrPermission = errors.New("objectstore: permission denied")

// ObjectStore is the durable byte-storage contract. Paths are opaque strings
// assigned by callers; this package does not impose a naming scheme.
type ObjectStore interface {
	// Get opens path for reading. The caller must Close the returned reader.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Put writes the full contents of r to path, overwriting any existing
	// object at that path.
	Put(ctx context.Context, path string, r io.Reader) error

	// Delete removes path. Deleting a path that does not exist is not an
	// error, matching the soft-delete semantics upstream in the catalog.
	Delete(ctx context.Context, path string) error

	// Exists reports whether path currently has an object.
	Exists(ctx context.Context, path string) (bool, error)
}
