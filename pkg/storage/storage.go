// Package storage defines the blob store contract (spec §4.2): path-
// addressed byte containers with create/open/delete/exists, readers
// exposing random-access reads for the columnar file reader. Concrete
// backends live in sibling packages (fscat, s3store); this package never
// imports a cloud SDK.
package storage

import (
	"context"
	"io"
)

// Writer is returned by Create for sequential writes. Finalize flushes
// and closes the underlying resource; failures after Finalize returns
// successfully are surfaced by the caller's next operation against the
// path (e.g. a subsequent Open), mirroring the base spec's "failures
// after finalize are surfaced" contract.
type Writer interface {
	io.Writer
	Finalize(ctx context.Context) error
	// Abort discards a partially written file without finalizing it,
	// used on the error paths in dump (§4.7 step 5: "on failure, delete
	// the partial file").
	Abort(ctx context.Context) error
}

// Reader is returned by Open for random-access reads, the shape the
// columnar file reader requires for row-group-addressable predicate
// pushdown (§4.5 step 2c).
type Reader interface {
	ReadAt(ctx context.Context, p []byte, offset int64) (int, error)
	Size(ctx context.Context) (int64, error)
	io.Closer
}

// Store is the blob store contract (§4.2).
type Store interface {
	Create(ctx context.Context, path string) (Writer, error)
	Open(ctx context.Context, path string) (Reader, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	RemoveDirAll(ctx context.Context, prefix string) error
}
