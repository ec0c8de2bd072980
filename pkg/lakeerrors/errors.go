// Package lakeerrors defines the seven-way error taxonomy used at every
// component boundary: invalid argument, not found, conflict, integrity
// violation, catalog error, storage error, and index error.
package lakeerrors

import (
	"github.com/cockroachdb/errors"
)

// Sentinel errors. Use errors.Is against these across package boundaries;
// every wrapped error in this module chains back to exactly one sentinel.
var (
	ErrInvalidArgument   = errors.New("indexlake: invalid argument")
	ErrNotFound          = errors.New("indexlake: not found")
	ErrConflict          = errors.New("indexlake: conflict")
	ErrIntegrityViolation = errors.New("indexlake: integrity violation")
	ErrCatalog           = errors.New("indexlake: catalog error")
	ErrStorage           = errors.New("indexlake: storage error")
	ErrIndex             = errors.New("indexlake: index error")
)

// InvalidArgument builds an error marked as ErrInvalidArgument from a
// formatted message.
func InvalidArgument(format string, args ...interface{}) error {
	return errors.WithStack(errors.Wrapf(ErrInvalidArgument, format, args...))
}

// NotFound wraps a not-found condition, e.g. an unknown table, index or
// data file.
func NotFound(format string, args ...interface{}) error {
	return errors.WithStack(errors.Wrapf(ErrNotFound, format, args...))
}

// Conflict wraps a conflict condition, e.g. a lost row-id allocation race.
// Callers are expected to retry the whole operation.
func Conflict(format string, args ...interface{}) error {
	return errors.WithStack(errors.Wrapf(ErrConflict, format, args...))
}

// IntegrityViolation wraps a broken invariant found on read. It is
// unrecoverable for the operation in progress.
func IntegrityViolation(format string, args ...interface{}) error {
	return errors.WithStack(errors.Wrapf(ErrIntegrityViolation, format, args...))
}

// Catalog wraps an underlying catalog (SQL backend) failure.
func Catalog(err error, format string, args ...interface{}) error {
	if err == nil {
		return errors.WithStack(errors.Wrapf(ErrCatalog, format, args...))
	}
	return errors.Wrapf(errors.Mark(err, ErrCatalog), format, args...)
}

// Storage wraps an underlying blob-store failure.
func Storage(err error, format string, args ...interface{}) error {
	if err == nil {
		return errors.WithStack(errors.Wrapf(ErrStorage, format, args...))
	}
	return errors.Wrapf(errors.Mark(err, ErrStorage), format, args...)
}

// Index wraps a failure surfaced by an IndexBuilder or Index.Filter call.
func Index(err error, format string, args ...interface{}) error {
	if err == nil {
		return errors.WithStack(errors.Wrapf(ErrIndex, format, args...))
	}
	return errors.Wrapf(errors.Mark(err, ErrIndex), format, args...)
}

// AssertInvariant panics with an AssertionFailed-marked error if cond is
// false. Reserved for invariants the engine itself must never violate
// (e.g. a negative row_id), as opposed to IntegrityViolation which is for
// conditions discovered in stored data written by a previous, possibly
// buggy, process.
func AssertInvariant(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(errors.AssertionFailedf(format, args...))
	}
}
