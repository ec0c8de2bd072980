// Package catalog defines the transactional SQL-like metadata store
// contract (spec §4.1) the engine is built on, plus the dialect
// discriminator (§6.1) used to switch identifier quoting and type
// spellings when emitting DDL. Concrete backends live in sibling
// packages (sqlitecat, pgcat); this package never imports a driver.
package catalog

import (
	"context"
)

// Dialect identifies the SQL backend so callers can switch identifier
// quoting and BIGINT/BLOB type spellings when emitting DDL (§6.1).
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectPostgres:
		return "postgres"
	default:
		return "unknown"
	}
}

// RowIter is a lazy, single-pass cursor over query results. Scan must be
// called exactly once per row before advancing with Next; Close must be
// called on every exit path (the base spec's "drop rolls back" discipline
// extended to cursors).
type RowIter interface {
	Next(ctx context.Context) (bool, error)
	Scan(dest ...interface{}) error
	Columns() ([]string, error)
	Close() error
}

// Catalog is the transactional metadata store contract (§4.1). A single
// autocommitted Query is provided for reads that don't need to join a
// broader transaction; everything else goes through Transaction.
type Catalog interface {
	// Dialect identifies the backend for DDL/identifier quoting decisions.
	Dialect() Dialect

	// Query runs a single-shot autocommitted read.
	Query(ctx context.Context, sql string, args ...interface{}) (RowIter, error)

	// Transaction opens a new transaction. The returned Tx must be
	// committed or rolled back by the caller (WithTransaction does both);
	// Tx has no Close method.
	Transaction(ctx context.Context) (Tx, error)

	// Close releases pooled connections.
	Close() error
}

// Tx is one transaction against the catalog. All writes performed
// through one Tx are atomic with respect to external observers once
// Commit returns successfully.
type Tx interface {
	Query(ctx context.Context, sql string, args ...interface{}) (RowIter, error)
	Execute(ctx context.Context, sql string, args ...interface{}) (rowsAffected int64, err error)
	ExecuteBatch(ctx context.Context, sqls []string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// WithTransaction opens a Tx, runs fn, and commits on success or rolls
// back on any error or panic — the scoped-acquisition pattern the base
// spec's design notes ask for in languages without deterministic
// destruction (§9 "Resource safety for transactions").
func WithTransaction(ctx context.Context, cat Catalog, fn func(ctx context.Context, tx Tx) error) (err error) {
	tx, err := cat.Transaction(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	if err = fn(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return err
	}
	return nil
}
