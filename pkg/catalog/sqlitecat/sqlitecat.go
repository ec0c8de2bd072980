// Package sqlitecat is the SQLite-backed Catalog implementation, grounded
// on the atomicbase-adjacent daos.Database connection wrapper (open, ping,
// hold the *sql.DB for the process lifetime) but built against the
// catalog.Catalog/Tx contract this module actually needs, which the
// grounding source does not expose (it never wraps statements in an
// explicit *sql.Tx).
package sqlitecat

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/indexlake/indexlake/pkg/catalog"
	"github.com/indexlake/indexlake/pkg/lakeerrors"
)

// Catalog is a catalog.Catalog backed by database/sql + go-sqlite3.
type Catalog struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at dsn, e.g. "file:test.db"
// or ":memory:". The returned Catalog owns the connection pool for its
// lifetime; callers must Close it.
func Open(dsn string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "open sqlite %s", dsn)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, lakeerrors.Catalog(err, "ping sqlite %s", dsn)
	}
	// SQLite allows only one writer at a time; serialize everything
	// through a single connection so concurrent transactions observe a
	// consistent lock order instead of racing for SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return &Catalog{db: db}, nil
}

func (c *Catalog) Dialect() catalog.Dialect { return catalog.DialectSQLite }

func (c *Catalog) Query(ctx context.Context, sqlText string, args ...interface{}) (catalog.RowIter, error) {
	rows, err := c.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "query: %s", sqlText)
	}
	return catalog.WrapSQLRows(rows), nil
}

func (c *Catalog) Transaction(ctx context.Context) (catalog.Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "begin transaction")
	}
	return catalog.NewSQLTx(tx), nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}
