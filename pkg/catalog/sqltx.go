package catalog

import (
	"context"
	"database/sql"

	"github.com/indexlake/indexlake/pkg/lakeerrors"
)

// SQLTx adapts a *sql.Tx to the Tx contract. Both database/sql-backed
// catalog implementations (sqlitecat, pgcat) return this from
// Transaction; neither needs its own Tx type.
type SQLTx struct {
	tx *sql.Tx
	// done guards against double commit/rollback: once Commit or
	// Rollback has run, a later Commit or Rollback returns nil without
	// touching the underlying *sql.Tx.
	done bool
}

// NewSQLTx wraps an open *sql.Tx.
func NewSQLTx(tx *sql.Tx) *SQLTx {
	return &SQLTx{tx: tx}
}

func (t *SQLTx) Query(ctx context.Context, sqlText string, args ...interface{}) (RowIter, error) {
	rows, err := t.tx.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, lakeerrors.Catalog(err, "query: %s", sqlText)
	}
	return WrapSQLRows(rows), nil
}

func (t *SQLTx) Execute(ctx context.Context, sqlText string, args ...interface{}) (int64, error) {
	res, err := t.tx.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return 0, lakeerrors.Catalog(err, "execute: %s", sqlText)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, lakeerrors.Catalog(err, "rows affected: %s", sqlText)
	}
	return n, nil
}

func (t *SQLTx) ExecuteBatch(ctx context.Context, sqls []string) error {
	for _, s := range sqls {
		if _, err := t.Execute(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (t *SQLTx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return lakeerrors.Catalog(err, "commit")
	}
	return nil
}

func (t *SQLTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return lakeerrors.Catalog(err, "rollback")
	}
	return nil
}
