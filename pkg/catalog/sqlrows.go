package catalog

import (
	"context"
	"database/sql"
)

// sqlRowIter adapts *sql.Rows to the RowIter contract shared by every
// database/sql-backed Catalog implementation (sqlitecat, pgcat). It lives
// here, not in either backend, so both can reuse it without duplicating
// the Scan/Columns/Close plumbing.
type sqlRowIter struct {
	rows *sql.Rows
}

// WrapSQLRows adapts a *sql.Rows cursor to RowIter. Backends built on
// database/sql call this from Query/Tx.Query.
func WrapSQLRows(rows *sql.Rows) RowIter {
	return &sqlRowIter{rows: rows}
}

func (it *sqlRowIter) Next(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return it.rows.Next(), it.rows.Err()
}

func (it *sqlRowIter) Scan(dest ...interface{}) error {
	return it.rows.Scan(dest...)
}

func (it *sqlRowIter) Columns() ([]string, error) {
	return it.rows.Columns()
}

func (it *sqlRowIter) Close() error {
	return it.rows.Close()
}
