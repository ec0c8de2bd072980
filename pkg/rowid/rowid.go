// Package rowid implements the row-ID allocator (C5, spec §4.3): inside
// a transaction, issue a contiguous block [next, next+n) for n new rows
// by reading max(row_id) with a sentinel of 0 when empty. No external
// library is needed — this is pure SQL plus arithmetic over the
// catalog.Tx contract already grounded elsewhere.
package rowid

import (
	"context"
	"fmt"

	"github.com/indexlake/indexlake/pkg/catalog"
	"github.com/indexlake/indexlake/pkg/lakeerrors"
)

// Allocate issues [first, first+n) inside tx for the row-metadata table
// of tableID. The caller's surrounding transaction atomicity is what
// guarantees no two committed insertions can overlap (§4.3). Every
// catalog error, a serialization conflict included, is returned wrapped
// as lakeerrors.Catalog; conflicts are not classified as
// lakeerrors.ErrConflict.
func Allocate(ctx context.Context, tx catalog.Tx, dialect catalog.Dialect, tableID int64, n int64) (int64, error) {
	if n <= 0 {
		return 0, lakeerrors.InvalidArgument("allocate requires n > 0, got %d", n)
	}
	rowMeta := dialect.QuoteIdentifier(catalog.RowMetaTableName(tableID))
	sql := fmt.Sprintf("SELECT COALESCE(MAX(row_id), 0) FROM %s", rowMeta)
	it, err := tx.Query(ctx, sql)
	if err != nil {
		return 0, lakeerrors.Catalog(err, "read max row_id for table %d", tableID)
	}
	defer it.Close()
	var max int64
	ok, err := it.Next(ctx)
	if err != nil {
		return 0, lakeerrors.Catalog(err, "read max row_id for table %d", tableID)
	}
	if ok {
		if err := it.Scan(&max); err != nil {
			return 0, lakeerrors.Catalog(err, "scan max row_id for table %d", tableID)
		}
	}
	return max + 1, nil
}
