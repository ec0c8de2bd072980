package rowid_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/indexlake/indexlake/pkg/catalog"
	"github.com/indexlake/indexlake/pkg/catalog/sqlitecat"
	"github.com/indexlake/indexlake/pkg/rowid"
	"github.com/indexlake/indexlake/pkg/table"
)

func newRowMetaTable(t *testing.T, tableID int64) catalog.Catalog {
	t.Helper()
	cat, err := sqlitecat.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })
	err = catalog.WithTransaction(context.Background(), cat, func(ctx context.Context, tx catalog.Tx) error {
		return tx.ExecuteBatch(ctx, []string{table.RowMetaCreateDDL(cat.Dialect(), tableID)})
	})
	require.NoError(t, err)
	return cat
}

func TestAllocateStartsAtOneWhenEmpty(t *testing.T) {
	ctx := context.Background()
	cat := newRowMetaTable(t, 1)

	var first int64
	err := catalog.WithTransaction(ctx, cat, func(ctx context.Context, tx catalog.Tx) error {
		var err error
		first, err = rowid.Allocate(ctx, tx, cat.Dialect(), 1, 5)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), first)
}

func TestAllocateContinuesFromMaxExistingRowID(t *testing.T) {
	ctx := context.Background()
	cat := newRowMetaTable(t, 1)

	err := catalog.WithTransaction(ctx, cat, func(ctx context.Context, tx catalog.Tx) error {
		_, err := tx.Execute(ctx,
			"INSERT INTO "+cat.Dialect().QuoteIdentifier("rowmeta_1")+" (row_id, location, deleted) VALUES (?, ?, ?)",
			10, "inline", false)
		return err
	})
	require.NoError(t, err)

	var next int64
	err = catalog.WithTransaction(ctx, cat, func(ctx context.Context, tx catalog.Tx) error {
		var err error
		next, err = rowid.Allocate(ctx, tx, cat.Dialect(), 1, 3)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, int64(11), next)
}

func TestAllocateRejectsNonPositiveN(t *testing.T) {
	ctx := context.Background()
	cat := newRowMetaTable(t, 1)

	err := catalog.WithTransaction(ctx, cat, func(ctx context.Context, tx catalog.Tx) error {
		_, err := rowid.Allocate(ctx, tx, cat.Dialect(), 1, 0)
		return err
	})
	require.Error(t, err)
}
