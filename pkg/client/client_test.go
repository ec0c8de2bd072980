package client_test

import (
	"context"
	"testing"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/stretchr/testify/require"

	"github.com/indexlake/indexlake/pkg/catalog/sqlitecat"
	"github.com/indexlake/indexlake/pkg/client"
	"github.com/indexlake/indexlake/pkg/expr"
	"github.com/indexlake/indexlake/pkg/index/hashindex"
	"github.com/indexlake/indexlake/pkg/rowbatch"
	"github.com/indexlake/indexlake/pkg/storage/fscat"
	"github.com/indexlake/indexlake/pkg/table"
)

var testSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "name", Type: arrow.BinaryTypes.String},
}, nil)

func newTestClient(t *testing.T) *client.Client {
	t.Helper()
	cat, err := sqlitecat.Open(":memory:")
	require.NoError(t, err)
	store, err := fscat.New(t.TempDir())
	require.NoError(t, err)
	c, err := client.Open(context.Background(), cat, store, hashindex.Index{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func rowsBatch(t *testing.T, ids []int64, names []string) *rowbatch.Batch {
	t.Helper()
	bldr := array.NewRecordBuilder(rowbatch.Allocator, testSchema)
	defer bldr.Release()
	bldr.Field(0).(*array.Int64Builder).AppendValues(ids, nil)
	bldr.Field(1).(*array.StringBuilder).AppendValues(names, nil)
	rec := bldr.NewRecord()
	return rowbatch.Wrap(rec)
}

func collectNames(t *testing.T, batches []*rowbatch.Batch) []string {
	t.Helper()
	var out []string
	for _, b := range batches {
		col, err := b.Column("name")
		require.NoError(t, err)
		arr := col.(*array.String)
		for i := 0; i < arr.Len(); i++ {
			out = append(out, arr.Value(i))
		}
	}
	return out
}

func scanAll(t *testing.T, ctx context.Context, c *client.Client, tbl *table.Table, opts table.ScanOptions) []*rowbatch.Batch {
	t.Helper()
	var batches []*rowbatch.Batch
	err := c.Scan(ctx, tbl, opts, func(b *rowbatch.Batch) error {
		b.Retain()
		batches = append(batches, b)
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, b := range batches {
			b.Release()
		}
	})
	return batches
}

func TestInsertAndScanRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	_, err := c.CreateNamespace(ctx, "default")
	require.NoError(t, err)
	tbl, err := c.CreateTable(ctx, "default", "events", table.Config{Schema: testSchema})
	require.NoError(t, err)

	batch := rowsBatch(t, []int64{1, 2, 3}, []string{"a", "b", "c"})
	defer batch.Release()
	require.NoError(t, c.Insert(ctx, tbl, batch))

	results := scanAll(t, ctx, c, tbl, table.ScanOptions{})
	require.ElementsMatch(t, []string{"a", "b", "c"}, collectNames(t, results))
}

func TestScanFilterPushesDownToSQL(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	_, err := c.CreateNamespace(ctx, "default")
	require.NoError(t, err)
	tbl, err := c.CreateTable(ctx, "default", "events", table.Config{Schema: testSchema})
	require.NoError(t, err)

	batch := rowsBatch(t, []int64{1, 2, 3, 4}, []string{"a", "b", "a", "c"})
	defer batch.Release()
	require.NoError(t, c.Insert(ctx, tbl, batch))

	filter := expr.Comparison{Op: expr.Eq, Left: expr.ColumnRef{Name: "name"}, Right: expr.Literal{Value: "a"}}
	results := scanAll(t, ctx, c, tbl, table.ScanOptions{Filter: filter})
	require.ElementsMatch(t, []string{"a", "a"}, collectNames(t, results))
}

func TestDumpMovesRowsToExternalTierAndScanStillFindsThem(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	_, err := c.CreateNamespace(ctx, "default")
	require.NoError(t, err)
	tbl, err := c.CreateTable(ctx, "default", "events", table.Config{
		Schema:            testSchema,
		InlineRowCountLimit: 1000, // high enough that the background scheduler never fires on its own
		DumpBatchRowCount:   10,
	})
	require.NoError(t, err)

	batch := rowsBatch(t, []int64{1, 2, 3}, []string{"a", "b", "c"})
	defer batch.Release()
	require.NoError(t, c.Insert(ctx, tbl, batch))

	require.NoError(t, c.Dump(ctx, tbl))

	results := scanAll(t, ctx, c, tbl, table.ScanOptions{})
	require.ElementsMatch(t, []string{"a", "b", "c"}, collectNames(t, results))

	filter := expr.Comparison{Op: expr.Eq, Left: expr.ColumnRef{Name: "name"}, Right: expr.Literal{Value: "b"}}
	filtered := scanAll(t, ctx, c, tbl, table.ScanOptions{Filter: filter})
	require.Equal(t, []string{"b"}, collectNames(t, filtered))
}

func TestDeleteRemovesRowsAcrossInlineAndExternalTiers(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	_, err := c.CreateNamespace(ctx, "default")
	require.NoError(t, err)
	tbl, err := c.CreateTable(ctx, "default", "events", table.Config{Schema: testSchema, DumpBatchRowCount: 10})
	require.NoError(t, err)

	batch := rowsBatch(t, []int64{1, 2, 3, 4}, []string{"a", "b", "c", "d"})
	defer batch.Release()
	require.NoError(t, c.Insert(ctx, tbl, batch))
	require.NoError(t, c.Dump(ctx, tbl))

	// Delete one row still living in the dumped file (external) and one
	// freshly-inserted inline row in the same call.
	more := rowsBatch(t, []int64{5}, []string{"e"})
	defer more.Release()
	require.NoError(t, c.Insert(ctx, tbl, more))

	n, err := c.Delete(ctx, tbl, expr.In{Column: expr.ColumnRef{Name: "name"}, Values: []expr.Literal{{Value: "b"}, {Value: "e"}}})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	results := scanAll(t, ctx, c, tbl, table.ScanOptions{})
	require.ElementsMatch(t, []string{"a", "c", "d"}, collectNames(t, results))
}

func TestUpdateMovesExternalRowBackToInline(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	_, err := c.CreateNamespace(ctx, "default")
	require.NoError(t, err)
	tbl, err := c.CreateTable(ctx, "default", "events", table.Config{Schema: testSchema, DumpBatchRowCount: 10})
	require.NoError(t, err)

	batch := rowsBatch(t, []int64{1, 2, 3}, []string{"a", "b", "c"})
	defer batch.Release()
	require.NoError(t, c.Insert(ctx, tbl, batch))
	require.NoError(t, c.Dump(ctx, tbl))

	cond := expr.Comparison{Op: expr.Eq, Left: expr.ColumnRef{Name: "name"}, Right: expr.Literal{Value: "b"}}
	apply := func(b *rowbatch.Batch) (*rowbatch.Batch, error) {
		defer b.Release()
		ids, err := b.RowIDs()
		if err != nil {
			return nil, err
		}
		col, err := b.Column("name")
		if err != nil {
			return nil, err
		}
		names := make([]string, col.(*array.String).Len())
		for i := range names {
			names[i] = col.(*array.String).Value(i) + "-updated"
		}
		bldr := array.NewRecordBuilder(rowbatch.Allocator, testSchema)
		defer bldr.Release()
		bldr.Field(0).(*array.Int64Builder).AppendValues(ids, nil)
		bldr.Field(1).(*array.StringBuilder).AppendValues(names, nil)
		rec := bldr.NewRecord()
		defer rec.Release()
		return rowbatch.PrependRowIDColumn(rec, ids)
	}
	n, err := c.Update(ctx, tbl, cond, apply)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	results := scanAll(t, ctx, c, tbl, table.ScanOptions{})
	require.ElementsMatch(t, []string{"a", "b-updated", "c"}, collectNames(t, results))
}

func TestCreateIndexBackfillsExistingDataAndAcceleratesScan(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	_, err := c.CreateNamespace(ctx, "default")
	require.NoError(t, err)
	tbl, err := c.CreateTable(ctx, "default", "events", table.Config{Schema: testSchema, DumpBatchRowCount: 10})
	require.NoError(t, err)

	batch := rowsBatch(t, []int64{1, 2, 3, 4}, []string{"a", "b", "a", "c"})
	defer batch.Release()
	require.NoError(t, c.Insert(ctx, tbl, batch))
	require.NoError(t, c.Dump(ctx, tbl))

	_, err = c.CreateIndex(ctx, tbl, "name_idx", hashindex.Kind, nil, nil, hashindex.IndexParams{KeyColumn: "name"})
	require.NoError(t, err)

	filter := expr.Comparison{Op: expr.Eq, Left: expr.ColumnRef{Name: "name"}, Right: expr.Literal{Value: "a"}}
	results := scanAll(t, ctx, c, tbl, table.ScanOptions{Filter: filter})
	require.ElementsMatch(t, []string{"a", "a"}, collectNames(t, results))
}
