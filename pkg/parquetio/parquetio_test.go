package parquetio_test

import (
	"context"
	"testing"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/stretchr/testify/require"

	"github.com/indexlake/indexlake/pkg/parquetio"
	"github.com/indexlake/indexlake/pkg/rowbatch"
	"github.com/indexlake/indexlake/pkg/storage/fscat"
)

var schema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "name", Type: arrow.BinaryTypes.String},
}, nil)

func buildBatch(t *testing.T, ids []int64, names []string) *rowbatch.Batch {
	t.Helper()
	bldr := array.NewRecordBuilder(rowbatch.Allocator, schema)
	defer bldr.Release()
	bldr.Field(0).(*array.Int64Builder).AppendValues(ids, nil)
	bldr.Field(1).(*array.StringBuilder).AppendValues(names, nil)
	rec := bldr.NewRecord()
	return rowbatch.Wrap(rec)
}

func TestWriteTwoRowGroupsReadBackEach(t *testing.T) {
	ctx := context.Background()
	store, err := fscat.New(t.TempDir())
	require.NoError(t, err)

	w, err := store.Create(ctx, "0.parquet")
	require.NoError(t, err)

	pw, err := parquetio.NewWriter(schema, w, parquetio.DefaultWriterOptions())
	require.NoError(t, err)

	batch1 := buildBatch(t, []int64{1, 2}, []string{"a", "b"})
	defer batch1.Release()
	locs1, err := pw.WriteBatch(batch1)
	require.NoError(t, err)
	require.Equal(t, []parquetio.RowLocation{{RowGroup: 0, Offset: 0}, {RowGroup: 0, Offset: 1}}, locs1)

	batch2 := buildBatch(t, []int64{3}, []string{"c"})
	defer batch2.Release()
	locs2, err := pw.WriteBatch(batch2)
	require.NoError(t, err)
	require.Equal(t, []parquetio.RowLocation{{RowGroup: 1, Offset: 0}}, locs2)

	require.NoError(t, pw.Close())
	require.NoError(t, w.Finalize(ctx))

	reader, err := store.Open(ctx, "0.parquet")
	require.NoError(t, err)
	defer reader.Close()

	pr, err := parquetio.OpenReader(ctx, reader)
	require.NoError(t, err)
	require.Equal(t, 2, pr.NumRowGroups())

	rg0, err := pr.ReadRowGroup(ctx, 0)
	require.NoError(t, err)
	defer rg0.Release()
	require.Equal(t, int64(2), rg0.NumRows())
	col, err := rg0.Column("name")
	require.NoError(t, err)
	require.Equal(t, "a", col.(*array.String).Value(0))
	require.Equal(t, "b", col.(*array.String).Value(1))

	rg1, err := pr.ReadRowGroup(ctx, 1)
	require.NoError(t, err)
	defer rg1.Release()
	require.Equal(t, int64(1), rg1.NumRows())
	col1, err := rg1.Column("name")
	require.NoError(t, err)
	require.Equal(t, "c", col1.(*array.String).Value(0))
}
