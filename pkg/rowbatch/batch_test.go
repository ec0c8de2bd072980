package rowbatch_test

import (
	"testing"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/stretchr/testify/require"

	"github.com/indexlake/indexlake/pkg/rowbatch"
)

func newInt64Batch(t *testing.T, ids []int64, values []int64) *rowbatch.Batch {
	t.Helper()
	fields := []arrow.Field{{Name: "v", Type: arrow.PrimitiveTypes.Int64}}
	bldr := array.NewRecordBuilder(rowbatch.Allocator, arrow.NewSchema(fields, nil))
	defer bldr.Release()
	bldr.Field(0).(*array.Int64Builder).AppendValues(values, nil)
	rec := bldr.NewRecord()
	defer rec.Release()
	batch, err := rowbatch.PrependRowIDColumn(rec, ids)
	require.NoError(t, err)
	return batch
}

func TestPrependRowIDColumnRejectsLengthMismatch(t *testing.T) {
	fields := []arrow.Field{{Name: "v", Type: arrow.PrimitiveTypes.Int64}}
	bldr := array.NewRecordBuilder(rowbatch.Allocator, arrow.NewSchema(fields, nil))
	defer bldr.Release()
	bldr.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2}, nil)
	rec := bldr.NewRecord()
	defer rec.Release()

	_, err := rowbatch.PrependRowIDColumn(rec, []int64{1})
	require.Error(t, err)
}

func TestRowIDsAndColumnAccess(t *testing.T) {
	batch := newInt64Batch(t, []int64{100, 101}, []int64{7, 8})
	defer batch.Release()

	ids, err := batch.RowIDs()
	require.NoError(t, err)
	require.Equal(t, []int64{100, 101}, ids)

	col, err := batch.Column("v")
	require.NoError(t, err)
	require.Equal(t, int64(7), col.(*array.Int64).Value(0))

	_, err = batch.Column("missing")
	require.Error(t, err)
}

func TestDropAndProjectColumn(t *testing.T) {
	batch := newInt64Batch(t, []int64{1, 2}, []int64{10, 20})
	defer batch.Release()

	dropped, err := batch.DropColumn(rowbatch.RowIDColumn)
	require.NoError(t, err)
	defer dropped.Release()
	require.Equal(t, 1, len(dropped.Schema().Fields()))
	require.Equal(t, "v", dropped.Schema().Field(0).Name)

	projected, err := batch.Project([]string{"v"})
	require.NoError(t, err)
	defer projected.Release()
	require.Equal(t, 1, len(projected.Schema().Fields()))
}

func TestSliceAndConcat(t *testing.T) {
	batch := newInt64Batch(t, []int64{1, 2, 3}, []int64{10, 20, 30})
	defer batch.Release()

	first := batch.Slice(0, 2)
	defer first.Release()
	second := batch.Slice(2, 3)
	defer second.Release()
	require.Equal(t, int64(2), first.NumRows())
	require.Equal(t, int64(1), second.NumRows())

	merged, err := rowbatch.Concat([]*rowbatch.Batch{first, second})
	require.NoError(t, err)
	defer merged.Release()
	require.Equal(t, int64(3), merged.NumRows())
	ids, err := merged.RowIDs()
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, ids)
}

func TestConcatRejectsSchemaMismatch(t *testing.T) {
	a := newInt64Batch(t, []int64{1}, []int64{1})
	defer a.Release()

	fields := []arrow.Field{{Name: "other", Type: arrow.PrimitiveTypes.Int64}}
	bldr := array.NewRecordBuilder(rowbatch.Allocator, arrow.NewSchema(fields, nil))
	bldr.Field(0).(*array.Int64Builder).AppendValues([]int64{9}, nil)
	rec := bldr.NewRecord()
	bldr.Release()
	b, err := rowbatch.PrependRowIDColumn(rec, []int64{2})
	rec.Release()
	require.NoError(t, err)
	defer b.Release()

	_, err = rowbatch.Concat([]*rowbatch.Batch{a, b})
	require.Error(t, err)
}

func TestScalarAtTypes(t *testing.T) {
	fields := []arrow.Field{
		{Name: "b", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "s", Type: arrow.BinaryTypes.String},
		{Name: "f", Type: arrow.PrimitiveTypes.Float64},
	}
	bldr := array.NewRecordBuilder(rowbatch.Allocator, arrow.NewSchema(fields, nil))
	defer bldr.Release()
	bldr.Field(0).(*array.BooleanBuilder).AppendValues([]bool{true}, nil)
	bldr.Field(1).(*array.StringBuilder).AppendValues([]string{"hi"}, nil)
	bldr.Field(2).(*array.Float64Builder).AppendValues([]float64{3.5}, nil)
	rec := bldr.NewRecord()
	defer rec.Release()

	bv, err := rowbatch.ScalarAt(rec.Column(0), 0)
	require.NoError(t, err)
	require.Equal(t, true, bv)

	sv, err := rowbatch.ScalarAt(rec.Column(1), 0)
	require.NoError(t, err)
	require.Equal(t, "hi", sv)

	fv, err := rowbatch.ScalarAt(rec.Column(2), 0)
	require.NoError(t, err)
	require.Equal(t, 3.5, fv)
}

func TestConcatRejectsEmptyInput(t *testing.T) {
	_, err := rowbatch.Concat(nil)
	require.Error(t, err)
}
