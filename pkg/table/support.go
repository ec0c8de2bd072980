package table

import (
	"context"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"

	"github.com/indexlake/indexlake/pkg/rowbatch"
)

// ReadInlineByRowID exposes scan's inline-tier point lookup by row_id
// (readInlineByID), for the dump task to re-materialize the exact rows it is about
// to migrate out of inline_{table_id}.
func ReadInlineByRowID(ctx context.Context, t *Table, ids []int64) (*rowbatch.Batch, error) {
	return t.readInlineByID(ctx, ids)
}

// BuildBatch assembles a rowbatch.Batch with a row_id column followed
// by schema's fields from parallel ids/rows slices, the shape the dump
// task needs both for the parquet writer and for feeding index
// builders (§4.7 steps 4 and 9b both operate on the same batch shape
// insert produces).
func BuildBatch(schema *arrow.Schema, ids []int64, rows [][]interface{}) (*rowbatch.Batch, error) {
	builders := make([]array.Builder, len(schema.Fields()))
	for i, f := range schema.Fields() {
		builders[i] = array.NewBuilder(rowbatch.Allocator, f.Type)
	}
	defer func() {
		for _, b := range builders {
			b.Release()
		}
	}()
	for _, row := range rows {
		for i, v := range row {
			if err := appendScalar(builders[i], v); err != nil {
				return nil, err
			}
		}
	}
	cols := make([]arrow.Array, len(builders))
	for i, b := range builders {
		cols[i] = b.NewArray()
	}
	rec := array.NewRecord(schema, cols, int64(len(rows)))
	for _, c := range cols {
		c.Release()
	}
	defer rec.Release()
	return rowbatch.PrependRowIDColumn(rec, ids)
}
