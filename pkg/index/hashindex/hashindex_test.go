package hashindex_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/stretchr/testify/require"

	"github.com/indexlake/indexlake/pkg/expr"
	"github.com/indexlake/indexlake/pkg/index"
	"github.com/indexlake/indexlake/pkg/index/hashindex"
	"github.com/indexlake/indexlake/pkg/rowbatch"
	"github.com/indexlake/indexlake/pkg/storage"
	"github.com/indexlake/indexlake/pkg/storage/fscat"
)

func buildBatch(t *testing.T, ids []int64, keys []string) *rowbatch.Batch {
	t.Helper()
	fields := []arrow.Field{{Name: "k", Type: arrow.BinaryTypes.String}}
	bldr := array.NewRecordBuilder(rowbatch.Allocator, arrow.NewSchema(fields, nil))
	defer bldr.Release()
	bldr.Field(0).(*array.StringBuilder).AppendValues(keys, nil)
	rec := bldr.NewRecord()
	defer rec.Release()
	batch, err := rowbatch.PrependRowIDColumn(rec, ids)
	require.NoError(t, err)
	return batch
}

func newDef(t *testing.T) index.Def {
	t.Helper()
	params, err := json.Marshal(hashindex.IndexParams{KeyColumn: "k"})
	require.NoError(t, err)
	return index.Def{IndexID: 1, TableID: 1, Name: "k_idx", Kind: hashindex.Kind, ParamsJSON: params}
}

func TestHashIndexSupportsFilter(t *testing.T) {
	idx := hashindex.Index{}
	def := newDef(t)
	require.True(t, idx.SupportsFilter(def, expr.Comparison{Op: expr.Eq, Left: expr.ColumnRef{Name: "k"}, Right: expr.Literal{Value: "a"}}))
	require.False(t, idx.SupportsFilter(def, expr.Comparison{Op: expr.Gt, Left: expr.ColumnRef{Name: "k"}, Right: expr.Literal{Value: "a"}}))
	require.False(t, idx.SupportsFilter(def, expr.Comparison{Op: expr.Eq, Left: expr.ColumnRef{Name: "other"}, Right: expr.Literal{Value: "a"}}))
	require.True(t, idx.SupportsFilter(def, expr.In{Column: expr.ColumnRef{Name: "k"}, Values: []expr.Literal{{Value: "a"}, {Value: "b"}}}))
}

func TestHashIndexBuildWriteFilterRoundTrip(t *testing.T) {
	ctx := context.Background()
	idx := hashindex.Index{}
	def := newDef(t)

	builder, err := idx.Builder(def)
	require.NoError(t, err)
	batch := buildBatch(t, []int64{1, 2, 3, 4}, []string{"a", "b", "a", "c"})
	defer batch.Release()
	require.NoError(t, builder.Update(ctx, batch))

	store, err := fscat.New(t.TempDir())
	require.NoError(t, err)
	w, err := store.Create(ctx, "idx/0.hashidx")
	require.NoError(t, err)
	require.NoError(t, builder.Write(ctx, w))
	require.NoError(t, w.Finalize(ctx))

	open := func(ctx context.Context, f index.File) (storage.Reader, error) {
		return store.Open(ctx, f.RelativePath)
	}
	files := []index.File{{IndexID: def.IndexID, RelativePath: "idx/0.hashidx"}}

	result, err := idx.Filter(ctx, def, files, open,
		expr.Comparison{Op: expr.Eq, Left: expr.ColumnRef{Name: "k"}, Right: expr.Literal{Value: "a"}})
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{1, 3}, result.Slice())

	result, err = idx.Filter(ctx, def, files, open,
		expr.In{Column: expr.ColumnRef{Name: "k"}, Values: []expr.Literal{{Value: "b"}, {Value: "c"}}})
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{2, 4}, result.Slice())
}
