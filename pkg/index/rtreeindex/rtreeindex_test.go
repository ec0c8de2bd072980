package rtreeindex_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/stretchr/testify/require"

	"github.com/indexlake/indexlake/pkg/expr"
	"github.com/indexlake/indexlake/pkg/index"
	"github.com/indexlake/indexlake/pkg/index/rtreeindex"
	"github.com/indexlake/indexlake/pkg/rowbatch"
	"github.com/indexlake/indexlake/pkg/storage"
	"github.com/indexlake/indexlake/pkg/storage/fscat"
)

func encodeBBox(b rtreeindex.BBox) []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(b.MinLat))
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(b.MinLng))
	binary.LittleEndian.PutUint64(buf[16:24], math.Float64bits(b.MaxLat))
	binary.LittleEndian.PutUint64(buf[24:32], math.Float64bits(b.MaxLng))
	return buf
}

func buildBatch(t *testing.T, ids []int64, boxes []rtreeindex.BBox) *rowbatch.Batch {
	t.Helper()
	fields := []arrow.Field{{Name: "geom", Type: arrow.BinaryTypes.Binary}}
	bldr := array.NewRecordBuilder(rowbatch.Allocator, arrow.NewSchema(fields, nil))
	defer bldr.Release()
	geomBldr := bldr.Field(0).(*array.BinaryBuilder)
	for _, b := range boxes {
		geomBldr.Append(encodeBBox(b))
	}
	rec := bldr.NewRecord()
	defer rec.Release()
	batch, err := rowbatch.PrependRowIDColumn(rec, ids)
	require.NoError(t, err)
	return batch
}

func newDef(t *testing.T) index.Def {
	t.Helper()
	params, err := json.Marshal(rtreeindex.IndexParams{GeomColumn: "geom"})
	require.NoError(t, err)
	return index.Def{IndexID: 1, TableID: 1, Name: "geom_idx", Kind: rtreeindex.Kind, ParamsJSON: params}
}

func TestRTreeSupportsFilter(t *testing.T) {
	idx := rtreeindex.Index{}
	def := newDef(t)
	ext := expr.Extension{Name: "intersects", Args: []expr.Expr{
		expr.ColumnRef{Name: "geom"},
		expr.Literal{Value: rtreeindex.BBox{MinLat: 0, MinLng: 0, MaxLat: 1, MaxLng: 1}},
	}}
	require.True(t, idx.SupportsFilter(def, ext))
	require.False(t, idx.SupportsFilter(def, expr.Comparison{Op: expr.Eq, Left: expr.ColumnRef{Name: "geom"}, Right: expr.Literal{Value: 1}}))

	wrongCol := expr.Extension{Name: "intersects", Args: []expr.Expr{
		expr.ColumnRef{Name: "other"},
		expr.Literal{Value: rtreeindex.BBox{}},
	}}
	require.False(t, idx.SupportsFilter(def, wrongCol))
}

func TestRTreeBuildWriteFilterRoundTrip(t *testing.T) {
	ctx := context.Background()
	idx := rtreeindex.Index{}
	def := newDef(t)

	builder, err := idx.Builder(def)
	require.NoError(t, err)
	batch := buildBatch(t, []int64{10, 20, 30}, []rtreeindex.BBox{
		{MinLat: 0, MinLng: 0, MaxLat: 1, MaxLng: 1},
		{MinLat: 5, MinLng: 5, MaxLat: 6, MaxLng: 6},
		{MinLat: 0.5, MinLng: 0.5, MaxLat: 2, MaxLng: 2},
	})
	defer batch.Release()
	require.NoError(t, builder.Update(ctx, batch))

	store, err := fscat.New(t.TempDir())
	require.NoError(t, err)
	w, err := store.Create(ctx, "idx/0.rtreeidx")
	require.NoError(t, err)
	require.NoError(t, builder.Write(ctx, w))
	require.NoError(t, w.Finalize(ctx))

	open := func(ctx context.Context, f index.File) (storage.Reader, error) {
		return store.Open(ctx, f.RelativePath)
	}
	files := []index.File{{IndexID: def.IndexID, RelativePath: "idx/0.rtreeidx"}}

	query := rtreeindex.BBox{MinLat: -1, MinLng: -1, MaxLat: 0.6, MaxLng: 0.6}
	result, err := idx.Filter(ctx, def, files, open, expr.Extension{
		Name: "intersects",
		Args: []expr.Expr{expr.ColumnRef{Name: "geom"}, expr.Literal{Value: query}},
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{10, 30}, result.Slice())
}
