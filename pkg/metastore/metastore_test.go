package metastore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/indexlake/indexlake/pkg/catalog"
	"github.com/indexlake/indexlake/pkg/catalog/sqlitecat"
	"github.com/indexlake/indexlake/pkg/metastore"
)

func newStore(t *testing.T) (*metastore.Store, catalog.Catalog) {
	t.Helper()
	cat, err := sqlitecat.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })
	s := metastore.New(cat)
	require.NoError(t, s.Bootstrap(context.Background()))
	return s, cat
}

func TestPackUnpackRowIDsRoundTrip(t *testing.T) {
	ids := []int64{1, 2, 3, 1 << 40}
	packed := metastore.PackRowIDs(ids)
	require.Len(t, packed, len(ids)*8)
	unpacked, err := metastore.UnpackRowIDs(packed)
	require.NoError(t, err)
	require.Equal(t, ids, unpacked)
}

func TestUnpackRowIDsRejectsShortBuffer(t *testing.T) {
	_, err := metastore.UnpackRowIDs([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Bootstrap(context.Background()))
}

func TestNamespaceCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	id, err := s.CreateNamespace(ctx, "default")
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	byName, err := s.GetNamespace(ctx, "default")
	require.NoError(t, err)
	require.Equal(t, id, byName.NamespaceID)

	byID, err := s.GetNamespaceByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "default", byID.Name)

	_, err = s.GetNamespace(ctx, "missing")
	require.Error(t, err)
	_, err = s.GetNamespaceByID(ctx, 999)
	require.Error(t, err)
}

func TestTableCreateFieldsAndLookupByIDOrName(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	nsID, err := s.CreateNamespace(ctx, "default")
	require.NoError(t, err)

	fields := []metastore.Field{
		{Name: "id", DataType: "int64", Nullable: false},
		{Name: "name", DataType: "string", Nullable: true},
	}
	tableID, err := s.CreateTable(ctx, nsID, "events", []byte(`{}`), fields)
	require.NoError(t, err)
	require.Equal(t, int64(1), tableID)

	byName, err := s.GetTable(ctx, nsID, "events")
	require.NoError(t, err)
	require.Equal(t, tableID, byName.TableID)

	byID, err := s.GetTableByID(ctx, tableID)
	require.NoError(t, err)
	require.Equal(t, "events", byID.Name)

	listed, err := s.ListFields(ctx, tableID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, "id", listed[0].Name)
	require.Equal(t, "name", listed[1].Name)
	require.Less(t, listed[0].FieldID, listed[1].FieldID)

	_, err = s.GetTableByID(ctx, 999)
	require.Error(t, err)
	_, err = s.GetTable(ctx, nsID, "missing")
	require.Error(t, err)
}

func TestIndexDefDataFileIndexFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, cat := newStore(t)

	nsID, err := s.CreateNamespace(ctx, "default")
	require.NoError(t, err)
	tableID, err := s.CreateTable(ctx, nsID, "events", []byte(`{}`), nil)
	require.NoError(t, err)

	var indexID, dataFileID int64
	err = catalog.WithTransaction(ctx, cat, func(ctx context.Context, tx catalog.Tx) error {
		var err error
		indexID, err = s.CreateIndexDef(ctx, tx, metastore.IndexDef{
			TableID:     tableID,
			Name:        "name_idx",
			Kind:        "hash",
			KeyFieldIDs: []int64{1},
			ParamsJSON:  []byte(`{"key_column":"name"}`),
		})
		if err != nil {
			return err
		}
		dataFileID, err = s.CreateDataFile(ctx, tx, metastore.DataFile{
			TableID:       tableID,
			RelativePath:  "namespace/default/table/1/data/0.parquet",
			FileSizeBytes: 1024,
			RecordCount:   3,
			PackedRowIDs:  []int64{1, 2, 3},
		})
		if err != nil {
			return err
		}
		_, err = s.CreateIndexFile(ctx, tx, metastore.IndexFile{
			IndexID:      indexID,
			DataFileID:   dataFileID,
			RelativePath: "namespace/default/table/1/index/1/0.idx",
		})
		return err
	})
	require.NoError(t, err)

	defs, err := s.ListIndexDefs(ctx, tableID)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.Equal(t, "name_idx", defs[0].Name)
	require.Equal(t, []int64{1}, defs[0].KeyFieldIDs)

	files, err := s.ListDataFiles(ctx, tableID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, []int64{1, 2, 3}, files[0].PackedRowIDs)

	idxFiles, err := s.ListIndexFiles(ctx, indexID, 0)
	require.NoError(t, err)
	require.Len(t, idxFiles, 1)
	require.Equal(t, dataFileID, idxFiles[0].DataFileID)

	scoped, err := s.ListIndexFiles(ctx, indexID, dataFileID)
	require.NoError(t, err)
	require.Len(t, scoped, 1)

	scopedMiss, err := s.ListIndexFiles(ctx, indexID, dataFileID+1)
	require.NoError(t, err)
	require.Empty(t, scopedMiss)
}
