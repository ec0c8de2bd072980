package fscat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/indexlake/indexlake/pkg/storage/fscat"
)

func TestCreateWriteFinalizeOpenReadAtRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := fscat.New(t.TempDir())
	require.NoError(t, err)

	w, err := store.Create(ctx, "ns/table/1/data/0.parquet")
	require.NoError(t, err)
	n, err := w.Write([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, 11, n)
	require.NoError(t, w.Finalize(ctx))

	exists, err := store.Exists(ctx, "ns/table/1/data/0.parquet")
	require.NoError(t, err)
	require.True(t, exists)

	r, err := store.Open(ctx, "ns/table/1/data/0.parquet")
	require.NoError(t, err)
	defer r.Close()

	size, err := r.Size(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 11, size)

	buf := make([]byte, 5)
	n, err = r.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))
}

func TestOpenMissingFileReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := fscat.New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(ctx, "missing/path")
	require.Error(t, err)
}

func TestDeleteIsIdempotentAndExistsReflectsIt(t *testing.T) {
	ctx := context.Background()
	store, err := fscat.New(t.TempDir())
	require.NoError(t, err)

	w, err := store.Create(ctx, "f.bin")
	require.NoError(t, err)
	require.NoError(t, w.Finalize(ctx))

	require.NoError(t, store.Delete(ctx, "f.bin"))
	exists, err := store.Exists(ctx, "f.bin")
	require.NoError(t, err)
	require.False(t, exists)

	// Deleting an already-absent file is not an error.
	require.NoError(t, store.Delete(ctx, "f.bin"))
}

func TestAbortRemovesUnfinalizedFile(t *testing.T) {
	ctx := context.Background()
	store, err := fscat.New(t.TempDir())
	require.NoError(t, err)

	w, err := store.Create(ctx, "partial.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.Abort(ctx))

	exists, err := store.Exists(ctx, "partial.bin")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestRemoveDirAllDeletesPrefix(t *testing.T) {
	ctx := context.Background()
	store, err := fscat.New(t.TempDir())
	require.NoError(t, err)

	w, err := store.Create(ctx, "ns/table/1/data/0.parquet")
	require.NoError(t, err)
	require.NoError(t, w.Finalize(ctx))

	require.NoError(t, store.RemoveDirAll(ctx, "ns/table/1"))
	exists, err := store.Exists(ctx, "ns/table/1/data/0.parquet")
	require.NoError(t, err)
	require.False(t, exists)
}
