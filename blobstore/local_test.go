package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "dev3/0")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "dev3/0", []byte("block zero")))
	require.NoError(t, store.Put(ctx, "dev3/1", []byte("block one")))
	require.NoError(t, store.Put(ctx, "dev4/0", []byte("other")))

	got, err := store.Get(ctx, "dev3/0")
	require.NoError(t, err)
	assert.Equal(t, "block zero", string(got))

	// Overwrite replaces the content.
	require.NoError(t, store.Put(ctx, "dev3/0", []byte("rewritten")))
	got, err = store.Get(ctx, "dev3/0")
	require.NoError(t, err)
	assert.Equal(t, "rewritten", string(got))

	names, err := store.List(ctx, "dev3/")
	require.NoError(t, err)
	assert.Equal(t, []string{"dev3/0", "dev3/1"}, names)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, store.Delete(ctx, "dev3/1"))
	require.NoError(t, store.Delete(ctx, "dev3/1"), "deleting a missing blob is not an error")
	_, err = store.Get(ctx, "dev3/1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	testStore(t, store)
	assert.Equal(t, 2, store.Len())

	// Returned data is a copy.
	ctx := context.Background()
	got, err := store.Get(ctx, "dev4/0")
	require.NoError(t, err)
	got[0] = 'X'
	again, err := store.Get(ctx, "dev4/0")
	require.NoError(t, err)
	assert.Equal(t, "other", string(again))
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, store.Root())

	testStore(t, store)

	_, err = os.Stat(filepath.Join(dir, "dev4", "0"))
	assert.NoError(t, err)
}

func TestMemoryStore_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryStore()
	assert.ErrorIs(t, store.Put(ctx, "a", nil), context.Canceled)
	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}
