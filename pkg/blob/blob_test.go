package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite exercises the Store contract against any backend.
func runStoreSuite(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "k1", []byte("payload one")))
		data, err := store.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, []byte("payload one"), data)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "k2", []byte("first")))
		require.NoError(t, store.Put(ctx, "k2", []byte("second")))
		data, err := store.Get(ctx, "k2")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), data)
	})

	t.Run("empty payload", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "k3", nil))
		data, err := store.Get(ctx, "k3")
		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "k4", []byte("x")))
		require.NoError(t, store.Delete(ctx, "k4"))
		_, err := store.Get(ctx, "k4")
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.NoError(t, store.Delete(ctx, "k4"), "second delete is a no-op")
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Error(t, store.Put(cancelled, "k5", []byte("x")))
		_, err := store.Get(cancelled, "k1")
		assert.Error(t, err)
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	runStoreSuite(t, store)
}

func TestFSStore(t *testing.T) {
	store, err := NewFSStore(context.Background(), filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	defer store.Close()
	runStoreSuite(t, store)
}

func TestFSStoreRequiresPath(t *testing.T) {
	_, err := NewFSStore(context.Background(), "")
	assert.Error(t, err)
}

func TestFSStoreSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "blobs")
	ctx := context.Background()

	store, err := NewFSStore(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "k1", []byte("persisted")))
	require.NoError(t, store.Close())

	reopened, err := NewFSStore(ctx, dir)
	require.NoError(t, err)
	data, err := reopened.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), data)
}

func TestFSStoreLeavesNoTempFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "blobs")
	ctx := context.Background()

	store, err := NewFSStore(ctx, dir)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "k1", []byte("x")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "k1", entries[0].Name())
}
