package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshdata/internal/fs"
)

func testStoreLifecycle(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	data := []byte("hello world, this is a checkpoint blob")

	w, err := store.Create(ctx, "run/step_0001/density")
	require.NoError(t, err)
	n, err := w.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	blob, err := store.Open(ctx, "run/step_0001/density")
	require.NoError(t, err)
	defer blob.Close()
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err = blob.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))

	rc, err := blob.ReadRange(ctx, 13, 4)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "this", string(got))

	rc, err = blob.ReadRange(ctx, int64(len(data))-4, 100)
	require.NoError(t, err)
	got, _ = io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "blob", string(got))

	_, err = blob.ReadRange(ctx, int64(len(data))+10, 5)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, store.Put(ctx, "run/step_0001/manifest.json", []byte("{}")))
	require.NoError(t, store.Put(ctx, "run/step_0002/manifest.json", []byte("{}")))

	names, err := store.List(ctx, "run/step_0001/")
	require.NoError(t, err)
	assert.Equal(t, []string{"run/step_0001/density", "run/step_0001/manifest.json"}, names)

	all, err := ReadAll(ctx, store, "run/step_0001/density")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, all))

	require.NoError(t, store.Delete(ctx, "run/step_0001/density"))
	require.NoError(t, store.Delete(ctx, "run/step_0001/density"), "deleting twice is fine")
	_, err = store.Open(ctx, "run/step_0001/density")
	assert.ErrorIs(t, err, ErrNotFound)

	names, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"run/step_0001/manifest.json", "run/step_0002/manifest.json"}, names)
}

func TestLocalStore_Lifecycle(t *testing.T) {
	testStoreLifecycle(t, NewLocalStore(t.TempDir()))
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	testStoreLifecycle(t, NewMemoryStore())
}

func TestLocalStore_FailedWriteLeavesNoBlob(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("energy", fs.Fault{FailAfterBytes: 4})
	store := NewLocalStore(root, WithFileSystem(ffs))

	err := store.Put(ctx, "energy", []byte("more than four bytes"))
	require.ErrorIs(t, err, fs.ErrInjected)

	_, err = store.Open(ctx, "energy")
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary file is removed")
}

func TestLocalStore_FailedSyncKeepsOldBlob(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, NewLocalStore(root).Put(ctx, "phi", []byte("old")))

	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("phi", fs.Fault{FailAfterBytes: -1, FailOnSync: true})
	store := NewLocalStore(root, WithFileSystem(ffs))

	w, err := store.Create(ctx, "phi")
	require.NoError(t, err)
	_, err = w.Write([]byte("new"))
	require.NoError(t, err)
	assert.ErrorIs(t, w.Close(), fs.ErrInjected)

	got, err := ReadAll(ctx, store, "phi")
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	_, err = os.Stat(filepath.Join(root, "phi"))
	require.NoError(t, err)
}

func TestLocalStore_ListSkipsTemporaries(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	w, err := store.Create(ctx, "pending")
	require.NoError(t, err)
	defer w.Close()

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "absent"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestReadAll_Empty(t *testing.T) {
	ctx := context.Background()
	for name, store := range map[string]Store{
		"local":  NewLocalStore(t.TempDir()),
		"memory": NewMemoryStore(),
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "empty", nil))
			got, err := ReadAll(ctx, store, "empty")
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestMemoryStore_WriteAfterClose(t *testing.T) {
	store := NewMemoryStore()
	w, err := store.Create(context.Background(), "x")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.Equal(t, 1, store.Len())
}
