package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BlobStore {
	t.Helper()
	store, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestStoreReadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	original := []byte(`{"name":"left-pad","version":"1.3.0"}`)
	path, size, err := store.Store("snap-1", "manifest.json", original)
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))
	assert.Equal(t, filepath.Join(store.SnapshotDir("snap-1"), "manifest.json"+CompressedExt), path)

	got, err := store.Read(path)
	require.NoError(t, err)
	assert.Equal(t, original, got)

	// Same bytes via the logical-name accessor.
	got, err = store.ReadArtifact("snap-1", "manifest.json")
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestStoreRejectsEmptyIdentifiers(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.Store("", "manifest.json", []byte("x"))
	assert.Error(t, err)

	_, _, err = store.Store("snap-1", "", []byte("x"))
	assert.Error(t, err)
}

func TestReadMissingBlob(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ReadArtifact("snap-1", "tree.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlobMissing)
}

func TestReadCorruptBlob(t *testing.T) {
	store := newTestStore(t)

	path, _, err := store.Store("snap-1", "tree.json", []byte("payload"))
	require.NoError(t, err)

	// Truncate the gzip header so decompression fails.
	require.NoError(t, os.WriteFile(path, []byte("not gzip"), 0644))

	_, err = store.Read(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlobCorrupt)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.Store("snap-1", "manifest.json", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, store.Delete("snap-1"))
	// Second delete of the same snapshot must not error.
	require.NoError(t, store.Delete("snap-1"))

	_, err = store.ReadArtifact("snap-1", "manifest.json")
	assert.ErrorIs(t, err, ErrBlobMissing)
}

func TestSizeOfSumsAllArtifacts(t *testing.T) {
	store := newTestStore(t)

	_, sizeA, err := store.Store("snap-1", "manifest.json", []byte("aaaa"))
	require.NoError(t, err)
	_, sizeB, err := store.Store("snap-1", "tree.json", []byte("bbbbbbbb"))
	require.NoError(t, err)

	total, err := store.SizeOf("snap-1")
	require.NoError(t, err)
	assert.Equal(t, sizeA+sizeB, total)
}

func TestCleanupOrphans(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.Store("kept", "manifest.json", []byte("keep me"))
	require.NoError(t, err)
	_, _, err = store.Store("orphan", "manifest.json", []byte("remove me"))
	require.NoError(t, err)

	removed, err := store.CleanupOrphans(map[string]bool{"kept": true})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.ReadArtifact("kept", "manifest.json")
	assert.NoError(t, err)
	_, err = store.ReadArtifact("orphan", "manifest.json")
	assert.ErrorIs(t, err, ErrBlobMissing)
}

func TestCleanupOrphansSweepsTempFiles(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.Store("kept", "manifest.json", []byte("keep me"))
	require.NoError(t, err)

	// Simulate an interrupted write inside a live snapshot directory.
	stale := filepath.Join(store.SnapshotDir("kept"), "tree.json"+CompressedExt+tmpSuffix)
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0644))

	removed, err := store.CleanupOrphans(map[string]bool{"kept": true})
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err), "stale temp file should be swept")

	// The committed blob is untouched.
	data, err := store.ReadArtifact("kept", "manifest.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("keep me"), data)
}

func TestStoreOverwriteReplacesBlob(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.Store("snap-1", "manifest.json", []byte("first"))
	require.NoError(t, err)
	_, _, err = store.Store("snap-1", "manifest.json", []byte("second"))
	require.NoError(t, err)

	data, err := store.ReadArtifact("snap-1", "manifest.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}
