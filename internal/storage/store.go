package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/flanksource/commons/logger"
	"github.com/klauspost/compress/gzip"
)

// Compression level is fixed at a moderate setting: artifacts are read back
// interactively for diff and replay, so speed wins over ratio.
const compressionLevel = 4

// CompressedExt is appended to every stored artifact name.
const CompressedExt = ".gz"

const tmpSuffix = ".tmp"

// BlobStore persists compressed artifacts for snapshots. All blobs for one
// snapshot live under a directory named by the snapshot id; each logical
// artifact is an independently compressed file so any one of them can be
// read without touching the others.
type BlobStore struct {
	baseDir string
}

// NewBlobStore creates a blob store rooted at baseDir, creating the
// directory if needed.
func NewBlobStore(baseDir string) (*BlobStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("blob store base directory must not be empty")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create blob store directory %q: %v", ErrPermission, baseDir, err)
	}
	return &BlobStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store.
func (s *BlobStore) BaseDir() string { return s.baseDir }

// SnapshotDir returns the directory holding a snapshot's blobs.
func (s *BlobStore) SnapshotDir(snapshotID string) string {
	return filepath.Join(s.baseDir, snapshotID)
}

// Store compresses data and writes it as <logicalName>.gz under the
// snapshot's directory. The write goes to a temp name first and is renamed
// into place, so a crash never leaves a partial blob visible under the
// final path. Returns the final path and the compressed size.
func (s *BlobStore) Store(snapshotID, logicalName string, data []byte) (string, int64, error) {
	if snapshotID == "" || logicalName == "" {
		return "", 0, fmt.Errorf("snapshot id and logical name must not be empty")
	}

	dir := s.SnapshotDir(snapshotID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("%w: create snapshot directory %q: %v", ErrPermission, dir, err)
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, compressionLevel)
	if err != nil {
		return "", 0, fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return "", 0, fmt.Errorf("compress %s: %w", logicalName, err)
	}
	if err := zw.Close(); err != nil {
		return "", 0, fmt.Errorf("finish compressing %s: %w", logicalName, err)
	}

	finalPath := filepath.Join(dir, logicalName+CompressedExt)
	tmpPath := finalPath + tmpSuffix

	if err := os.WriteFile(tmpPath, buf.Bytes(), 0644); err != nil {
		return "", 0, fmt.Errorf("%w: write %q: %v", ErrPermission, tmpPath, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("%w: rename %q into place: %v", ErrPermission, tmpPath, err)
	}

	// Write-then-verify: the capture service only marks a snapshot
	// Completed once every blob is confirmed on disk.
	info, err := os.Stat(finalPath)
	if err != nil {
		return "", 0, fmt.Errorf("%w: verify %q after write: %v", ErrPermission, finalPath, err)
	}

	return finalPath, info.Size(), nil
}

// Read decompresses and returns the blob at path.
func (s *BlobStore) Read(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrBlobMissing, path)
		}
		return nil, fmt.Errorf("%w: read %q: %v", ErrPermission, path, err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBlobCorrupt, path, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBlobCorrupt, path, err)
	}
	return data, nil
}

// ReadArtifact reads a logical artifact of a snapshot by name.
func (s *BlobStore) ReadArtifact(snapshotID, logicalName string) ([]byte, error) {
	return s.Read(filepath.Join(s.SnapshotDir(snapshotID), logicalName+CompressedExt))
}

// Delete removes a snapshot's entire blob directory. Deleting a snapshot
// that was never stored is not an error.
func (s *BlobStore) Delete(snapshotID string) error {
	if snapshotID == "" {
		return fmt.Errorf("snapshot id must not be empty")
	}
	dir := s.SnapshotDir(snapshotID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: remove %q: %v", ErrPermission, dir, err)
	}
	return nil
}

// SizeOf returns the total compressed byte size of a snapshot's blobs.
func (s *BlobStore) SizeOf(snapshotID string) (int64, error) {
	dir := s.SnapshotDir(snapshotID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: snapshot directory %q", ErrBlobMissing, dir)
		}
		return 0, fmt.Errorf("%w: read %q: %v", ErrPermission, dir, err)
	}

	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return 0, fmt.Errorf("%w: stat %q: %v", ErrPermission, entry.Name(), err)
		}
		total += info.Size()
	}
	return total, nil
}

// CleanupOrphans removes snapshot directories that have no corresponding
// metadata row (ids not in validIDs) and sweeps stray .tmp files left by
// interrupted writes. It is opportunistic: it never runs ahead of metadata
// deletion and reports how many directories it removed.
func (s *BlobStore) CleanupOrphans(validIDs map[string]bool) (int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return 0, fmt.Errorf("%w: read blob store %q: %v", ErrPermission, s.baseDir, err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		if validIDs[id] {
			s.sweepTempFiles(s.SnapshotDir(id))
			continue
		}
		dir := s.SnapshotDir(id)
		if err := os.RemoveAll(dir); err != nil {
			logger.Warnf("failed to remove orphaned snapshot directory %s: %v", dir, err)
			continue
		}
		logger.Debugf("removed orphaned snapshot directory %s", dir)
		removed++
	}
	return removed, nil
}

// sweepTempFiles deletes .tmp leftovers from interrupted writes. Blobs under
// the final name are never touched.
func (s *BlobStore) sweepTempFiles(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), tmpSuffix) {
			continue
		}
		stale := filepath.Join(dir, entry.Name())
		if err := os.Remove(stale); err == nil {
			logger.Debugf("swept stale temp blob %s", stale)
		}
	}
}
