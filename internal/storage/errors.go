package storage

import "errors"

// Storage failures are typed so callers can distinguish a blob that was
// never written from one that was truncated or damaged, and both from plain
// OS-level trouble. None of these are retried here; retry policy belongs to
// the caller.
var (
	// ErrBlobMissing means the requested path has no blob at all.
	ErrBlobMissing = errors.New("blob not found")

	// ErrBlobCorrupt means the blob exists but cannot be decompressed.
	ErrBlobCorrupt = errors.New("blob corrupt")

	// ErrPermission wraps permission and other OS-level failures.
	ErrPermission = errors.New("storage permission error")
)
