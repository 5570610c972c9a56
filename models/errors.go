package models

import "errors"

// Error taxonomy shared across the time-machine services. Callers branch on
// these with errors.Is; every concrete failure wraps one of them with a
// human-readable message.
var (
	// ErrNotFound marks an unknown snapshot, insight, or project id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks a malformed path, unsupported lockfile, or a
	// value that fails enum mapping.
	ErrInvalidInput = errors.New("invalid input")

	// ErrParse marks an unreadable manifest, lockfile, or dependency tree.
	ErrParse = errors.New("parse error")

	// ErrIntegrity marks a hash mismatch during replay where the caller
	// required an exact match.
	ErrIntegrity = errors.New("integrity error")

	// ErrSnapshotNotReady marks a read against a snapshot still in the
	// Capturing state. Callers retry later rather than consuming partial
	// data.
	ErrSnapshotNotReady = errors.New("snapshot not ready")
)
