package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSnapshotStatus(t *testing.T) {
	for _, status := range []SnapshotStatus{SnapshotStatusCapturing, SnapshotStatusCompleted, SnapshotStatusFailed} {
		parsed, err := ParseSnapshotStatus(status.String())
		require.NoError(t, err)
		assert.Equal(t, status, parsed)
	}

	_, err := ParseSnapshotStatus("pending")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseTriggerSource(t *testing.T) {
	for _, trigger := range []TriggerSource{TriggerLockfileChange, TriggerManual} {
		parsed, err := ParseTriggerSource(trigger.String())
		require.NoError(t, err)
		assert.Equal(t, trigger, parsed)
	}

	_, err := ParseTriggerSource("cron")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseLockfileType(t *testing.T) {
	for _, lt := range []LockfileType{LockfileNpm, LockfilePnpm, LockfileYarn, LockfileBun} {
		parsed, err := ParseLockfileType(lt.String())
		require.NoError(t, err)
		assert.Equal(t, lt, parsed)
	}

	// Empty string is the valid "no lockfile" value, not an error.
	parsed, err := ParseLockfileType("")
	require.NoError(t, err)
	assert.Equal(t, LockfileNone, parsed)

	_, err = ParseLockfileType("cargo")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestIsDiffable(t *testing.T) {
	tests := []struct {
		status   SnapshotStatus
		diffable bool
	}{
		{SnapshotStatusCapturing, false},
		{SnapshotStatusCompleted, true},
		{SnapshotStatusFailed, false},
	}
	for _, tt := range tests {
		snap := &ExecutionSnapshot{Status: tt.status}
		assert.Equal(t, tt.diffable, snap.IsDiffable(), "status %s", tt.status)
	}
}
