package lockfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depwatch/timemachine/models"
)

func TestHashBytesDeterministic(t *testing.T) {
	data := []byte("lockfileVersion: '6.0'\n")
	assert.Equal(t, HashBytes(data), HashBytes(data))

	// Single-byte change flips the digest.
	flipped := append([]byte(nil), data...)
	flipped[0] ^= 0x01
	assert.NotEqual(t, HashBytes(data), HashBytes(flipped))

	// Hex-encoded SHA-256.
	assert.Len(t, HashBytes(data), 64)
}

func TestTreeHashStableAcrossRebuilds(t *testing.T) {
	deps := []models.SnapshotDependency{
		{Name: "axios", Version: "1.6.0", IsDirect: true},
		{Name: "follow-redirects", Version: "1.15.0"},
	}

	first, err := BuildTreeJSON(models.LockfileNpm, deps)
	require.NoError(t, err)
	second, err := BuildTreeJSON(models.LockfileNpm, deps)
	require.NoError(t, err)

	assert.Equal(t, TreeHash(first), TreeHash(second))
}

func TestTreeHashSensitiveToContent(t *testing.T) {
	base := []models.SnapshotDependency{{Name: "axios", Version: "1.6.0"}}
	bumped := []models.SnapshotDependency{{Name: "axios", Version: "1.6.1"}}

	baseJSON, err := BuildTreeJSON(models.LockfileNpm, base)
	require.NoError(t, err)
	bumpedJSON, err := BuildTreeJSON(models.LockfileNpm, bumped)
	require.NoError(t, err)

	assert.NotEqual(t, TreeHash(baseJSON), TreeHash(bumpedJSON))
}
