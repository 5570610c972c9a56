package replay

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depwatch/timemachine/capture"
	"github.com/depwatch/timemachine/internal/repository"
	"github.com/depwatch/timemachine/internal/storage"
	"github.com/depwatch/timemachine/lockfile"
	"github.com/depwatch/timemachine/models"
)

const lockContent = `{
	"lockfileVersion": 3,
	"packages": {
		"node_modules/left-pad": {"version": "1.3.0"},
		"node_modules/lodash": {"version": "4.17.21"}
	}
}`

func newFixture(t *testing.T) (*Service, *capture.Service, string) {
	t.Helper()
	repo, err := repository.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	store, err := storage.NewBlobStore(t.TempDir())
	require.NoError(t, err)

	parser := lockfile.NewParser()
	captures := capture.NewService(repo, store, parser)

	project := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(project, "package.json"), []byte(`{"dependencies":{"left-pad":"^1.3.0"}}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(project, "package-lock.json"), []byte(lockContent), 0644))

	return NewService(repo, parser), captures, project
}

func captureSnapshot(t *testing.T, captures *capture.Service, project string) *models.ExecutionSnapshot {
	t.Helper()
	result, err := captures.Capture(project, models.TriggerManual)
	require.NoError(t, err)
	return result.Snapshot
}

func TestVerifyMatch(t *testing.T) {
	svc, captures, project := newFixture(t)
	snap := captureSnapshot(t, captures, project)

	result, err := svc.Verify(snap.ID, project, false)
	require.NoError(t, err)
	assert.Equal(t, VerdictMatch, result.Verdict)
	assert.Equal(t, result.StoredHash, result.CurrentHash)
	assert.Empty(t, result.Reasons)
}

func TestVerifySingleByteChangeMismatches(t *testing.T) {
	svc, captures, project := newFixture(t)
	snap := captureSnapshot(t, captures, project)

	// Flip one character of the lockfile; semantically meaningless, but the
	// hash comparison is byte-exact.
	changed := strings.Replace(lockContent, "4.17.21", "4.17.22", 1)
	require.NoError(t, os.WriteFile(filepath.Join(project, "package-lock.json"), []byte(changed), 0644))

	result, err := svc.Verify(snap.ID, project, false)
	require.NoError(t, err)
	assert.Equal(t, VerdictMismatch, result.Verdict)
	assert.NotEqual(t, result.StoredHash, result.CurrentHash)
	assert.NotEmpty(t, result.Reasons)
	assert.Empty(t, result.DependencyChanges, "no enrichment without explain")
}

func TestVerifyExplainNamesChangedDependencies(t *testing.T) {
	svc, captures, project := newFixture(t)
	snap := captureSnapshot(t, captures, project)

	changed := strings.Replace(lockContent, `"node_modules/lodash": {"version": "4.17.21"}`,
		`"node_modules/lodash": {"version": "4.17.22"},
		"node_modules/minimist": {"version": "1.2.8"}`, 1)
	require.NoError(t, os.WriteFile(filepath.Join(project, "package-lock.json"), []byte(changed), 0644))

	result, err := svc.Verify(snap.ID, project, true)
	require.NoError(t, err)
	assert.Equal(t, VerdictMismatch, result.Verdict)
	require.Len(t, result.DependencyChanges, 2)

	// Ordered by name: lodash update before minimist addition.
	assert.Equal(t, "lodash", result.DependencyChanges[0].Name)
	assert.Equal(t, models.ChangeUpdated, result.DependencyChanges[0].ChangeType)
	assert.Equal(t, "4.17.21", result.DependencyChanges[0].OldVersion)
	assert.Equal(t, "4.17.22", result.DependencyChanges[0].NewVersion)

	assert.Equal(t, "minimist", result.DependencyChanges[1].Name)
	assert.Equal(t, models.ChangeAdded, result.DependencyChanges[1].ChangeType)
}

func TestVerifyUnknownSnapshot(t *testing.T) {
	svc, _, project := newFixture(t)

	result, err := svc.Verify("ghost", project, false)
	require.NoError(t, err, "unknown snapshot is a verdict, not an error")
	assert.Equal(t, VerdictSnapshotNotFound, result.Verdict)
}

func TestVerifyProjectLockfileMissing(t *testing.T) {
	svc, captures, project := newFixture(t)
	snap := captureSnapshot(t, captures, project)

	require.NoError(t, os.Remove(filepath.Join(project, "package-lock.json")))

	result, err := svc.Verify(snap.ID, project, false)
	require.NoError(t, err)
	assert.Equal(t, VerdictProjectLockfileMissing, result.Verdict)
}

func TestVerifyLockfileTypeChanged(t *testing.T) {
	svc, captures, project := newFixture(t)
	snap := captureSnapshot(t, captures, project)

	// A pnpm lockfile outranks package-lock.json in resolution order, so the
	// project now resolves to a different lockfile type.
	require.NoError(t, os.WriteFile(filepath.Join(project, "pnpm-lock.yaml"), []byte("lockfileVersion: '6.0'\n"), 0644))

	result, err := svc.Verify(snap.ID, project, false)
	require.NoError(t, err)
	assert.Equal(t, VerdictMismatch, result.Verdict)
	require.NotEmpty(t, result.Reasons)
	assert.Contains(t, result.Reasons[0], "lockfile type changed")
}

func TestVerifyRejectsCapturingSnapshot(t *testing.T) {
	repo, err := repository.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.CreateSnapshot(&models.ExecutionSnapshot{
		ID:          "pending",
		ProjectPath: "/proj/demo",
		Status:      models.SnapshotStatusCapturing,
	}))

	svc := NewService(repo, lockfile.NewParser())
	_, err = svc.Verify("pending", t.TempDir(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrSnapshotNotReady)
}
