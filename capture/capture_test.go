package capture

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depwatch/timemachine/internal/repository"
	"github.com/depwatch/timemachine/internal/storage"
	"github.com/depwatch/timemachine/lockfile"
	"github.com/depwatch/timemachine/models"
)

func newTestService(t *testing.T) (*Service, *repository.Repository, *storage.BlobStore) {
	t.Helper()
	repo, err := repository.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	store, err := storage.NewBlobStore(t.TempDir())
	require.NoError(t, err)

	return NewService(repo, store, lockfile.NewParser()), repo, store
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

// Fresh install: two direct dependencies, three transitive, none with
// postinstall scripts.
func freshInstallProject(t *testing.T) string {
	return writeProject(t, map[string]string{
		"package.json": `{
			"name": "demo",
			"dependencies": {"express": "^4.18.0", "axios": "^1.6.0"}
		}`,
		"package-lock.json": `{
			"lockfileVersion": 3,
			"packages": {
				"": {"name": "demo"},
				"node_modules/express": {"version": "4.18.2"},
				"node_modules/axios": {"version": "1.6.0"},
				"node_modules/body-parser": {"version": "1.20.1"},
				"node_modules/follow-redirects": {"version": "1.15.0"},
				"node_modules/qs": {"version": "6.11.0"}
			}
		}`,
	})
}

func TestCaptureFreshInstall(t *testing.T) {
	svc, _, store := newTestService(t)
	project := freshInstallProject(t)

	result, err := svc.Capture(project, models.TriggerManual)
	require.NoError(t, err)
	require.False(t, result.Deduplicated)

	snap := result.Snapshot
	assert.Equal(t, models.SnapshotStatusCompleted, snap.Status)
	assert.Equal(t, models.LockfileNpm, snap.LockfileType)
	assert.Equal(t, 5, snap.TotalDependencies)
	assert.Equal(t, 2, snap.DirectDependencies)
	assert.Equal(t, 0, snap.PostinstallCount)
	assert.NotEmpty(t, snap.LockfileHash)
	assert.NotEmpty(t, snap.DependencyTreeHash)
	assert.NotEmpty(t, snap.PackageJSONHash)
	assert.Greater(t, snap.CompressedSize, int64(0))

	// All four artifacts are on disk and readable.
	for _, name := range []string{ArtifactTree, ArtifactPostinstall, ArtifactManifest, "package-lock.json"} {
		data, err := store.ReadArtifact(snap.ID, name)
		require.NoError(t, err, "artifact %s", name)
		assert.NotEmpty(t, data)
	}
}

func TestCaptureDeduplicates(t *testing.T) {
	svc, _, store := newTestService(t)
	project := freshInstallProject(t)

	first, err := svc.Capture(project, models.TriggerManual)
	require.NoError(t, err)

	// Unchanged lockfile: the same snapshot comes back, no new blobs.
	second, err := svc.Capture(project, models.TriggerManual)
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.Snapshot.ID, second.Snapshot.ID)

	entries, err := os.ReadDir(store.BaseDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "dedup must not create a second blob directory")
}

func TestCaptureNewSnapshotOnLockfileChange(t *testing.T) {
	svc, repo, _ := newTestService(t)
	project := freshInstallProject(t)

	first, err := svc.Capture(project, models.TriggerManual)
	require.NoError(t, err)

	// Bump a version in the lockfile.
	lockPath := filepath.Join(project, "package-lock.json")
	data, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	changed := strings.Replace(string(data), `"1.6.0"`, `"1.6.1"`, 1)
	require.NotEqual(t, string(data), changed)
	require.NoError(t, os.WriteFile(lockPath, []byte(changed), 0644))

	second, err := svc.Capture(project, models.TriggerManual)
	require.NoError(t, err)
	assert.False(t, second.Deduplicated)
	assert.NotEqual(t, first.Snapshot.ID, second.Snapshot.ID)

	// Lockfile state cursor points at the newest snapshot.
	state, err := repo.GetLockfileState(project)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, second.Snapshot.ID, state.LastSnapshotID)
	assert.Equal(t, second.Snapshot.LockfileHash, state.LockfileHash)
}

func TestCaptureWithoutLockfile(t *testing.T) {
	svc, _, _ := newTestService(t)
	project := writeProject(t, map[string]string{
		"package.json": `{"name": "bare", "dependencies": {"left-pad": "^1.3.0"}}`,
	})

	result, err := svc.Capture(project, models.TriggerManual)
	require.NoError(t, err)
	snap := result.Snapshot
	assert.Equal(t, models.SnapshotStatusCompleted, snap.Status)
	assert.Equal(t, models.LockfileNone, snap.LockfileType)
	assert.Empty(t, snap.LockfileHash)
	assert.Equal(t, 0, snap.TotalDependencies)

	// Two identical no-lockfile captures both produce snapshots: dedup only
	// applies when a lockfile hash exists.
	second, err := svc.Capture(project, models.TriggerManual)
	require.NoError(t, err)
	assert.False(t, second.Deduplicated)
	assert.NotEqual(t, snap.ID, second.Snapshot.ID)
}

func TestCaptureBrokenLockfileLeavesFailedRow(t *testing.T) {
	svc, repo, store := newTestService(t)
	project := writeProject(t, map[string]string{
		"package-lock.json": `{"packages": this is not json`,
	})

	_, err := svc.Capture(project, models.TriggerManual)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrParse)

	// The attempt is recorded as a Failed snapshot, not lost.
	items, err := repo.ListSnapshots(models.SnapshotFilter{ProjectPath: project})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.SnapshotStatusFailed, items[0].Status)

	failed, err := repo.GetSnapshot(items[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, failed.ErrorMessage)

	// No blob directory lingers for the failed attempt.
	entries, err := os.ReadDir(store.BaseDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCaptureInvalidProjectPath(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Capture(filepath.Join(t.TempDir(), "missing"), models.TriggerManual)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestWatchTriggerDebounce(t *testing.T) {
	svc, repo, _ := newTestService(t)
	project := freshInstallProject(t)

	// Default settings carry a 30s debounce window.
	first, err := svc.Capture(project, models.TriggerLockfileChange)
	require.NoError(t, err)
	require.NotNil(t, first.Snapshot)

	_, err = svc.Capture(project, models.TriggerLockfileChange)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDebounced))

	// Manual captures bypass the window entirely.
	manual, err := svc.Capture(project, models.TriggerManual)
	require.NoError(t, err)
	assert.True(t, manual.Deduplicated)

	// Disabling the debounce lets watch triggers through back to back.
	settings, err := repo.GetSettings()
	require.NoError(t, err)
	settings.DebounceSeconds = 0
	require.NoError(t, repo.SaveSettings(settings))

	other := freshInstallProject(t)
	_, err = svc.Capture(other, models.TriggerLockfileChange)
	require.NoError(t, err)
	result, err := svc.Capture(other, models.TriggerLockfileChange)
	require.NoError(t, err)
	assert.True(t, result.Deduplicated)
}

func TestDebounceWindowFollowsSettingsChange(t *testing.T) {
	svc, _, _ := newTestService(t)
	project := "/proj/watched"

	// First trigger consumes the token under a wide window; the second is
	// held back.
	require.True(t, svc.allowTrigger(project, models.TriggerLockfileChange, time.Hour))
	require.False(t, svc.allowTrigger(project, models.TriggerLockfileChange, time.Hour))

	// Shrinking the window must take effect on the existing limiter, not
	// only for projects seen after the change. Tokens accrue at the new
	// rate from the call onward.
	assert.False(t, svc.allowTrigger(project, models.TriggerLockfileChange, 100*time.Millisecond))
	time.Sleep(150 * time.Millisecond)
	assert.True(t, svc.allowTrigger(project, models.TriggerLockfileChange, 100*time.Millisecond))

	// Widening it again holds the next trigger back once more.
	assert.False(t, svc.allowTrigger(project, models.TriggerLockfileChange, time.Hour))
}

func TestCapturePostinstallCount(t *testing.T) {
	svc, repo, _ := newTestService(t)
	project := writeProject(t, map[string]string{
		"package.json": `{"dependencies": {"event-stream": "^3.3.0"}}`,
		"package-lock.json": `{
			"lockfileVersion": 3,
			"packages": {
				"node_modules/event-stream": {"version": "3.3.6", "hasInstallScript": true},
				"node_modules/map-stream": {"version": "0.1.0"}
			}
		}`,
		"node_modules/event-stream/package.json": `{
			"scripts": {"postinstall": "node ./flatmap.js"}
		}`,
	})

	result, err := svc.Capture(project, models.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Snapshot.PostinstallCount)

	deps, err := repo.ListDependencies(result.Snapshot.ID)
	require.NoError(t, err)
	require.Len(t, deps, 2)
	es := deps[0]
	assert.Equal(t, "event-stream", es.Name)
	assert.True(t, es.HasPostinstall)
	assert.Equal(t, "node ./flatmap.js", es.PostinstallScript)
}
