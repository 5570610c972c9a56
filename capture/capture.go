package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/depwatch/timemachine/internal/repository"
	"github.com/depwatch/timemachine/internal/storage"
	"github.com/depwatch/timemachine/lockfile"
	"github.com/depwatch/timemachine/models"
)

// ErrDebounced signals that a watch-triggered capture arrived inside the
// configured debounce window and was skipped. Not a failure; the caller
// simply tries again on the next trigger.
var ErrDebounced = errors.New("capture debounced")

// Logical artifact names stored per snapshot (before the compression
// extension is appended).
const (
	ArtifactManifest    = "package.json"
	ArtifactTree        = "dependency-tree.json"
	ArtifactPostinstall = "postinstall-manifest.json"
)

// TreeParser supplies the resolved dependency tree for a project. The
// production implementation is lockfile.Parser; tests substitute their own.
type TreeParser interface {
	ParseTree(projectPath string) ([]models.SnapshotDependency, []byte, error)
}

// Result is the outcome of a capture call.
type Result struct {
	Snapshot *models.ExecutionSnapshot
	// Deduplicated is true when an existing Completed snapshot with the
	// same lockfile hash was returned instead of creating a new one.
	Deduplicated bool
}

// Service builds snapshots from a project directory's current state.
// Captures for different projects may run concurrently; captures for the
// same project are serialized by a per-project mutex because the
// dedup-check-then-insert window is not atomic.
type Service struct {
	repo   *repository.Repository
	store  *storage.BlobStore
	parser TreeParser

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewService creates a capture service.
func NewService(repo *repository.Repository, store *storage.BlobStore, parser TreeParser) *Service {
	return &Service{
		repo:     repo,
		store:    store,
		parser:   parser,
		locks:    make(map[string]*sync.Mutex),
		limiters: make(map[string]*rate.Limiter),
	}
}

// projectLock returns the mutex serializing captures for one project path.
func (s *Service) projectLock(projectPath string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[projectPath]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[projectPath] = l
	return l
}

// allowTrigger applies the debounce window to watch-triggered captures.
// Manual captures always pass.
func (s *Service) allowTrigger(projectPath string, trigger models.TriggerSource, debounce time.Duration) bool {
	if trigger != models.TriggerLockfileChange || debounce <= 0 {
		return true
	}
	want := rate.Every(debounce)
	s.mu.Lock()
	limiter, ok := s.limiters[projectPath]
	if !ok {
		limiter = rate.NewLimiter(want, 1)
		s.limiters[projectPath] = limiter
	} else if limiter.Limit() != want {
		// Settings changed since the limiter was built; apply the new
		// window without waiting for a restart.
		limiter.SetLimit(want)
	}
	s.mu.Unlock()
	return limiter.Allow()
}

// Capture takes a point-in-time snapshot of the project's dependency state.
// The returned snapshot is Completed on success; any parse or storage error
// mid-capture leaves a Failed row behind rather than losing the attempt.
func (s *Service) Capture(projectPath string, trigger models.TriggerSource) (*Result, error) {
	projectPath = filepath.Clean(projectPath)

	settings, err := s.repo.GetSettings()
	if err != nil {
		return nil, err
	}
	debounce := time.Duration(settings.DebounceSeconds) * time.Second
	if !s.allowTrigger(projectPath, trigger, debounce) {
		logger.Debugf("capture for %s debounced (window %s)", projectPath, debounce)
		return nil, fmt.Errorf("%w: %s", ErrDebounced, projectPath)
	}

	lock := s.projectLock(projectPath)
	lock.Lock()
	defer lock.Unlock()

	lockType, lockPath, err := lockfile.Resolve(projectPath)
	if err != nil {
		return nil, err
	}

	var lockBytes []byte
	var lockHash string
	if lockType != models.LockfileNone {
		lockBytes, err = os.ReadFile(lockPath)
		if err != nil {
			return nil, fmt.Errorf("%w: read lockfile %s: %v", models.ErrParse, lockPath, err)
		}
		lockHash = lockfile.HashBytes(lockBytes)
	}

	var manifestBytes []byte
	var manifestHash string
	manifestPath := filepath.Join(projectPath, lockfile.ManifestName)
	if data, err := os.ReadFile(manifestPath); err == nil {
		manifestBytes = data
		manifestHash = lockfile.HashBytes(data)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: read manifest %s: %v", models.ErrParse, manifestPath, err)
	}

	// Dedup short-circuit: an unchanged lockfile means the existing
	// Completed snapshot is canonical. No storage I/O happens on this path.
	if lockHash != "" {
		existing, err := s.repo.FindCompletedByLockfileHash(projectPath, lockHash)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			logger.Debugf("capture for %s deduplicated against snapshot %s", projectPath, existing.ID)
			return &Result{Snapshot: existing, Deduplicated: true}, nil
		}
	}

	snapshot := &models.ExecutionSnapshot{
		ID:            uuid.NewString(),
		ProjectPath:   projectPath,
		Status:        models.SnapshotStatusCapturing,
		TriggerSource: trigger,
		LockfileType:  lockType,
		LockfileHash:  lockHash,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateSnapshot(snapshot); err != nil {
		return nil, err
	}

	completed, err := s.populate(snapshot, lockBytes, manifestBytes, manifestHash)
	if err != nil {
		if failErr := s.repo.FailSnapshot(snapshot.ID, err.Error()); failErr != nil {
			logger.Errorf("failed to record capture failure for %s: %v", snapshot.ID, failErr)
		}
		// Blobs written before the failure are orphans; sweep them now so
		// the directory does not linger until the next cleanup pass.
		_ = s.store.Delete(snapshot.ID)
		return nil, err
	}

	if err := s.repo.UpsertLockfileState(&models.LockfileState{
		ProjectPath:    projectPath,
		LockfileType:   lockType,
		LockfileHash:   lockHash,
		LastSnapshotID: completed.ID,
	}); err != nil {
		return nil, err
	}

	logger.Infof("captured snapshot %s for %s (%d dependencies, %d postinstall)",
		completed.ID, projectPath, completed.TotalDependencies, completed.PostinstallCount)
	return &Result{Snapshot: completed}, nil
}

// populate runs steps 4-5 of the capture algorithm: parse the tree, write
// compressed artifacts, bulk-insert dependency rows and flip the snapshot to
// Completed.
func (s *Service) populate(snapshot *models.ExecutionSnapshot, lockBytes, manifestBytes []byte, manifestHash string) (*models.ExecutionSnapshot, error) {
	deps, treeJSON, err := s.parser.ParseTree(snapshot.ProjectPath)
	if err != nil {
		return nil, err
	}

	postinstallManifest, err := buildPostinstallManifest(deps)
	if err != nil {
		return nil, err
	}

	type artifact struct {
		name string
		data []byte
	}
	artifacts := []artifact{
		{ArtifactTree, treeJSON},
		{ArtifactPostinstall, postinstallManifest},
	}
	if lockBytes != nil {
		artifacts = append(artifacts, artifact{lockfile.LockfileName(snapshot.LockfileType), lockBytes})
	}
	if manifestBytes != nil {
		artifacts = append(artifacts, artifact{ArtifactManifest, manifestBytes})
	}

	// Each artifact targets a distinct file, so the writes are independent
	// and run in parallel.
	var wg sync.WaitGroup
	var mu sync.Mutex
	var totalSize int64
	var writeErr error
	for _, a := range artifacts {
		wg.Add(1)
		go func(a artifact) {
			defer wg.Done()
			_, size, err := s.store.Store(snapshot.ID, a.name, a.data)
			mu.Lock()
			defer mu.Unlock()
			if err != nil && writeErr == nil {
				writeErr = err
			}
			totalSize += size
		}(a)
	}
	wg.Wait()
	if writeErr != nil {
		return nil, writeErr
	}

	if err := s.repo.BulkInsertDependencies(snapshot.ID, deps); err != nil {
		return nil, err
	}

	snapshot.DependencyTreeHash = lockfile.TreeHash(treeJSON)
	snapshot.PackageJSONHash = manifestHash
	snapshot.TotalDependencies = len(deps)
	snapshot.DirectDependencies = lo.CountBy(deps, func(d models.SnapshotDependency) bool { return d.IsDirect })
	snapshot.DevDependencies = lo.CountBy(deps, func(d models.SnapshotDependency) bool { return d.IsDev })
	snapshot.PostinstallCount = lo.CountBy(deps, func(d models.SnapshotDependency) bool { return d.HasPostinstall })
	snapshot.StoragePath = s.store.SnapshotDir(snapshot.ID)
	snapshot.CompressedSize = totalSize

	if err := s.repo.CompleteSnapshot(snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// buildPostinstallManifest encodes the postinstall scripts present in the
// dependency set as a standalone artifact, so script text can be inspected
// without decompressing the full tree.
func buildPostinstallManifest(deps []models.SnapshotDependency) ([]byte, error) {
	type entry struct {
		Name    string `json:"name"`
		Version string `json:"version"`
		Script  string `json:"script,omitempty"`
	}
	entries := make([]entry, 0)
	for _, dep := range deps {
		if dep.HasPostinstall {
			entries = append(entries, entry{Name: dep.Name, Version: dep.Version, Script: dep.PostinstallScript})
		}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode postinstall manifest: %w", err)
	}
	return data, nil
}
