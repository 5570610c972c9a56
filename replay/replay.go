package replay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/flanksource/commons/logger"
	"github.com/samber/lo"

	"github.com/depwatch/timemachine/internal/repository"
	"github.com/depwatch/timemachine/lockfile"
	"github.com/depwatch/timemachine/models"
)

// Verdict is the outcome category of a replay verification.
type Verdict string

const (
	VerdictMatch                  Verdict = "match"
	VerdictMismatch               Verdict = "mismatch"
	VerdictSnapshotNotFound       Verdict = "snapshot_not_found"
	VerdictProjectLockfileMissing Verdict = "project_lockfile_missing"
)

// Result reports whether a stored snapshot still matches the project's live
// lockfile. Reasons are populated on mismatch; DependencyChanges is the
// optional enrichment naming the packages that drove the mismatch.
type Result struct {
	Verdict           Verdict                   `json:"verdict" pretty:"label=Verdict"`
	SnapshotID        string                    `json:"snapshot_id" pretty:"label=Snapshot"`
	ProjectPath       string                    `json:"project_path" pretty:"label=Project"`
	StoredHash        string                    `json:"stored_hash,omitempty" pretty:"hide"`
	CurrentHash       string                    `json:"current_hash,omitempty" pretty:"hide"`
	Reasons           []string                  `json:"reasons,omitempty" pretty:"label=Reasons"`
	DependencyChanges []models.DependencyChange `json:"dependency_changes,omitempty"`
}

// Service verifies stored snapshots against live project state. Read-only;
// safe to run concurrently with captures of other projects.
type Service struct {
	repo   *repository.Repository
	parser interface {
		ParseTree(projectPath string) ([]models.SnapshotDependency, []byte, error)
	}
}

// NewService creates a replay service. The parser is only used for mismatch
// enrichment and may be the same lockfile parser the capture service uses.
func NewService(repo *repository.Repository, parser interface {
	ParseTree(projectPath string) ([]models.SnapshotDependency, []byte, error)
}) *Service {
	return &Service{repo: repo, parser: parser}
}

// Verify re-reads the project's current lockfile, hashes it with the same
// canonicalization capture uses (none: SHA-256 over raw bytes), and compares
// against the stored snapshot's hash. A hash match means re-installing the
// historical lockfile would reproduce the recorded dependency state, without
// executing any package manager.
//
// When explain is true and the hashes differ, the current tree is re-parsed
// and diffed so the result names the dependencies that drove the mismatch.
func (s *Service) Verify(snapshotID, projectPath string, explain bool) (*Result, error) {
	projectPath = filepath.Clean(projectPath)
	result := &Result{SnapshotID: snapshotID, ProjectPath: projectPath}

	snapshot, err := s.repo.GetSnapshot(snapshotID)
	if errors.Is(err, models.ErrNotFound) {
		result.Verdict = VerdictSnapshotNotFound
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	if !snapshot.IsDiffable() {
		return nil, fmt.Errorf("%w: snapshot %s is %s", models.ErrSnapshotNotReady, snapshotID, snapshot.Status)
	}
	result.StoredHash = snapshot.LockfileHash

	lockType, lockPath, err := lockfile.Resolve(projectPath)
	if err != nil {
		return nil, err
	}
	if lockType == models.LockfileNone {
		result.Verdict = VerdictProjectLockfileMissing
		result.Reasons = append(result.Reasons, "project has no lockfile")
		return result, nil
	}

	current, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read lockfile %s: %v", models.ErrParse, lockPath, err)
	}
	result.CurrentHash = lockfile.HashBytes(current)

	if lockType != snapshot.LockfileType {
		result.Verdict = VerdictMismatch
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("lockfile type changed from %s to %s", snapshot.LockfileType, lockType))
	}

	if result.CurrentHash == snapshot.LockfileHash {
		if result.Verdict != VerdictMismatch {
			result.Verdict = VerdictMatch
			logger.Debugf("replay of snapshot %s matched lockfile %s", snapshotID, lockPath)
		}
		return result, nil
	}

	result.Verdict = VerdictMismatch
	result.Reasons = append(result.Reasons, "lockfile content hash differs from snapshot")

	if explain && s.parser != nil {
		if err := s.explainMismatch(snapshot, projectPath, result); err != nil {
			// Enrichment is best-effort; the boolean verdict stands.
			logger.Warnf("failed to enrich replay mismatch for %s: %v", snapshotID, err)
		}
	}

	return result, nil
}

// explainMismatch re-parses the live tree and diffs it against the stored
// dependency list, attaching the non-Unchanged entries.
func (s *Service) explainMismatch(snapshot *models.ExecutionSnapshot, projectPath string, result *Result) error {
	storedDeps, err := s.repo.ListDependencies(snapshot.ID)
	if err != nil {
		return err
	}
	currentDeps, _, err := s.parser.ParseTree(projectPath)
	if err != nil {
		return err
	}

	for _, change := range compareDependencies(storedDeps, currentDeps) {
		result.DependencyChanges = append(result.DependencyChanges, change)
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("%s: %s", change.Name, change.ChangeType))
	}
	return nil
}

// compareDependencies reports the packages that differ between the stored
// list and the live tree, ordered by name. Unchanged packages are omitted.
func compareDependencies(stored, current []models.SnapshotDependency) []models.DependencyChange {
	storedByName := lo.KeyBy(stored, func(d models.SnapshotDependency) string { return d.Name })
	currentByName := lo.KeyBy(current, func(d models.SnapshotDependency) string { return d.Name })

	names := lo.Keys(storedByName)
	for name := range currentByName {
		if _, ok := storedByName[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var changes []models.DependencyChange
	for _, name := range names {
		old, inStored := storedByName[name]
		live, inCurrent := currentByName[name]
		switch {
		case inCurrent && !inStored:
			changes = append(changes, models.DependencyChange{
				Name: name, ChangeType: models.ChangeAdded, NewVersion: live.Version,
			})
		case inStored && !inCurrent:
			changes = append(changes, models.DependencyChange{
				Name: name, ChangeType: models.ChangeRemoved, OldVersion: old.Version,
			})
		case old.Version != live.Version:
			changes = append(changes, models.DependencyChange{
				Name: name, ChangeType: models.ChangeUpdated, OldVersion: old.Version, NewVersion: live.Version,
			})
		}
	}
	return changes
}
