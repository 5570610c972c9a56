package diffengine

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/samber/lo"

	"github.com/depwatch/timemachine/internal/repository"
	"github.com/depwatch/timemachine/models"
)

// Engine computes structured deltas between two snapshots. It is read-only
// with respect to snapshots; the diff cache is a pure memoization layer
// where concurrent writers for the same pair may race harmlessly.
type Engine struct {
	repo *repository.Repository
}

// NewEngine creates a diff engine.
func NewEngine(repo *repository.Repository) *Engine {
	return &Engine{repo: repo}
}

// Diff compares snapshot B (newer/target) against snapshot A (older/base).
// Note the asymmetry: Diff(A,B) is not Diff(B,A) with fields swapped,
// because Added and Removed invert between the two directions.
func (e *Engine) Diff(aID, bID string) (*models.SnapshotDiff, error) {
	if aID == bID {
		return nil, fmt.Errorf("%w: cannot diff snapshot %s against itself", models.ErrInvalidInput, aID)
	}

	// Cache hits are only valid while both snapshots exist; the existence
	// checks below double as the staleness guard.
	snapA, err := e.repo.GetSnapshot(aID)
	if err != nil {
		return nil, err
	}
	snapB, err := e.repo.GetSnapshot(bID)
	if err != nil {
		return nil, err
	}
	if !snapA.IsDiffable() {
		return nil, fmt.Errorf("%w: snapshot %s is %s", models.ErrSnapshotNotReady, aID, snapA.Status)
	}
	if !snapB.IsDiffable() {
		return nil, fmt.Errorf("%w: snapshot %s is %s", models.ErrSnapshotNotReady, bID, snapB.Status)
	}

	if cached, err := e.repo.GetCachedDiff(aID, bID); err != nil {
		return nil, err
	} else if cached != "" {
		var diff models.SnapshotDiff
		if err := json.Unmarshal([]byte(cached), &diff); err == nil {
			logger.Debugf("diff cache hit for (%s,%s)", aID, bID)
			return &diff, nil
		}
		// A cache row that fails to decode is recomputed and overwritten.
		logger.Warnf("discarding undecodable diff cache row for (%s,%s)", aID, bID)
	}

	depsA, err := e.repo.ListDependencies(aID)
	if err != nil {
		return nil, err
	}
	depsB, err := e.repo.ListDependencies(bID)
	if err != nil {
		return nil, err
	}

	diff := Compute(snapA, snapB, depsA, depsB)

	if data, err := json.Marshal(diff); err == nil {
		if err := e.repo.PutCachedDiff(aID, bID, string(data)); err != nil {
			logger.Warnf("failed to cache diff for (%s,%s): %v", aID, bID, err)
		}
	}

	return diff, nil
}

// Compute builds the diff from already-loaded snapshots and dependency
// lists. Pure function; exported for the insight aggregator and tests.
func Compute(snapA, snapB *models.ExecutionSnapshot, depsA, depsB []models.SnapshotDependency) *models.SnapshotDiff {
	mapA := lo.KeyBy(depsA, func(d models.SnapshotDependency) string { return d.Name })
	mapB := lo.KeyBy(depsB, func(d models.SnapshotDependency) string { return d.Name })

	names := lo.Keys(mapA)
	for name := range mapB {
		if _, inA := mapA[name]; !inA {
			names = append(names, name)
		}
	}
	// Output ordering is a contract: package name ascending, so diffs are
	// reproducible.
	sort.Strings(names)

	diff := &models.SnapshotDiff{
		SnapshotAID:         snapA.ID,
		SnapshotBID:         snapB.ID,
		LockfileTypeChanged: snapA.LockfileType != snapB.LockfileType,
		OldLockfileType:     snapA.LockfileType,
		NewLockfileType:     snapB.LockfileType,
		DependencyChanges:   make([]models.DependencyChange, 0, len(names)),
		PostinstallChanges:  make([]models.PostinstallChange, 0),
		ComputedAt:          time.Now().UTC(),
	}

	for _, name := range names {
		depA, inA := mapA[name]
		depB, inB := mapB[name]

		switch {
		case inB && !inA:
			diff.Summary.Added++
			diff.DependencyChanges = append(diff.DependencyChanges, models.DependencyChange{
				Name:       name,
				ChangeType: models.ChangeAdded,
				NewVersion: depB.Version,
				IsDirect:   depB.IsDirect,
				IsDev:      depB.IsDev,
				NewPostinstall: depB.PostinstallScript,
				NewIntegrity:   depB.IntegrityHash,
			})
			if depB.HasPostinstall {
				diff.Summary.PostinstallAdded++
				diff.PostinstallChanges = append(diff.PostinstallChanges, models.PostinstallChange{
					Name:      name,
					Kind:      "added",
					NewScript: depB.PostinstallScript,
				})
			}

		case inA && !inB:
			diff.Summary.Removed++
			diff.DependencyChanges = append(diff.DependencyChanges, models.DependencyChange{
				Name:       name,
				ChangeType: models.ChangeRemoved,
				OldVersion: depA.Version,
				IsDirect:   depA.IsDirect,
				IsDev:      depA.IsDev,
				OldPostinstall: depA.PostinstallScript,
				OldIntegrity:   depA.IntegrityHash,
			})
			if depA.HasPostinstall {
				diff.Summary.PostinstallRemoved++
				diff.PostinstallChanges = append(diff.PostinstallChanges, models.PostinstallChange{
					Name:      name,
					Kind:      "removed",
					OldScript: depA.PostinstallScript,
				})
			}

		default:
			change := models.DependencyChange{
				Name:       name,
				OldVersion: depA.Version,
				NewVersion: depB.Version,
				IsDirect:   depB.IsDirect,
				IsDev:      depB.IsDev,
				OldPostinstall: depA.PostinstallScript,
				NewPostinstall: depB.PostinstallScript,
				OldIntegrity:   depA.IntegrityHash,
				NewIntegrity:   depB.IntegrityHash,
			}

			// Version strings are compared verbatim: inequality is recorded,
			// ordering is never inferred.
			if depA.Version != depB.Version {
				change.ChangeType = models.ChangeUpdated
				diff.Summary.Updated++
			} else {
				change.ChangeType = models.ChangeUnchanged
				diff.Summary.Unchanged++
			}

			// A script change is tracked independently and does not alter
			// the dependency's own change type.
			if depA.PostinstallScript != depB.PostinstallScript {
				change.PostinstallChanged = true
				diff.Summary.PostinstallChanged++
				diff.PostinstallChanges = append(diff.PostinstallChanges, models.PostinstallChange{
					Name:       name,
					Kind:       "changed",
					OldScript:  depA.PostinstallScript,
					NewScript:  depB.PostinstallScript,
					ScriptDiff: scriptDiff(depA.PostinstallScript, depB.PostinstallScript),
				})
			}

			diff.DependencyChanges = append(diff.DependencyChanges, change)
		}
	}

	// Absent scores stay absent: the delta only exists when both sides
	// carry one.
	if snapA.SecurityScore != nil && snapB.SecurityScore != nil {
		delta := *snapB.SecurityScore - *snapA.SecurityScore
		diff.Summary.SecurityScoreChange = &delta
	}

	return diff
}

// scriptDiff renders a unified diff of two postinstall scripts for display.
func scriptDiff(oldScript, newScript string) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldScript),
		B:        difflib.SplitLines(newScript),
		FromFile: "old",
		ToFile:   "new",
		Context:  2,
	})
	if err != nil {
		return ""
	}
	return text
}
