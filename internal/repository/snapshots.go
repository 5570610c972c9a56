package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/depwatch/timemachine/models"
)

// CreateSnapshot inserts a new snapshot row, normally in the Capturing state.
func (r *Repository) CreateSnapshot(snapshot *models.ExecutionSnapshot) error {
	if snapshot.ID == "" {
		return fmt.Errorf("%w: snapshot id must not be empty", models.ErrInvalidInput)
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	if err := r.db.Create(snapshot).Error; err != nil {
		return fmt.Errorf("failed to insert snapshot %s: %w", snapshot.ID, err)
	}
	return nil
}

// GetSnapshot fetches a snapshot by id.
func (r *Repository) GetSnapshot(id string) (*models.ExecutionSnapshot, error) {
	var snapshot models.ExecutionSnapshot
	err := r.db.First(&snapshot, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: snapshot %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", id, err)
	}
	return &snapshot, nil
}

// GetSnapshotWithDependencies fetches a snapshot and its full dependency
// list in one call.
func (r *Repository) GetSnapshotWithDependencies(id string) (*models.SnapshotWithDependencies, error) {
	snapshot, err := r.GetSnapshot(id)
	if err != nil {
		return nil, err
	}
	deps, err := r.ListDependencies(id)
	if err != nil {
		return nil, err
	}
	return &models.SnapshotWithDependencies{Snapshot: *snapshot, Dependencies: deps}, nil
}

// FindCompletedByLockfileHash returns the canonical Completed snapshot for a
// (project path, lockfile hash) pair, or nil when none exists. This is the
// dedup lookup of the capture path.
func (r *Repository) FindCompletedByLockfileHash(projectPath, lockfileHash string) (*models.ExecutionSnapshot, error) {
	var snapshot models.ExecutionSnapshot
	err := r.db.
		Where("project_path = ? AND lockfile_hash = ? AND status = ?",
			projectPath, lockfileHash, models.SnapshotStatusCompleted).
		Order("created_at ASC").
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots for %s: %w", projectPath, err)
	}
	return &snapshot, nil
}

// GetLatestSnapshot returns the most recent Completed snapshot for a project.
func (r *Repository) GetLatestSnapshot(projectPath string) (*models.ExecutionSnapshot, error) {
	var snapshot models.ExecutionSnapshot
	err := r.db.
		Where("project_path = ? AND status = ?", projectPath, models.SnapshotStatusCompleted).
		Order("created_at DESC").
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no completed snapshot for %s", models.ErrNotFound, projectPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot for %s: %w", projectPath, err)
	}
	return &snapshot, nil
}

// ListSnapshots returns snapshot list items matching the filter, newest
// first. All filter fields are optional and AND-combined.
func (r *Repository) ListSnapshots(filter models.SnapshotFilter) ([]models.SnapshotListItem, error) {
	query := r.db.Model(&models.ExecutionSnapshot{})

	if filter.ProjectPath != "" {
		query = query.Where("project_path = ?", filter.ProjectPath)
	}
	if filter.TriggerSource != "" {
		query = query.Where("trigger_source = ?", filter.TriggerSource)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var snapshots []models.ExecutionSnapshot
	if err := query.Order("created_at DESC").Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	items := lo.Map(snapshots, func(s models.ExecutionSnapshot, _ int) models.SnapshotListItem {
		return models.SnapshotListItem{
			ID:                s.ID,
			ProjectPath:       s.ProjectPath,
			Status:            s.Status,
			TriggerSource:     s.TriggerSource,
			LockfileType:      s.LockfileType,
			TotalDependencies: s.TotalDependencies,
			PostinstallCount:  s.PostinstallCount,
			SecurityScore:     s.SecurityScore,
			CompressedSize:    s.CompressedSize,
			CreatedAt:         s.CreatedAt,
		}
	})
	return items, nil
}

// CompleteSnapshot flips a Capturing snapshot to Completed with its final
// hashes, counts and storage location.
func (r *Repository) CompleteSnapshot(snapshot *models.ExecutionSnapshot) error {
	snapshot.Status = models.SnapshotStatusCompleted
	snapshot.ErrorMessage = ""
	if err := r.db.Save(snapshot).Error; err != nil {
		return fmt.Errorf("failed to complete snapshot %s: %w", snapshot.ID, err)
	}
	return nil
}

// FailSnapshot transitions a snapshot to Failed with a descriptive message,
// so the attempt stays visible in capture history instead of being lost.
func (r *Repository) FailSnapshot(id, message string) error {
	result := r.db.Model(&models.ExecutionSnapshot{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.SnapshotStatusFailed,
			"error_message": message,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark snapshot %s failed: %w", id, result.Error)
	}
	return nil
}

// UpdateSecurityScore sets the computed security score on a snapshot. This
// is the only permitted mutation of a Completed snapshot.
func (r *Repository) UpdateSecurityScore(id string, score int) error {
	result := r.db.Model(&models.ExecutionSnapshot{}).
		Where("id = ?", id).
		Update("security_score", score)
	if result.Error != nil {
		return fmt.Errorf("failed to update security score for %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: snapshot %s", models.ErrNotFound, id)
	}
	return nil
}

// DeleteSnapshot removes a snapshot row and everything owned by it:
// dependencies, insights, lockfile-state references and any diff-cache rows
// naming it on either side. Metadata goes first; blob removal is the
// caller's follow-up so a crash leaves at worst an orphaned directory.
func (r *Repository) DeleteSnapshot(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("snapshot_id = ?", id).Delete(&models.SnapshotDependency{}).Error; err != nil {
			return fmt.Errorf("failed to delete dependencies of %s: %w", id, err)
		}
		if err := tx.Where("snapshot_id = ?", id).Delete(&models.SecurityInsight{}).Error; err != nil {
			return fmt.Errorf("failed to delete insights of %s: %w", id, err)
		}
		if err := tx.Where("snapshot_a_id = ? OR snapshot_b_id = ?", id, id).Delete(&models.SnapshotDiffCache{}).Error; err != nil {
			return fmt.Errorf("failed to invalidate diff cache for %s: %w", id, err)
		}
		if err := tx.Model(&models.LockfileState{}).
			Where("last_snapshot_id = ?", id).
			Update("last_snapshot_id", "").Error; err != nil {
			return fmt.Errorf("failed to clear lockfile state for %s: %w", id, err)
		}
		result := tx.Delete(&models.ExecutionSnapshot{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete snapshot %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: snapshot %s", models.ErrNotFound, id)
		}
		return nil
	})
}

// PruneSnapshots keeps the N most recent Completed snapshots per project and
// deletes the rest. Failed and stuck-Capturing rows older than the newest
// kept snapshot are pruned as well. Returns the ids of deleted snapshots so
// the caller can remove their blob directories.
func (r *Repository) PruneSnapshots(keepPerProject int) ([]string, error) {
	if keepPerProject < 1 {
		return nil, fmt.Errorf("%w: keep_per_project must be at least 1", models.ErrInvalidInput)
	}

	var projects []string
	if err := r.db.Model(&models.ExecutionSnapshot{}).
		Distinct("project_path").
		Pluck("project_path", &projects).Error; err != nil {
		return nil, fmt.Errorf("failed to enumerate projects: %w", err)
	}

	var deleted []string
	for _, project := range projects {
		var victims []models.ExecutionSnapshot
		err := r.db.
			Where("project_path = ? AND status = ?", project, models.SnapshotStatusCompleted).
			Order("created_at DESC").
			Offset(keepPerProject).
			Find(&victims).Error
		if err != nil {
			return deleted, fmt.Errorf("failed to select prune victims for %s: %w", project, err)
		}

		// Failed and stuck-Capturing rows older than the newest kept
		// Completed snapshot go with them; newer ones may still be a live
		// attempt and are left alone.
		var newest models.ExecutionSnapshot
		err = r.db.
			Where("project_path = ? AND status = ?", project, models.SnapshotStatusCompleted).
			Order("created_at DESC").
			First(&newest).Error
		if err == nil {
			var stale []models.ExecutionSnapshot
			err = r.db.
				Where("project_path = ? AND status != ? AND created_at < ?",
					project, models.SnapshotStatusCompleted, newest.CreatedAt).
				Find(&stale).Error
			if err != nil {
				return deleted, fmt.Errorf("failed to select stale attempts for %s: %w", project, err)
			}
			victims = append(victims, stale...)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return deleted, fmt.Errorf("failed to find newest snapshot for %s: %w", project, err)
		}

		for _, victim := range victims {
			if err := r.DeleteSnapshot(victim.ID); err != nil {
				return deleted, err
			}
			deleted = append(deleted, victim.ID)
		}
	}

	if len(deleted) > 0 {
		logger.Infof("pruned %d snapshots across %d projects", len(deleted), len(projects))
	}
	return deleted, nil
}

// AllSnapshotIDs returns the set of every snapshot id with a metadata row.
// Used by storage orphan cleanup.
func (r *Repository) AllSnapshotIDs() (map[string]bool, error) {
	var ids []string
	if err := r.db.Model(&models.ExecutionSnapshot{}).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list snapshot ids: %w", err)
	}
	return lo.SliceToMap(ids, func(id string) (string, bool) { return id, true }), nil
}
