package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/depwatch/timemachine/models"
)

// UpsertLockfileState records the last known lockfile type/hash and the
// snapshot produced from it for a project. Called after every successful
// capture.
func (r *Repository) UpsertLockfileState(state *models.LockfileState) error {
	state.UpdatedAt = time.Now().UTC()
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_path"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"lockfile_type", "lockfile_hash", "last_snapshot_id", "updated_at",
		}),
	}).Create(state).Error
	if err != nil {
		return fmt.Errorf("failed to upsert lockfile state for %s: %w", state.ProjectPath, err)
	}
	return nil
}

// GetLockfileState returns the per-project cursor, or nil when the project
// has never been captured.
func (r *Repository) GetLockfileState(projectPath string) (*models.LockfileState, error) {
	var state models.LockfileState
	err := r.db.First(&state, "project_path = ?", projectPath).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lockfile state for %s: %w", projectPath, err)
	}
	return &state, nil
}

// DeleteLockfileState removes the cursor row for a project. Called when the
// owning project is deleted.
func (r *Repository) DeleteLockfileState(projectPath string) error {
	if err := r.db.Delete(&models.LockfileState{}, "project_path = ?", projectPath).Error; err != nil {
		return fmt.Errorf("failed to delete lockfile state for %s: %w", projectPath, err)
	}
	return nil
}
