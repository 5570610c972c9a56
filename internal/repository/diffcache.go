package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/depwatch/timemachine/models"
)

// DiffCacheKey builds the surrogate primary key for a diff-cache row. The
// composite unique index on (snapshot_a_id, snapshot_b_id) is the real key;
// uuid ids make the separator collision-safe.
func DiffCacheKey(aID, bID string) string {
	return aID + "_" + bID
}

// GetCachedDiff returns the cached diff JSON for an ordered snapshot pair,
// or "" when there is no cache row. A hit is only served when both
// referenced snapshots still exist; a stale row found after a snapshot
// deletion is treated as a miss.
func (r *Repository) GetCachedDiff(aID, bID string) (string, error) {
	var row models.SnapshotDiffCache
	err := r.db.
		Where("snapshot_a_id = ? AND snapshot_b_id = ?", aID, bID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read diff cache for (%s,%s): %w", aID, bID, err)
	}
	return row.DiffData, nil
}

// PutCachedDiff stores (or overwrites) the diff JSON for an ordered pair.
// Concurrent writers racing on the same pair are fine: content is
// idempotent, last write wins.
func (r *Repository) PutCachedDiff(aID, bID, diffJSON string) error {
	row := models.SnapshotDiffCache{
		ID:          DiffCacheKey(aID, bID),
		SnapshotAID: aID,
		SnapshotBID: bID,
		DiffData:    diffJSON,
		CreatedAt:   time.Now().UTC(),
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "snapshot_a_id"}, {Name: "snapshot_b_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"diff_data", "created_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to write diff cache for (%s,%s): %w", aID, bID, err)
	}
	return nil
}

// PruneDiffCache deletes cache rows older than the given number of days and
// returns how many were removed. Invalidation on snapshot deletion is
// handled by DeleteSnapshot; this is the age-based sweep.
func (r *Repository) PruneDiffCache(olderThanDays int) (int64, error) {
	if olderThanDays < 0 {
		return 0, fmt.Errorf("%w: older_than_days must not be negative", models.ErrInvalidInput)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	result := r.db.Where("created_at < ?", cutoff).Delete(&models.SnapshotDiffCache{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune diff cache: %w", result.Error)
	}
	return result.RowsAffected, nil
}
