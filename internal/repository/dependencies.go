package repository

import (
	"fmt"
	"strings"

	"github.com/depwatch/timemachine/models"
)

// Batch size for bulk dependency inserts. SQLite's default variable limit is
// 999; 100 rows of 10 columns stays safely under it.
const dependencyInsertBatch = 100

// BulkInsertDependencies writes all dependency rows for a snapshot in
// batches inside one transaction.
func (r *Repository) BulkInsertDependencies(snapshotID string, deps []models.SnapshotDependency) error {
	if len(deps) == 0 {
		return nil
	}
	for i := range deps {
		deps[i].SnapshotID = snapshotID
	}
	if err := r.db.CreateInBatches(deps, dependencyInsertBatch).Error; err != nil {
		return fmt.Errorf("failed to insert %d dependencies for %s: %w", len(deps), snapshotID, err)
	}
	return nil
}

// ListDependencies returns every dependency of a snapshot ordered by name.
func (r *Repository) ListDependencies(snapshotID string) ([]models.SnapshotDependency, error) {
	var deps []models.SnapshotDependency
	err := r.db.
		Where("snapshot_id = ?", snapshotID).
		Order("name ASC").
		Find(&deps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list dependencies of %s: %w", snapshotID, err)
	}
	return deps, nil
}

// SearchDependencies returns dependencies of a snapshot whose name, version
// or postinstall script contains any of the given tokens. Relevance ranking
// happens in the search service; this is the broad database prefilter.
func (r *Repository) SearchDependencies(snapshotID string, tokens []string) ([]models.SnapshotDependency, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	// A row qualifies when any token hits any searchable field; the ranking
	// layer upstream decides ordering beyond the stable name sort.
	conditions := make([]string, 0, len(tokens))
	args := []interface{}{snapshotID}
	for _, token := range tokens {
		pattern := "%" + token + "%"
		conditions = append(conditions, "(name LIKE ? OR version LIKE ? OR postinstall_script LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}
	where := "snapshot_id = ? AND (" + strings.Join(conditions, " OR ") + ")"

	var deps []models.SnapshotDependency
	if err := r.db.
		Where(where, args...).
		Order("name ASC").
		Find(&deps).Error; err != nil {
		return nil, fmt.Errorf("failed to search dependencies of %s: %w", snapshotID, err)
	}
	return deps, nil
}
