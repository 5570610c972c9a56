package repository

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/depwatch/timemachine/models"
)

// SaveInsights persists a batch of insights for a snapshot. Missing ids and
// timestamps are filled in here so the analyzer stays a pure function of the
// diff content.
func (r *Repository) SaveInsights(insights []models.SecurityInsight) error {
	if len(insights) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range insights {
		if insights[i].ID == "" {
			insights[i].ID = uuid.NewString()
		}
		if insights[i].CreatedAt.IsZero() {
			insights[i].CreatedAt = now
		}
	}
	if err := r.db.Create(insights).Error; err != nil {
		return fmt.Errorf("failed to save %d insights: %w", len(insights), err)
	}
	return nil
}

// ListInsights returns the insights of a snapshot ordered by severity
// descending, ties broken most-recent-first.
func (r *Repository) ListInsights(snapshotID string) ([]models.SecurityInsight, error) {
	var insights []models.SecurityInsight
	err := r.db.
		Where("snapshot_id = ?", snapshotID).
		Order(severityOrderExpr + " DESC, created_at DESC").
		Find(&insights).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list insights of %s: %w", snapshotID, err)
	}
	return insights, nil
}

// severityOrderExpr ranks severities in SQL so paging stays consistent with
// models.Severity.Rank.
const severityOrderExpr = `CASE severity
	WHEN 'critical' THEN 4
	WHEN 'high' THEN 3
	WHEN 'medium' THEN 2
	WHEN 'low' THEN 1
	ELSE 0 END`

// DismissInsight marks an insight dismissed. Dismissing an already-dismissed
// insight is a no-op success.
func (r *Repository) DismissInsight(id string) error {
	result := r.db.Model(&models.SecurityInsight{}).
		Where("id = ?", id).
		Update("is_dismissed", true)
	if result.Error != nil {
		return fmt.Errorf("failed to dismiss insight %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		// Distinguish "unknown id" from "already dismissed": the update
		// above matches dismissed rows too, so zero rows means the id does
		// not exist.
		var count int64
		if err := r.db.Model(&models.SecurityInsight{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to look up insight %s: %w", id, err)
		}
		if count == 0 {
			return fmt.Errorf("%w: insight %s", models.ErrNotFound, id)
		}
	}
	return nil
}

// SummarizeInsights tallies a snapshot's insights by severity.
func (r *Repository) SummarizeInsights(snapshotID string) (*models.InsightSummary, error) {
	type row struct {
		Severity    models.Severity
		IsDismissed bool
		Count       int
	}
	var rows []row
	err := r.db.Model(&models.SecurityInsight{}).
		Select("severity, is_dismissed, COUNT(*) as count").
		Where("snapshot_id = ?", snapshotID).
		Group("severity, is_dismissed").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize insights of %s: %w", snapshotID, err)
	}

	summary := &models.InsightSummary{}
	for _, rw := range rows {
		summary.Total += rw.Count
		if rw.IsDismissed {
			summary.Dismissed += rw.Count
		}
		switch rw.Severity {
		case models.SeverityCritical:
			summary.Critical += rw.Count
		case models.SeverityHigh:
			summary.High += rw.Count
		case models.SeverityMedium:
			summary.Medium += rw.Count
		case models.SeverityLow:
			summary.Low += rw.Count
		case models.SeverityInfo:
			summary.Info += rw.Count
		}
	}
	return summary, nil
}

// DeleteInsightsForSnapshot removes all insights tied to a snapshot. Used
// when re-running analysis for the same snapshot pair.
func (r *Repository) DeleteInsightsForSnapshot(tx *gorm.DB, snapshotID string) error {
	db := r.db
	if tx != nil {
		db = tx
	}
	if err := db.Where("snapshot_id = ?", snapshotID).Delete(&models.SecurityInsight{}).Error; err != nil {
		return fmt.Errorf("failed to delete insights of %s: %w", snapshotID, err)
	}
	return nil
}
