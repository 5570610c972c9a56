package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/depwatch/timemachine/models"
)

// Defaults for the settings row when none has been persisted yet.
func defaultSettings() *models.Settings {
	return &models.Settings{
		ID:              models.SettingsKey,
		AutoCapture:     true,
		DebounceSeconds: 30,
		KeepPerProject:  20,
	}
}

// GetSettings returns the single settings row, creating it with defaults on
// first access. The fixed key is what enforces "exactly one settings row".
func (r *Repository) GetSettings() (*models.Settings, error) {
	var settings models.Settings
	err := r.db.First(&settings, "id = ?", models.SettingsKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings := defaultSettings()
		settings.UpdatedAt = time.Now().UTC()
		if err := r.db.Create(settings).Error; err != nil {
			return nil, fmt.Errorf("failed to create default settings: %w", err)
		}
		return settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return &settings, nil
}

// SaveSettings upserts the settings row under the fixed key.
func (r *Repository) SaveSettings(settings *models.Settings) error {
	settings.ID = models.SettingsKey
	settings.UpdatedAt = time.Now().UTC()
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"auto_capture", "debounce_seconds", "keep_per_project", "updated_at",
		}),
	}).Create(settings).Error
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
