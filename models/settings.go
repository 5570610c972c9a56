package models

import "time"

// SettingsKey is the fixed primary key of the single settings row. The
// "exactly one settings row" semantics come from this key, not from any
// in-process singleton.
const SettingsKey = "default"

// Settings is the persisted time-machine configuration row.
type Settings struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	AutoCapture     bool      `json:"auto_capture" gorm:"column:auto_capture" pretty:"label=AutoCapture"`
	DebounceSeconds int       `json:"debounce_seconds" gorm:"column:debounce_seconds" pretty:"label=Debounce"`
	KeepPerProject  int       `json:"keep_per_project" gorm:"column:keep_per_project" pretty:"label=Retention"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// TableName specifies the table name for Settings
func (Settings) TableName() string {
	return "settings"
}

// LockfileState is the per-project cursor: the last known lockfile type and
// hash and the snapshot produced from it. One row per project path, upserted
// on each successful capture.
type LockfileState struct {
	ProjectPath    string       `json:"project_path" gorm:"primaryKey;column:project_path"`
	LockfileType   LockfileType `json:"lockfile_type" gorm:"column:lockfile_type"`
	LockfileHash   string       `json:"lockfile_hash" gorm:"column:lockfile_hash;index"`
	LastSnapshotID string       `json:"last_snapshot_id" gorm:"column:last_snapshot_id"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"column:updated_at"`
}

// TableName specifies the table name for LockfileState
func (LockfileState) TableName() string {
	return "project_lockfile_state"
}
