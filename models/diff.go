package models

import "time"

// ChangeType classifies how one package moved between two snapshots.
type ChangeType string

const (
	ChangeAdded     ChangeType = "added"
	ChangeRemoved   ChangeType = "removed"
	ChangeUpdated   ChangeType = "updated"
	ChangeUnchanged ChangeType = "unchanged"
)

var (
	changeTypeNames = map[ChangeType]string{
		ChangeAdded:     "added",
		ChangeRemoved:   "removed",
		ChangeUpdated:   "updated",
		ChangeUnchanged: "unchanged",
	}
	changeTypeValues = map[string]ChangeType{
		"added":     ChangeAdded,
		"removed":   ChangeRemoved,
		"updated":   ChangeUpdated,
		"unchanged": ChangeUnchanged,
	}
)

func (c ChangeType) String() string { return changeTypeNames[c] }

// ParseChangeType maps a persisted string back to its change type.
func ParseChangeType(s string) (ChangeType, bool) {
	v, ok := changeTypeValues[s]
	return v, ok
}

// DependencyChange is one package-level delta between two snapshots.
// Version strings are recorded verbatim; the diff engine never infers
// ordering between them, only inequality.
type DependencyChange struct {
	Name               string     `json:"name" pretty:"label=Package"`
	ChangeType         ChangeType `json:"change_type" pretty:"label=Change"`
	OldVersion         string     `json:"old_version,omitempty" pretty:"label=Old"`
	NewVersion         string     `json:"new_version,omitempty" pretty:"label=New"`
	IsDirect           bool       `json:"is_direct" pretty:"label=Direct"`
	IsDev              bool       `json:"is_dev" pretty:"label=Dev"`
	PostinstallChanged bool       `json:"postinstall_changed" pretty:"label=Postinstall"`
	OldPostinstall     string     `json:"old_postinstall,omitempty" pretty:"hide"`
	NewPostinstall     string     `json:"new_postinstall,omitempty" pretty:"hide"`
	OldIntegrity       string     `json:"old_integrity,omitempty" pretty:"hide"`
	NewIntegrity       string     `json:"new_integrity,omitempty" pretty:"hide"`
}

// PostinstallChange tracks a postinstall script delta independently of the
// owning dependency's change type. ScriptDiff carries a unified diff of the
// old and new script text for display.
type PostinstallChange struct {
	Name       string `json:"name" pretty:"label=Package"`
	Kind       string `json:"kind" pretty:"label=Kind"` // "added", "removed", "changed"
	OldScript  string `json:"old_script,omitempty" pretty:"hide"`
	NewScript  string `json:"new_script,omitempty" pretty:"hide"`
	ScriptDiff string `json:"script_diff,omitempty" pretty:"hide"`
}

// DiffSummary tallies the categories of a SnapshotDiff.
type DiffSummary struct {
	Added               int  `json:"added" pretty:"label=Added"`
	Removed             int  `json:"removed" pretty:"label=Removed"`
	Updated             int  `json:"updated" pretty:"label=Updated"`
	Unchanged           int  `json:"unchanged" pretty:"label=Unchanged"`
	PostinstallAdded    int  `json:"postinstall_added" pretty:"label=Postinstall+"`
	PostinstallRemoved  int  `json:"postinstall_removed" pretty:"label=Postinstall-"`
	PostinstallChanged  int  `json:"postinstall_changed" pretty:"label=Postinstall~"`
	SecurityScoreChange *int `json:"security_score_change,omitempty" pretty:"label=ScoreDelta"`
}

// SnapshotDiff is the structured delta between two snapshots. A is the
// older/base side, B the newer/target side. It is a derived projection:
// cache rows built from it are invalidatable and never a source of truth.
type SnapshotDiff struct {
	SnapshotAID         string              `json:"snapshot_a_id" pretty:"label=From"`
	SnapshotBID         string              `json:"snapshot_b_id" pretty:"label=To"`
	Summary             DiffSummary         `json:"summary"`
	DependencyChanges   []DependencyChange  `json:"dependency_changes"`
	PostinstallChanges  []PostinstallChange `json:"postinstall_changes"`
	LockfileTypeChanged bool                `json:"lockfile_type_changed" pretty:"label=LockfileChanged"`
	OldLockfileType     LockfileType        `json:"old_lockfile_type" pretty:"label=OldLockfile"`
	NewLockfileType     LockfileType        `json:"new_lockfile_type" pretty:"label=NewLockfile"`
	ComputedAt          time.Time           `json:"computed_at" pretty:"label=Computed"`
}

// SnapshotDiffCache is the persisted memoization row for a computed diff,
// keyed by the ordered pair of snapshot ids. The string ID is a surrogate;
// the composite unique index is the real key.
type SnapshotDiffCache struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	SnapshotAID string    `json:"snapshot_a_id" gorm:"column:snapshot_a_id;not null;uniqueIndex:idx_diff_cache_pair;index"`
	SnapshotBID string    `json:"snapshot_b_id" gorm:"column:snapshot_b_id;not null;uniqueIndex:idx_diff_cache_pair;index"`
	DiffData    string    `json:"diff_data" gorm:"column:diff_data;not null"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
}

// TableName specifies the table name for SnapshotDiffCache
func (SnapshotDiffCache) TableName() string {
	return "snapshot_diff_cache"
}
