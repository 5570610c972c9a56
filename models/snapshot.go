package models

import (
	"fmt"
	"time"
)

// SnapshotStatus is the lifecycle state of an ExecutionSnapshot.
type SnapshotStatus string

const (
	SnapshotStatusCapturing SnapshotStatus = "capturing"
	SnapshotStatusCompleted SnapshotStatus = "completed"
	SnapshotStatusFailed    SnapshotStatus = "failed"
)

// TriggerSource records why a snapshot was taken.
type TriggerSource string

const (
	TriggerLockfileChange TriggerSource = "lockfile_change"
	TriggerManual         TriggerSource = "manual"
)

// LockfileType identifies the package manager that owns the project lockfile.
// Empty string means no lockfile was found at capture time.
type LockfileType string

const (
	LockfileNpm  LockfileType = "npm"
	LockfilePnpm LockfileType = "pnpm"
	LockfileYarn LockfileType = "yarn"
	LockfileBun  LockfileType = "bun"
	LockfileNone LockfileType = ""
)

// Persistence round-trips go through these tables, never through
// case-insensitive or partial matching.
var (
	snapshotStatusNames = map[SnapshotStatus]string{
		SnapshotStatusCapturing: "capturing",
		SnapshotStatusCompleted: "completed",
		SnapshotStatusFailed:    "failed",
	}
	snapshotStatusValues = map[string]SnapshotStatus{
		"capturing": SnapshotStatusCapturing,
		"completed": SnapshotStatusCompleted,
		"failed":    SnapshotStatusFailed,
	}

	triggerSourceNames = map[TriggerSource]string{
		TriggerLockfileChange: "lockfile_change",
		TriggerManual:         "manual",
	}
	triggerSourceValues = map[string]TriggerSource{
		"lockfile_change": TriggerLockfileChange,
		"manual":          TriggerManual,
	}

	lockfileTypeNames = map[LockfileType]string{
		LockfileNpm:  "npm",
		LockfilePnpm: "pnpm",
		LockfileYarn: "yarn",
		LockfileBun:  "bun",
	}
	lockfileTypeValues = map[string]LockfileType{
		"npm":  LockfileNpm,
		"pnpm": LockfilePnpm,
		"yarn": LockfileYarn,
		"bun":  LockfileBun,
	}
)

func (s SnapshotStatus) String() string { return snapshotStatusNames[s] }

// ParseSnapshotStatus maps a persisted string back to its status value.
func ParseSnapshotStatus(s string) (SnapshotStatus, error) {
	v, ok := snapshotStatusValues[s]
	if !ok {
		return "", fmt.Errorf("%w: unknown snapshot status %q", ErrInvalidInput, s)
	}
	return v, nil
}

func (t TriggerSource) String() string { return triggerSourceNames[t] }

// ParseTriggerSource maps a persisted string back to its trigger value.
func ParseTriggerSource(s string) (TriggerSource, error) {
	v, ok := triggerSourceValues[s]
	if !ok {
		return "", fmt.Errorf("%w: unknown trigger source %q", ErrInvalidInput, s)
	}
	return v, nil
}

func (l LockfileType) String() string { return lockfileTypeNames[l] }

// ParseLockfileType maps a persisted string back to its lockfile type.
// The empty string is valid and means "no lockfile".
func ParseLockfileType(s string) (LockfileType, error) {
	if s == "" {
		return LockfileNone, nil
	}
	v, ok := lockfileTypeValues[s]
	if !ok {
		return "", fmt.Errorf("%w: unknown lockfile type %q", ErrInvalidInput, s)
	}
	return v, nil
}

// ExecutionSnapshot is a point-in-time capture of a project's dependency
// state. Completed snapshots are immutable except for SecurityScore, which
// the insight aggregator may recompute.
type ExecutionSnapshot struct {
	ID                 string         `json:"id" gorm:"primaryKey" pretty:"label=ID"`
	ProjectPath        string         `json:"project_path" gorm:"column:project_path;not null;index" pretty:"label=Project"`
	Status             SnapshotStatus `json:"status" gorm:"column:status;not null;index" pretty:"label=Status"`
	TriggerSource      TriggerSource  `json:"trigger_source" gorm:"column:trigger_source;not null" pretty:"label=Trigger"`
	LockfileType       LockfileType   `json:"lockfile_type" gorm:"column:lockfile_type" pretty:"label=Lockfile"`
	LockfileHash       string         `json:"lockfile_hash" gorm:"column:lockfile_hash;index" pretty:"hide"`
	DependencyTreeHash string         `json:"dependency_tree_hash" gorm:"column:dependency_tree_hash" pretty:"hide"`
	PackageJSONHash    string         `json:"package_json_hash" gorm:"column:package_json_hash" pretty:"hide"`
	TotalDependencies  int            `json:"total_dependencies" gorm:"column:total_dependencies" pretty:"label=Deps"`
	DirectDependencies int            `json:"direct_dependencies" gorm:"column:direct_dependencies" pretty:"label=Direct"`
	DevDependencies    int            `json:"dev_dependencies" gorm:"column:dev_dependencies" pretty:"label=Dev"`
	SecurityScore      *int           `json:"security_score,omitempty" gorm:"column:security_score" pretty:"label=Score"`
	PostinstallCount   int            `json:"postinstall_count" gorm:"column:postinstall_count" pretty:"label=Postinstall"`
	StoragePath        string         `json:"storage_path" gorm:"column:storage_path" pretty:"hide"`
	CompressedSize     int64          `json:"compressed_size" gorm:"column:compressed_size" pretty:"label=Size"`
	ErrorMessage       string         `json:"error_message,omitempty" gorm:"column:error_message" pretty:"label=Error"`
	CreatedAt          time.Time      `json:"created_at" gorm:"column:created_at;index" pretty:"label=Created"`
}

// TableName specifies the table name for ExecutionSnapshot
func (ExecutionSnapshot) TableName() string {
	return "execution_snapshots"
}

// IsDiffable reports whether the snapshot can serve reads (diff, replay,
// insight analysis). Capturing snapshots are not ready; Failed snapshots
// have no dependency data.
func (s *ExecutionSnapshot) IsDiffable() bool {
	return s.Status == SnapshotStatusCompleted
}

// SnapshotListItem is the denormalized row returned by snapshot listings.
type SnapshotListItem struct {
	ID                string         `json:"id" pretty:"label=ID"`
	ProjectPath       string         `json:"project_path" pretty:"label=Project"`
	Status            SnapshotStatus `json:"status" pretty:"label=Status"`
	TriggerSource     TriggerSource  `json:"trigger_source" pretty:"label=Trigger"`
	LockfileType      LockfileType   `json:"lockfile_type" pretty:"label=Lockfile"`
	TotalDependencies int            `json:"total_dependencies" pretty:"label=Deps"`
	PostinstallCount  int            `json:"postinstall_count" pretty:"label=Postinstall"`
	SecurityScore     *int           `json:"security_score,omitempty" pretty:"label=Score"`
	CompressedSize    int64          `json:"compressed_size" pretty:"label=Size"`
	CreatedAt         time.Time      `json:"created_at" pretty:"label=Created"`
}

// SnapshotFilter narrows snapshot listings. All fields are optional and
// AND-combined.
type SnapshotFilter struct {
	ProjectPath   string
	TriggerSource TriggerSource
	Status        SnapshotStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}
