package models

// SnapshotDependency is one resolved package within a snapshot. Rows are
// created in bulk at capture time, are immutable, and are deleted only when
// the owning snapshot is deleted.
type SnapshotDependency struct {
	ID                int64  `json:"id" gorm:"primaryKey;autoIncrement" pretty:"hide"`
	SnapshotID        string `json:"snapshot_id" gorm:"column:snapshot_id;not null;index" pretty:"hide"`
	Name              string `json:"name" gorm:"column:name;not null;index" pretty:"label=Package"`
	Version           string `json:"version" gorm:"column:version;not null" pretty:"label=Version"`
	IsDirect          bool   `json:"is_direct" gorm:"column:is_direct" pretty:"label=Direct"`
	IsDev             bool   `json:"is_dev" gorm:"column:is_dev" pretty:"label=Dev"`
	HasPostinstall    bool   `json:"has_postinstall" gorm:"column:has_postinstall" pretty:"label=Postinstall"`
	PostinstallScript string `json:"postinstall_script,omitempty" gorm:"column:postinstall_script" pretty:"hide"`
	IntegrityHash     string `json:"integrity_hash,omitempty" gorm:"column:integrity_hash" pretty:"hide"`
	ResolvedURL       string `json:"resolved_url,omitempty" gorm:"column:resolved_url" pretty:"hide"`
}

// TableName specifies the table name for SnapshotDependency
func (SnapshotDependency) TableName() string {
	return "snapshot_dependencies"
}

// SnapshotWithDependencies bundles a snapshot with its full dependency list.
type SnapshotWithDependencies struct {
	Snapshot     ExecutionSnapshot    `json:"snapshot"`
	Dependencies []SnapshotDependency `json:"dependencies"`
}
