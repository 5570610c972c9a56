package models

import (
	"fmt"
	"time"
)

// InsightType names one detected security condition.
type InsightType string

const (
	InsightNewDependency     InsightType = "new_dependency"
	InsightRemovedDependency InsightType = "removed_dependency"
	InsightVersionChange     InsightType = "version_change"
	InsightVersionDowngrade  InsightType = "version_downgrade"
	InsightPostinstallAdded  InsightType = "postinstall_added"
	InsightPostinstallChange InsightType = "postinstall_changed"
	InsightTyposquatting     InsightType = "typosquatting"
	InsightIntegrityMismatch InsightType = "integrity_mismatch"
	InsightIntegrityMissing  InsightType = "integrity_missing"
)

// Severity ranks insights for display. The order Critical > High > Medium >
// Low > Info is encoded in severityRank, not in string comparison.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

var (
	severityNames = map[Severity]string{
		SeverityCritical: "critical",
		SeverityHigh:     "high",
		SeverityMedium:   "medium",
		SeverityLow:      "low",
		SeverityInfo:     "info",
	}
	severityValues = map[string]Severity{
		"critical": SeverityCritical,
		"high":     SeverityHigh,
		"medium":   SeverityMedium,
		"low":      SeverityLow,
		"info":     SeverityInfo,
	}
	severityRank = map[Severity]int{
		SeverityCritical: 4,
		SeverityHigh:     3,
		SeverityMedium:   2,
		SeverityLow:      1,
		SeverityInfo:     0,
	}
)

func (s Severity) String() string { return severityNames[s] }

// Rank returns the numeric ordering of the severity, higher is more severe.
func (s Severity) Rank() int { return severityRank[s] }

// ParseSeverity maps a persisted string back to its severity value.
func ParseSeverity(s string) (Severity, error) {
	v, ok := severityValues[s]
	if !ok {
		return "", fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, s)
	}
	return v, nil
}

// SecurityInsight is one detected condition tied to a snapshot. Dismissal is
// the only mutation after creation.
type SecurityInsight struct {
	ID            string      `json:"id" gorm:"primaryKey" pretty:"hide"`
	SnapshotID    string      `json:"snapshot_id" gorm:"column:snapshot_id;not null;index" pretty:"hide"`
	InsightType   InsightType `json:"insight_type" gorm:"column:insight_type;not null;index" pretty:"label=Type"`
	Severity      Severity    `json:"severity" gorm:"column:severity;not null;index" pretty:"label=Severity"`
	Title         string      `json:"title" gorm:"column:title;not null" pretty:"label=Title"`
	Description   string      `json:"description" gorm:"column:description" pretty:"label=Description"`
	PackageName   string      `json:"package_name,omitempty" gorm:"column:package_name;index" pretty:"label=Package"`
	PreviousValue string      `json:"previous_value,omitempty" gorm:"column:previous_value" pretty:"label=Previous"`
	CurrentValue  string      `json:"current_value,omitempty" gorm:"column:current_value" pretty:"label=Current"`
	Recommendation string     `json:"recommendation,omitempty" gorm:"column:recommendation" pretty:"hide"`
	Metadata      string      `json:"metadata,omitempty" gorm:"column:metadata" pretty:"hide"` // JSON blob
	IsDismissed   bool        `json:"is_dismissed" gorm:"column:is_dismissed" pretty:"label=Dismissed"`
	CreatedAt     time.Time   `json:"created_at" gorm:"column:created_at;index" pretty:"label=Created"`
}

// TableName specifies the table name for SecurityInsight
func (SecurityInsight) TableName() string {
	return "security_insights"
}

// InsightSummary aggregates insight counts per severity for one snapshot.
type InsightSummary struct {
	Total     int `json:"total" pretty:"label=Total"`
	Critical  int `json:"critical" pretty:"label=Critical"`
	High      int `json:"high" pretty:"label=High"`
	Medium    int `json:"medium" pretty:"label=Medium"`
	Low       int `json:"low" pretty:"label=Low"`
	Info      int `json:"info" pretty:"label=Info"`
	Dismissed int `json:"dismissed" pretty:"label=Dismissed"`
}
