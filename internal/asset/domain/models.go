// Package domain contains persistence models for tracked assets and the
// issues reported against them.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AssetStatus is the provisioning state of an asset. Retired assets keep
// their row for issue history but stop counting toward the billable floor.
type AssetStatus string

const (
	AssetStatusActive      AssetStatus = "active"
	AssetStatusMaintenance AssetStatus = "maintenance"
	AssetStatusRetired     AssetStatus = "retired"
)

// Asset is one tracked piece of equipment or property.
type Asset struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID      `gorm:"not null;index" json:"org_id"`
	Name      string            `gorm:"type:text;not null" json:"name"`
	Tag       string            `gorm:"type:text;not null;default:''" json:"tag"`
	Status    AssetStatus       `gorm:"type:text;not null;default:'active'" json:"status"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Asset) TableName() string { return "assets" }

type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityCritical IssueSeverity = "critical"
)

type IssueStatus string

const (
	IssueStatusOpen       IssueStatus = "open"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusResolved   IssueStatus = "resolved"
)

// Issue is a reported problem against one asset.
type Issue struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID  `gorm:"not null;index" json:"org_id"`
	AssetID    snowflake.ID  `gorm:"not null;index" json:"asset_id"`
	Title      string        `gorm:"type:text;not null" json:"title"`
	Severity   IssueSeverity `gorm:"type:text;not null;default:'medium'" json:"severity"`
	Status     IssueStatus   `gorm:"type:text;not null;default:'open'" json:"status"`
	ReportedBy snowflake.ID  `gorm:"" json:"reported_by"`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Issue) TableName() string { return "issues" }

// ValidSeverity reports whether severity is a known level.
func ValidSeverity(s IssueSeverity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// ValidIssueStatus reports whether status is a known state.
func ValidIssueStatus(s IssueStatus) bool {
	switch s {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusResolved:
		return true
	}
	return false
}

// ValidAssetStatus reports whether status is a known state.
func ValidAssetStatus(s AssetStatus) bool {
	switch s {
	case AssetStatusActive, AssetStatusMaintenance, AssetStatusRetired:
		return true
	}
	return false
}
