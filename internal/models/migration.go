package models

import (
	"time"
)

// SchemaVersion is the single-row marker naming the last applied revision.
// No row means nothing has been applied.
type SchemaVersion struct {
	VersionNum string `gorm:"column:version_num;primaryKey;size:64;not null" json:"version_num"`
}

// TableName returns the default marker table. The store overrides it when a
// different table is configured.
func (SchemaVersion) TableName() string {
	return "schema_version"
}

// MigrationHistory records one executed step. Audit only, the marker is the
// source of truth for what is applied.
type MigrationHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RunID        string    `gorm:"size:36;not null;index" json:"run_id"`
	Revision     string    `gorm:"size:64;not null;index" json:"revision"`
	Direction    string    `gorm:"size:16;not null" json:"direction"`
	FromRevision string    `gorm:"size:64" json:"from_revision"`
	ToRevision   string    `gorm:"size:64" json:"to_revision"`
	DurationMS   int64     `json:"duration_ms"`
	AppliedAt    time.Time `gorm:"not null" json:"applied_at"`
}

// TableName ensures consistent table naming
func (MigrationHistory) TableName() string {
	return "schema_migration_history"
}
