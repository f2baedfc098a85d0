package entities

import (
	"time"
)

// SyncTimestamp is the last successful reconciliation of one sync key.
type SyncTimestamp struct {
	SiteID    string    `gorm:"primaryKey;size:100" json:"site_id"`
	Component string    `gorm:"primaryKey;size:100" json:"component"`
	SyncKey   string    `gorm:"primaryKey;size:255" json:"sync_key"`
	SyncedAt  time.Time `json:"synced_at"`
	Warnings  string    `gorm:"type:text" json:"warnings,omitempty"` // JSON list from the last run
}

func (SyncTimestamp) TableName() string {
	return "sync_timestamps"
}
