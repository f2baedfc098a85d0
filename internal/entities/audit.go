package entities

import "time"

type AuditEventType string

const (
	AuditEventSync     AuditEventType = "sync"
	AuditEventDiscard  AuditEventType = "discard"
	AuditEventDownload AuditEventType = "download"
)

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusWarning AuditStatus = "warning"
	AuditStatusFailed  AuditStatus = "failed"
)

type AuditEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	SiteID      string         `gorm:"index;size:100" json:"site_id"`
	EventType   AuditEventType `gorm:"index;size:50" json:"event_type"`
	Component   string         `gorm:"size:100" json:"component"`          // e.g. "core_completion", "mod_resource"
	SyncKey     string         `gorm:"size:255" json:"sync_key,omitempty"` // entity#user or download id
	Description string         `gorm:"size:500" json:"description"`
	Metadata    string         `gorm:"type:text" json:"metadata,omitempty"` // JSON for extra data
	Status      AuditStatus    `gorm:"size:20" json:"status"`
	ErrorMsg    string         `gorm:"size:500" json:"error_msg,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
