package entities

import (
	"time"
)

type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

// Known setting keys
const (
	// Periodic sync settings
	SettingKeySyncCronEnabled  = "sync_cron_enabled"
	SettingKeySyncCronSchedule = "sync_cron_schedule"
	SettingKeySyncLastAt       = "sync_last_at"
	SettingKeySyncLastStatus   = "sync_last_status"
	SettingKeySyncLastMessage  = "sync_last_message"
	SettingKeySyncLastUpdated  = "sync_last_updated"
)
