package entities

import (
	"time"
)

// OfflineRecord holds content a user authored while offline. There is at most one
// record per (site, component, entity, user); a newer edit replaces the older one.
type OfflineRecord struct {
	SiteID    string    `gorm:"primaryKey;size:100" json:"site_id"`
	Component string    `gorm:"primaryKey;size:100" json:"component"`
	EntityID  string    `gorm:"primaryKey;size:100" json:"entity_id"`
	UserID    string    `gorm:"primaryKey;size:100" json:"user_id"`
	CourseID  string    `gorm:"size:100;index" json:"course_id,omitempty"`
	Data      string    `gorm:"type:text" json:"data"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (OfflineRecord) TableName() string {
	return "offline_records"
}
