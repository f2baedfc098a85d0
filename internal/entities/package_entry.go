package entities

import (
	"time"
)

type PackageStatus string

const (
	PackageNotDownloaded PackageStatus = "not_downloaded"
	PackageDownloading   PackageStatus = "downloading"
	PackageOutdated      PackageStatus = "outdated"
	PackageDownloaded    PackageStatus = "downloaded"
)

// Valid reports whether s is one of the known statuses.
func (s PackageStatus) Valid() bool {
	switch s {
	case PackageNotDownloaded, PackageDownloading, PackageOutdated, PackageDownloaded:
		return true
	}
	return false
}

// PackageEntry is the stored download state of the files of one component.
type PackageEntry struct {
	SiteID               string        `gorm:"primaryKey;size:100" json:"site_id"`
	Component            string        `gorm:"primaryKey;size:100" json:"component"`
	ComponentID          string        `gorm:"primaryKey;size:100" json:"component_id"`
	CourseID             string        `gorm:"size:100;index" json:"course_id,omitempty"`
	Status               PackageStatus `gorm:"size:20;not null" json:"status"`
	PreviousStatus       PackageStatus `gorm:"size:20" json:"previous_status,omitempty"`
	Revision             int64         `json:"revision"`
	DownloadedAt         *time.Time    `json:"downloaded_at,omitempty"`
	PreviousDownloadedAt *time.Time    `json:"previous_downloaded_at,omitempty"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

func (PackageEntry) TableName() string {
	return "package_entries"
}
