// Package packages provides database operations for package download state.
//
// # Usage
//
//	repo := packages.NewRepository(db)
//	entry, err := repo.Get("site", "mod_resource", "12")
//	err = repo.SetStatus("site", "mod_resource", "12", entities.PackageDownloading, nil)
package packages

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/campussync/internal/entities"
)

// Repository handles all package entry database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new packages repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the stored entry. gorm.ErrRecordNotFound when the package was never stored.
func (r *Repository) Get(siteID, component, componentID string) (*entities.PackageEntry, error) {
	var entry entities.PackageEntry
	err := r.db.Where("site_id = ? AND component = ? AND component_id = ?", siteID, component, componentID).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Update carries the optional fields of a status change.
type Update struct {
	CourseID string
	Revision *int64
}

// SetStatus stores a new status, moving the current one into previous_status.
// Reaching downloaded stamps downloaded_at and keeps the old stamp as previous.
// Returns the entry as stored and whether the status actually changed.
func (r *Repository) SetStatus(siteID, component, componentID string, status entities.PackageStatus, upd *Update) (*entities.PackageEntry, bool, error) {
	var entry entities.PackageEntry
	changed := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("site_id = ? AND component = ? AND component_id = ?", siteID, component, componentID).
			First(&entry).Error
		now := time.Now()

		if errors.Is(err, gorm.ErrRecordNotFound) {
			entry = entities.PackageEntry{
				SiteID:         siteID,
				Component:      component,
				ComponentID:    componentID,
				Status:         status,
				PreviousStatus: entities.PackageNotDownloaded,
			}
			applyUpdate(&entry, upd)
			if status == entities.PackageDownloaded {
				entry.DownloadedAt = &now
			}
			changed = status != entities.PackageNotDownloaded
			return tx.Create(&entry).Error
		} else if err != nil {
			return err
		}

		if entry.Status != status {
			entry.PreviousStatus = entry.Status
			changed = true
		}
		entry.Status = status
		if status == entities.PackageDownloaded {
			entry.PreviousDownloadedAt = entry.DownloadedAt
			entry.DownloadedAt = &now
		}
		applyUpdate(&entry, upd)
		return tx.Save(&entry).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &entry, changed, nil
}

func applyUpdate(entry *entities.PackageEntry, upd *Update) {
	if upd == nil {
		return
	}
	if upd.CourseID != "" {
		entry.CourseID = upd.CourseID
	}
	if upd.Revision != nil {
		entry.Revision = *upd.Revision
	}
}

// ListByStatus returns the entries of a site currently in the given status.
func (r *Repository) ListByStatus(siteID string, status entities.PackageStatus) ([]entities.PackageEntry, error) {
	var entries []entities.PackageEntry
	err := r.db.Where("site_id = ? AND status = ?", siteID, status).
		Order("component, component_id").Find(&entries).Error
	return entries, err
}

// ListByCourse returns every stored entry of a course.
func (r *Repository) ListByCourse(siteID, courseID string) ([]entities.PackageEntry, error) {
	var entries []entities.PackageEntry
	err := r.db.Where("site_id = ? AND course_id = ?", siteID, courseID).
		Order("component, component_id").Find(&entries).Error
	return entries, err
}

// Delete removes the stored entry so the package reads as never downloaded.
func (r *Repository) Delete(siteID, component, componentID string) error {
	return r.db.Where("site_id = ? AND component = ? AND component_id = ?", siteID, component, componentID).
		Delete(&entities.PackageEntry{}).Error
}
