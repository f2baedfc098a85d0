// Package offline provides database operations for content authored offline.
//
// # Usage
//
//	repo := offline.NewRepository(db)
//	err := repo.Save(&entities.OfflineRecord{SiteID: "s", Component: "c", EntityID: "42", UserID: "7"})
//	rec, err := repo.Get("s", "c", "42", "7")
package offline

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/campussync/internal/entities"
)

// Repository handles all offline record database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new offline records repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Save inserts a record or replaces the outstanding one for the same entity and user.
func (r *Repository) Save(rec *entities.OfflineRecord) error {
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "site_id"}, {Name: "component"}, {Name: "entity_id"}, {Name: "user_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"course_id", "data", "created_at", "updated_at"}),
	}).Create(rec).Error
}

// Get returns the outstanding record. gorm.ErrRecordNotFound when there is none.
func (r *Repository) Get(siteID, component, entityID, userID string) (*entities.OfflineRecord, error) {
	var rec entities.OfflineRecord
	err := r.db.Where("site_id = ? AND component = ? AND entity_id = ? AND user_id = ?",
		siteID, component, entityID, userID).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (r *Repository) Delete(siteID, component, entityID, userID string) error {
	return r.db.Where("site_id = ? AND component = ? AND entity_id = ? AND user_id = ?",
		siteID, component, entityID, userID).Delete(&entities.OfflineRecord{}).Error
}

// List returns the records of a component. An empty siteID lists every site
// and an empty component every component.
func (r *Repository) List(siteID, component string) ([]entities.OfflineRecord, error) {
	var records []entities.OfflineRecord
	query := r.db.Model(&entities.OfflineRecord{})
	if component != "" {
		query = query.Where("component = ?", component)
	}
	if siteID != "" {
		query = query.Where("site_id = ?", siteID)
	}
	err := query.Order("site_id, component, created_at ASC").Find(&records).Error
	return records, err
}

// ListByCourse returns the records of a component that belong to one course.
func (r *Repository) ListByCourse(siteID, component, courseID string) ([]entities.OfflineRecord, error) {
	var records []entities.OfflineRecord
	err := r.db.Where("site_id = ? AND component = ? AND course_id = ?", siteID, component, courseID).
		Order("created_at ASC").Find(&records).Error
	return records, err
}

// Count returns the number of records of a component on a site.
func (r *Repository) Count(siteID, component string) (int64, error) {
	var count int64
	err := r.db.Model(&entities.OfflineRecord{}).
		Where("site_id = ? AND component = ?", siteID, component).Count(&count).Error
	return count, err
}
