// Package mutations provides database operations for the queued mutation log.
//
// # Usage
//
//	repo := mutations.NewRepository(db)
//	created, err := repo.Insert(&entities.QueuedMutation{...})
//	pending, err := repo.List("site", mutations.Filter{Component: "mod_lesson"})
package mutations

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/campussync/internal/entities"
)

// Filter narrows a listing to one component and, optionally, one entity.
// Empty fields match everything.
type Filter struct {
	Component string
	EntityID  string
}

// Repository handles all queued mutation database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new mutations repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends a mutation unless an identical call is already queued.
// Returns false when the call was already present.
func (r *Repository) Insert(m *entities.QueuedMutation) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(m)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// List returns the queued mutations of a site in enqueue order.
func (r *Repository) List(siteID string, f Filter) ([]entities.QueuedMutation, error) {
	var items []entities.QueuedMutation
	query := r.db.Where("site_id = ?", siteID)
	if f.Component != "" {
		query = query.Where("component = ?", f.Component)
	}
	if f.EntityID != "" {
		query = query.Where("entity_id = ?", f.EntityID)
	}
	err := query.Order("id ASC").Find(&items).Error
	return items, err
}

// Get retrieves a single queued mutation by ID.
func (r *Repository) Get(id uint) (*entities.QueuedMutation, error) {
	var m entities.QueuedMutation
	if err := r.db.First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// Delete removes one queued mutation. Deleting a missing row is not an error.
func (r *Repository) Delete(id uint) error {
	return r.db.Delete(&entities.QueuedMutation{}, id).Error
}

// DeleteScope removes every mutation queued for one entity of a component.
func (r *Repository) DeleteScope(siteID, component, entityID string) (int64, error) {
	result := r.db.Where("site_id = ? AND component = ? AND entity_id = ?", siteID, component, entityID).
		Delete(&entities.QueuedMutation{})
	return result.RowsAffected, result.Error
}

// DeleteComponentPrefix removes every mutation whose component starts with prefix.
func (r *Repository) DeleteComponentPrefix(siteID, prefix string) (int64, error) {
	result := r.db.Where("site_id = ? AND component LIKE ? ESCAPE '\\'", siteID, escapeLike(prefix)+"%").
		Delete(&entities.QueuedMutation{})
	return result.RowsAffected, result.Error
}

// Scopes returns the distinct (component, entity) pairs with queued mutations.
// An empty siteID lists every site.
func (r *Repository) Scopes(siteID string) ([]entities.QueuedMutation, error) {
	var scopes []entities.QueuedMutation
	query := r.db.Model(&entities.QueuedMutation{}).Select("DISTINCT site_id, component, entity_id")
	if siteID != "" {
		query = query.Where("site_id = ?", siteID)
	}
	err := query.Order("site_id, component, entity_id").Find(&scopes).Error
	return scopes, err
}

// Count returns the number of queued mutations of a site.
func (r *Repository) Count(siteID string) (int64, error) {
	var count int64
	err := r.db.Model(&entities.QueuedMutation{}).Where("site_id = ?", siteID).Count(&count).Error
	return count, err
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
