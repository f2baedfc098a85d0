// Package synctime provides database operations for last-sync timestamps.
//
// This package implements the TimestampStore interface used by the sync coordinator.
//
// # Interface Implementation
//
//	var _ syncer.TimestampStore = (*Repository)(nil)
//
// # Usage
//
//	repo := synctime.NewRepository(db)
//	last, err := repo.LastSync(ctx, "site", "core_completion", "42#7")
package synctime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/campussync/internal/entities"
)

// Repository handles all sync timestamp database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new sync timestamp repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// LastSync returns the time of the last successful sync, or the zero time when
// the key was never synced.
func (r *Repository) LastSync(ctx context.Context, siteID, component, key string) (time.Time, error) {
	var ts entities.SyncTimestamp
	err := r.db.WithContext(ctx).
		Where("site_id = ? AND component = ? AND sync_key = ?", siteID, component, key).
		First(&ts).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return ts.SyncedAt, nil
}

// SetSynced records a successful sync together with the warnings it produced.
func (r *Repository) SetSynced(ctx context.Context, siteID, component, key string, at time.Time, warnings []string) error {
	encoded := ""
	if len(warnings) > 0 {
		data, err := json.Marshal(warnings)
		if err != nil {
			return err
		}
		encoded = string(data)
	}
	ts := entities.SyncTimestamp{
		SiteID:    siteID,
		Component: component,
		SyncKey:   key,
		SyncedAt:  at,
		Warnings:  encoded,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "site_id"}, {Name: "component"}, {Name: "sync_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"synced_at", "warnings"}),
	}).Create(&ts).Error
}

// Warnings returns the warnings stored with the last successful sync.
func (r *Repository) Warnings(ctx context.Context, siteID, component, key string) ([]string, error) {
	var ts entities.SyncTimestamp
	err := r.db.WithContext(ctx).
		Where("site_id = ? AND component = ? AND sync_key = ?", siteID, component, key).
		First(&ts).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ts.Warnings == "" {
		return nil, nil
	}
	var warnings []string
	if err := json.Unmarshal([]byte(ts.Warnings), &warnings); err != nil {
		return nil, err
	}
	return warnings, nil
}

// Forget drops the timestamp so the next "if needed" sync runs immediately.
func (r *Repository) Forget(ctx context.Context, siteID, component, key string) error {
	return r.db.WithContext(ctx).
		Where("site_id = ? AND component = ? AND sync_key = ?", siteID, component, key).
		Delete(&entities.SyncTimestamp{}).Error
}
