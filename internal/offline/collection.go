// Package offline keeps content authored without connectivity and reconciles it
// with the server once the device is back online.
package offline

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/campussync/internal/clock"
	"github.com/mrlokans/campussync/internal/entities"
	"github.com/mrlokans/campussync/internal/syncer"
)

// RecordStore is the persistence the collections need; *offline.Repository
// from the database layer implements it.
type RecordStore interface {
	Save(rec *entities.OfflineRecord) error
	Get(siteID, component, entityID, userID string) (*entities.OfflineRecord, error)
	Delete(siteID, component, entityID, userID string) error
	List(siteID, component string) ([]entities.OfflineRecord, error)
}

// Record is an offline record with its payload decoded.
type Record[P any] struct {
	SiteID    string
	Component string
	EntityID  string
	UserID    string
	CourseID  string
	CreatedAt time.Time
	Data      P
}

func (r Record[P]) Key() syncer.Key {
	return syncer.NewKey(r.EntityID, r.UserID)
}

// Collection is the typed view of one component's offline records.
type Collection[P any] struct {
	store     RecordStore
	component string
	clock     clock.Clock
}

func NewCollection[P any](store RecordStore, component string, clk clock.Clock) *Collection[P] {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Collection[P]{store: store, component: component, clock: clk}
}

func (c *Collection[P]) Component() string { return c.component }

// Save stores data as the outstanding record for entity and user, replacing
// any earlier one. The record's creation time is now.
func (c *Collection[P]) Save(siteID, entityID, userID, courseID string, data P) (*Record[P], error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s offline data: %w", c.component, err)
	}
	now := c.clock.Now()
	if err := c.store.Save(&entities.OfflineRecord{
		SiteID:    siteID,
		Component: c.component,
		EntityID:  entityID,
		UserID:    userID,
		CourseID:  courseID,
		Data:      string(raw),
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("failed to save %s offline data: %w", c.component, err)
	}
	return &Record[P]{
		SiteID: siteID, Component: c.component, EntityID: entityID, UserID: userID,
		CourseID: courseID, CreatedAt: now, Data: data,
	}, nil
}

// Get returns the outstanding record; found is false when there is none.
func (c *Collection[P]) Get(siteID, entityID, userID string) (rec *Record[P], found bool, err error) {
	row, err := c.store.Get(siteID, c.component, entityID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s offline data: %w", c.component, err)
	}
	rec, err = c.decode(row)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (c *Collection[P]) HasData(siteID, entityID, userID string) (bool, error) {
	_, found, err := c.Get(siteID, entityID, userID)
	return found, err
}

func (c *Collection[P]) Delete(siteID, entityID, userID string) error {
	if err := c.store.Delete(siteID, c.component, entityID, userID); err != nil {
		return fmt.Errorf("failed to delete %s offline data: %w", c.component, err)
	}
	return nil
}

// List returns every record of the component on siteID, or on all sites when
// siteID is empty.
func (c *Collection[P]) List(siteID string) ([]Record[P], error) {
	rows, err := c.store.List(siteID, c.component)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s offline data: %w", c.component, err)
	}
	out := make([]Record[P], 0, len(rows))
	for i := range rows {
		rec, err := c.decode(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Pending lists the sync targets with outstanding records. It satisfies
// syncer.PendingLister.
func (c *Collection[P]) Pending(siteID string) ([]syncer.Target, error) {
	rows, err := c.store.List(siteID, c.component)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s offline data: %w", c.component, err)
	}
	targets := make([]syncer.Target, 0, len(rows))
	for _, row := range rows {
		targets = append(targets, syncer.Target{
			SiteID: row.SiteID,
			Key:    syncer.NewKey(row.EntityID, row.UserID),
		})
	}
	return targets, nil
}

func (c *Collection[P]) decode(row *entities.OfflineRecord) (*Record[P], error) {
	rec := &Record[P]{
		SiteID:    row.SiteID,
		Component: row.Component,
		EntityID:  row.EntityID,
		UserID:    row.UserID,
		CourseID:  row.CourseID,
		CreatedAt: row.CreatedAt,
	}
	if row.Data != "" {
		if err := json.Unmarshal([]byte(row.Data), &rec.Data); err != nil {
			return nil, fmt.Errorf("corrupt %s offline data for %s: %w", c.component, row.EntityID, err)
		}
	}
	return rec, nil
}
