package offline

import (
	"fmt"

	"github.com/mrlokans/campussync/internal/entities"
	"github.com/mrlokans/campussync/internal/syncer"
)

// CourseStore is the part of the record repository used for course lookups.
type CourseStore interface {
	RecordStore
	ListByCourse(siteID, component, courseID string) ([]entities.OfflineRecord, error)
	Count(siteID, component string) (int64, error)
}

// Pending is one outstanding record across components.
type Pending struct {
	Component string        `json:"component"`
	Target    syncer.Target `json:"target"`
	CourseID  string        `json:"course_id,omitempty"`
}

// Store answers questions about offline data across every component.
type Store struct {
	records CourseStore
}

func NewStore(records CourseStore) *Store {
	return &Store{records: records}
}

// Pending lists every outstanding record of siteID, or of all sites when
// siteID is empty.
func (s *Store) Pending(siteID string) ([]Pending, error) {
	rows, err := s.records.List(siteID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list offline data: %w", err)
	}
	out := make([]Pending, 0, len(rows))
	for _, row := range rows {
		out = append(out, Pending{
			Component: row.Component,
			Target:    syncer.Target{SiteID: row.SiteID, Key: syncer.NewKey(row.EntityID, row.UserID)},
			CourseID:  row.CourseID,
		})
	}
	return out, nil
}

// HasCourseData reports whether a component has outstanding records in a course.
func (s *Store) HasCourseData(siteID, component, courseID string) (bool, error) {
	rows, err := s.records.ListByCourse(siteID, component, courseID)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (s *Store) Count(siteID, component string) (int64, error) {
	return s.records.Count(siteID, component)
}
