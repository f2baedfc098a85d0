// Package completion marks activities as manually completed, keeping the
// change offline when the server cannot be reached and syncing it later.
package completion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrlokans/campussync/internal/clock"
	"github.com/mrlokans/campussync/internal/network"
	"github.com/mrlokans/campussync/internal/offline"
	"github.com/mrlokans/campussync/internal/syncer"
	"github.com/mrlokans/campussync/internal/transport"
)

const (
	Component  = "core_completion"
	UpdateCall = "core_completion_update_activity_completion_status_manually"
	StatusCall = "core_completion_get_activities_completion_status"
)

// Mark is the offline payload of a completion change.
type Mark struct {
	Completed  bool   `json:"completed"`
	CourseName string `json:"course_name,omitempty"`
}

// ActivityStatus is the completion state of one activity.
type ActivityStatus struct {
	CmID          string `json:"cmid"`
	State         int    `json:"state"`
	TimeCompleted int64  `json:"timecompleted"`
	Tracking      int    `json:"tracking"`
	Offline       bool   `json:"offline,omitempty"`
}

const trackingManual = 1

type statusResponse struct {
	Statuses []struct {
		CmID          flexID `json:"cmid"`
		State         int    `json:"state"`
		TimeCompleted int64  `json:"timecompleted"`
		Tracking      int    `json:"tracking"`
	} `json:"statuses"`
}

type updateResponse struct {
	Status   bool `json:"status"`
	Warnings []struct {
		WarningCode string `json:"warningcode"`
		Message     string `json:"message"`
	} `json:"warnings"`
}

// ReadInvalidator drops cached transport reads; *transport.Cached implements it.
type ReadInvalidator interface {
	InvalidatePrefix(ctx context.Context, prefix string) error
}

type Config struct {
	Records      offline.RecordStore
	Remote       transport.Transport
	Reads        ReadInvalidator
	Timestamps   syncer.TimestampStore
	Connectivity network.Connectivity
	Events       syncer.Emitter
	Clock        clock.Clock
	MinInterval  time.Duration
	Concurrency  int
}

type Service struct {
	records *offline.Collection[Mark]
	remote  transport.Transport
	reads   ReadInvalidator
	conn    network.Connectivity
	sync    *syncer.Coordinator[syncer.Result]
}

func New(cfg Config) *Service {
	s := &Service{
		records: offline.NewCollection[Mark](cfg.Records, Component, cfg.Clock),
		remote:  cfg.Remote,
		reads:   cfg.Reads,
		conn:    cfg.Connectivity,
	}
	es := &offline.EntitySync[Mark]{
		Records:    s.records,
		Fetch:      s.serverCompletedAt,
		Submit:     s.submit,
		Invalidate: s.invalidate,
	}
	s.sync = syncer.New(syncer.Config[syncer.Result]{
		Component:    Component,
		Reconcile:    es.Reconcile,
		Pending:      es.Pending,
		Timestamps:   cfg.Timestamps,
		Connectivity: cfg.Connectivity,
		Events:       cfg.Events,
		Clock:        cfg.Clock,
		MinInterval:  cfg.MinInterval,
		Concurrency:  cfg.Concurrency,
	})
	return s
}

// Coordinator exposes the sync lifecycle of offline completion changes.
func (s *Service) Coordinator() *syncer.Coordinator[syncer.Result] {
	return s.sync
}

// Toggle sets the manual completion of an activity. When the device is
// offline or the server unreachable the change is stored for later sync and
// stored is true. Without a course the change cannot be stored offline.
func (s *Service) Toggle(ctx context.Context, siteID, userID, cmID, courseID string, completed bool, courseName string) (stored bool, err error) {
	mark := Mark{Completed: completed, CourseName: courseName}
	if s.conn != nil && !s.conn.IsOnline() && courseID != "" {
		return true, s.storeOffline(siteID, userID, cmID, courseID, mark)
	}

	err = s.update(ctx, cmID, completed)
	if err == nil {
		if err := s.records.Delete(siteID, cmID, userID); err != nil {
			slog.Warn("Failed to drop offline completion", "site", siteID, "cmid", cmID, "error", err)
		}
		s.invalidateCourse(ctx, siteID, courseID, userID)
		return false, nil
	}
	if syncer.Classify(err) != syncer.KindConnectivity || courseID == "" {
		return false, err
	}
	return true, s.storeOffline(siteID, userID, cmID, courseID, mark)
}

// Statuses returns the completion of every activity of a course. With
// includeOffline, pending offline changes override manual activities.
func (s *Service) Statuses(ctx context.Context, siteID, userID, courseID string, includeOffline bool) (map[string]ActivityStatus, error) {
	resp, err := s.remote.Read(ctx, StatusCall, transport.Args{"courseid": courseID, "userid": userID},
		transport.ReadOptions{CacheKey: cacheKey(siteID, courseID, userID), Strategy: transport.PreferNetwork})
	if err != nil {
		return nil, err
	}
	var data statusResponse
	if err := resp.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", StatusCall, err)
	}

	out := make(map[string]ActivityStatus, len(data.Statuses))
	for _, st := range data.Statuses {
		out[string(st.CmID)] = ActivityStatus{
			CmID:          string(st.CmID),
			State:         st.State,
			TimeCompleted: st.TimeCompleted,
			Tracking:      st.Tracking,
		}
	}
	if !includeOffline {
		return out, nil
	}

	pending, err := s.records.List(siteID)
	if err != nil {
		return nil, err
	}
	for _, rec := range pending {
		st, ok := out[rec.EntityID]
		if !ok || rec.CourseID != courseID || rec.UserID != userID || st.Tracking != trackingManual {
			continue
		}
		st.State = 0
		if rec.Data.Completed {
			st.State = 1
		}
		st.Offline = true
		out[rec.EntityID] = st
	}
	return out, nil
}

// Sync sends the offline change of one activity now.
func (s *Service) Sync(ctx context.Context, siteID, cmID, userID string) (syncer.Result, error) {
	return s.sync.Sync(ctx, siteID, syncer.NewKey(cmID, userID))
}

func (s *Service) storeOffline(siteID, userID, cmID, courseID string, mark Mark) error {
	_, err := s.records.Save(siteID, cmID, userID, courseID, mark)
	if err == nil {
		slog.Info("Stored completion offline", "site", siteID, "cmid", cmID, "user", userID)
	}
	return err
}

func (s *Service) update(ctx context.Context, cmID string, completed bool) error {
	resp, err := s.remote.Write(ctx, UpdateCall, transport.Args{"cmid": cmID, "completed": completed})
	if err != nil {
		return err
	}
	var result updateResponse
	if err := resp.Decode(&result); err != nil {
		return fmt.Errorf("decode %s: %w", UpdateCall, err)
	}
	if !result.Status {
		se := &transport.ServerError{Call: UpdateCall, Code: "completion_not_changed", Message: "Cannot change completion."}
		if len(result.Warnings) > 0 {
			se.Code = result.Warnings[0].WarningCode
			se.Message = result.Warnings[0].Message
		}
		return se
	}
	return nil
}

// serverCompletedAt reports when the server last recorded completion of the
// record's activity, bypassing cached reads.
func (s *Service) serverCompletedAt(ctx context.Context, rec offline.Record[Mark]) (time.Time, error) {
	resp, err := s.remote.Read(ctx, StatusCall, transport.Args{"courseid": rec.CourseID, "userid": rec.UserID},
		transport.ReadOptions{CacheKey: cacheKey(rec.SiteID, rec.CourseID, rec.UserID), Strategy: transport.OnlyNetwork})
	if err != nil {
		return time.Time{}, err
	}
	var data statusResponse
	if err := resp.Decode(&data); err != nil {
		return time.Time{}, &syncer.InternalError{Op: "decode completion status", Err: err}
	}
	for _, st := range data.Statuses {
		if string(st.CmID) == rec.EntityID && st.TimeCompleted > 0 {
			return time.Unix(st.TimeCompleted, 0), nil
		}
	}
	return time.Time{}, nil
}

func (s *Service) submit(ctx context.Context, rec offline.Record[Mark]) error {
	return s.update(ctx, rec.EntityID, rec.Data.Completed)
}

func (s *Service) invalidate(ctx context.Context, rec offline.Record[Mark]) error {
	if s.reads == nil {
		return nil
	}
	return s.reads.InvalidatePrefix(ctx, cacheKey(rec.SiteID, rec.CourseID, rec.UserID))
}

func (s *Service) invalidateCourse(ctx context.Context, siteID, courseID, userID string) {
	if courseID == "" {
		return
	}
	if err := s.invalidate(ctx, offline.Record[Mark]{SiteID: siteID, CourseID: courseID, UserID: userID}); err != nil {
		slog.Warn("Failed to invalidate completion cache", "site", siteID, "course", courseID, "error", err)
	}
}

func cacheKey(siteID, courseID, userID string) string {
	return "completion|" + siteID + "|" + courseID + "|" + userID + "|"
}
