package audit

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mrlokans/campussync/internal/database/audit"
	"github.com/mrlokans/campussync/internal/entities"
	"github.com/mrlokans/campussync/internal/events"
)

// Service records the sync audit trail.
type Service struct {
	repo    *audit.Repository
	pending sync.WaitGroup
}

func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.LogEvent(event)
}

// LogAsync records an event in the background.
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.repo.LogEvent(event); err != nil {
			slog.Error("Failed to log audit event", "type", event.EventType, "error", err)
		}
	}()
}

// Flush waits for events logged with LogAsync.
func (s *Service) Flush() {
	s.pending.Wait()
}

// LogSync records a finished sync of one key.
func (s *Service) LogSync(siteID, component, key string, warnings []string, auto bool, err error) {
	event := &entities.AuditEvent{
		SiteID:      siteID,
		EventType:   entities.AuditEventSync,
		Component:   component,
		SyncKey:     key,
		Description: "Synced " + component + " " + key,
		Status:      entities.AuditStatusSuccess,
		Metadata:    metadata(map[string]any{"warnings": warnings, "auto": auto}),
	}
	if len(warnings) > 0 {
		event.Status = entities.AuditStatusWarning
	}
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}
	s.LogAsync(event)
}

// LogDiscard records offline data that was dropped instead of synced.
func (s *Service) LogDiscard(siteID, component, key, reason string) {
	s.LogAsync(&entities.AuditEvent{
		SiteID:      siteID,
		EventType:   entities.AuditEventDiscard,
		Component:   component,
		SyncKey:     key,
		Description: truncate(reason, 500),
		Status:      entities.AuditStatusWarning,
	})
}

// LogDownload records a finished multi-package download.
func (s *Service) LogDownload(siteID, downloadID string, items int, status entities.PackageStatus, err error) {
	event := &entities.AuditEvent{
		SiteID:      siteID,
		EventType:   entities.AuditEventDownload,
		SyncKey:     downloadID,
		Description: "Downloaded " + downloadID,
		Status:      entities.AuditStatusSuccess,
		Metadata:    metadata(map[string]any{"items": items, "status": status}),
	}
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}
	s.LogAsync(event)
}

// Subscribe records sync-completed and download-finished events of bus until
// the returned function is called.
func (s *Service) Subscribe(bus *events.Bus) func() {
	offSync := bus.On(events.SyncCompleted, "", func(e events.Event) {
		p, ok := e.Payload.(events.SyncCompletedPayload)
		if !ok {
			return
		}
		key := p.EntityID
		if p.UserID != "" {
			key += "#" + p.UserID
		}
		s.LogSync(p.SiteID, p.Component, key, p.Warnings, p.Auto, nil)
		for _, w := range p.Warnings {
			s.LogDiscard(p.SiteID, p.Component, key, w)
		}
	})
	offDownload := bus.On(events.DownloadFinished, "", func(e events.Event) {
		if p, ok := e.Payload.(events.DownloadFinishedPayload); ok {
			s.LogDownload(p.SiteID, p.DownloadID, p.Items, p.Status, p.Err)
		}
	})
	return func() {
		offSync()
		offDownload()
	}
}

func (s *Service) GetEvents(q audit.Query) ([]entities.AuditEvent, int64, error) {
	return s.repo.GetEvents(q)
}

// Prune removes events older than retention.
func (s *Service) Prune(retention time.Duration) (int64, error) {
	return s.repo.DeleteOldEvents(time.Now().Add(-retention))
}

func metadata(m map[string]any) string {
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(data)
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
