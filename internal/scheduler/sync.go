package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/campussync/internal/audit"
	"github.com/mrlokans/campussync/internal/network"
	"github.com/mrlokans/campussync/internal/settingsstore"
	"github.com/mrlokans/campussync/internal/syncer"
)

// Run statuses recorded in the settings store.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

const runTimeout = 10 * time.Minute

// Run is the report of one scheduled or manual sync-all run.
type Run struct {
	Trigger    string           `json:"trigger"`
	Force      bool             `json:"force"`
	StartedAt  time.Time        `json:"started_at"`
	Duration   time.Duration    `json:"duration"`
	Status     string           `json:"status"`
	Message    string           `json:"message"`
	Components []syncer.Summary `json:"components"`
}

func (r *Run) Updated() bool {
	for _, c := range r.Components {
		if c.Updated {
			return true
		}
	}
	return false
}

// SyncScheduler runs every registered sync handler on a cron schedule and
// whenever the device comes back online.
type SyncScheduler struct {
	settingsStore *settingsstore.SettingsStore
	handlers      *syncer.Handlers
	conn          network.Connectivity
	auditService  *audit.Service
	archive       *audit.Archive

	cron        *cron.Cron
	entryID     cron.EntryID
	mu          sync.RWMutex
	isRunning   bool
	isSyncing   bool
	session     chan struct{}
	unsubscribe func()
	runs        sync.WaitGroup
}

func NewSyncScheduler(settingsStore *settingsstore.SettingsStore, handlers *syncer.Handlers, conn network.Connectivity, auditService *audit.Service, archive *audit.Archive) *SyncScheduler {
	return &SyncScheduler{
		settingsStore: settingsStore,
		handlers:      handlers,
		conn:          conn,
		auditService:  auditService,
		archive:       archive,
		cron:          cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start watches connectivity and, if automatic sync is enabled, schedules
// the cron job. Reconnect syncs run whether or not cron is enabled.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if s.conn != nil && s.unsubscribe == nil {
		s.unsubscribe = s.conn.Subscribe(func(online bool) {
			if online {
				slog.Info("Connection restored, starting sync")
				s.runAsync("online", false)
			}
		})
	}

	if s.session == nil {
		session := make(chan struct{})
		s.session = session
		go func() {
			select {
			case <-ctx.Done():
				s.stop(session)
			case <-session:
			}
		}()
	}

	config := s.settingsStore.GetSyncCronConfig()
	if !config.Enabled {
		slog.Info("Sync scheduler disabled, syncing on reconnect only")
		return nil
	}

	if err := settingsstore.ValidateCronSchedule(config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", config.Schedule, err)
	}

	entryID, err := s.cron.AddFunc(config.Schedule, func() {
		s.runAsync("cron", false)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.isRunning = true

	nextRun, _ := settingsstore.GetNextRunTime(config.Schedule)
	slog.Info("Sync scheduler started",
		"schedule", config.Schedule,
		"description", settingsstore.GetCronDescription(config.Schedule),
		"next_run", nextRun)

	return nil
}

// Stop removes the cron job and the reconnect trigger, then waits for a
// running sync to finish.
func (s *SyncScheduler) Stop() {
	s.stop(nil)
}

// stop ends the current session, or only the given one when session is set.
func (s *SyncScheduler) stop(session chan struct{}) {
	s.mu.Lock()
	if session != nil && s.session != session {
		s.mu.Unlock()
		return
	}
	if s.session != nil {
		close(s.session)
		s.session = nil
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}

	wasRunning := s.isRunning
	if wasRunning {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.cron.Remove(s.entryID)
		s.isRunning = false
	}
	s.mu.Unlock()

	s.runs.Wait()
	if wasRunning {
		slog.Info("Sync scheduler stopped")
	}
}

// Reschedule restarts the scheduler with the current settings.
func (s *SyncScheduler) Reschedule() error {
	s.Stop()
	return s.Start(context.Background())
}

// RunNow triggers an immediate sync in the background.
func (s *SyncScheduler) RunNow(force bool) {
	s.runAsync("manual", force)
}

func (s *SyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *SyncScheduler) IsSyncing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isSyncing
}

// GetNextRunTime returns when the next scheduled sync will occur.
func (s *SyncScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

func (s *SyncScheduler) runAsync(trigger string, force bool) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := s.RunSync(ctx, trigger, force); err != nil && !errors.Is(err, ErrAlreadySyncing) {
			slog.Warn("Sync run failed", "trigger", trigger, "error", err)
		}
	}()
}

// ErrAlreadySyncing is returned by RunSync while another run is in progress.
var ErrAlreadySyncing = errors.New("sync already in progress")

// RunSync runs every handler over all sites and records the outcome.
func (s *SyncScheduler) RunSync(ctx context.Context, trigger string, force bool) (*Run, error) {
	s.mu.Lock()
	if s.isSyncing {
		s.mu.Unlock()
		slog.Info("Sync skipped, already syncing", "trigger", trigger)
		return nil, ErrAlreadySyncing
	}
	s.isSyncing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isSyncing = false
		s.mu.Unlock()
	}()

	run := &Run{Trigger: trigger, Force: force, StartedAt: time.Now()}

	if s.conn != nil && !s.conn.IsOnline() {
		run.Status = StatusSkipped
		run.Message = "Device is offline"
		s.record(run, nil)
		return run, nil
	}

	slog.Info("Sync started", "trigger", trigger, "force", force)
	summaries, err := s.handlers.RunAll(ctx, "", force)
	run.Components = summaries
	run.Duration = time.Since(run.StartedAt)
	run.Status, run.Message = describe(summaries, run.Duration)
	s.record(run, err)
	return run, err
}

func describe(summaries []syncer.Summary, took time.Duration) (string, string) {
	var synced, failed, warnings int
	var broken []string
	for _, c := range summaries {
		synced += c.Synced
		failed += c.Failed
		warnings += len(c.Warnings)
		if len(c.Errors) > 0 {
			broken = append(broken, c.Component)
		}
	}

	msg := fmt.Sprintf("Synced %d items with %d warnings in %v", synced, warnings, took.Round(time.Millisecond))
	switch {
	case len(broken) == 0:
		return StatusSuccess, msg
	case synced == 0 && len(broken) == len(summaries):
		return StatusFailed, fmt.Sprintf("%s; failed: %s", msg, strings.Join(broken, ", "))
	default:
		return StatusPartial, fmt.Sprintf("%s; failed: %s", msg, strings.Join(broken, ", "))
	}
}

func (s *SyncScheduler) record(run *Run, err error) {
	slog.Info("Sync finished", "trigger", run.Trigger, "status", run.Status, "message", run.Message)
	if setErr := s.settingsStore.SetSyncStatus(run.Status, run.Message, run.Updated()); setErr != nil {
		slog.Warn("Failed to store sync status", "error", setErr)
	}

	if s.auditService != nil {
		var warnings []string
		for _, c := range run.Components {
			warnings = append(warnings, c.Warnings...)
		}
		s.auditService.LogSync("", "all", run.Trigger, warnings, run.Trigger != "manual", err)
	}

	if s.archive != nil && run.Status != StatusSkipped {
		if _, archErr := s.archive.SaveJSON(run); archErr != nil {
			slog.Warn("Failed to archive sync report", "error", archErr)
		}
	}
}
