package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/campussync/internal/audit"
	"github.com/mrlokans/campussync/internal/database"
	auditRepo "github.com/mrlokans/campussync/internal/database/audit"
	"github.com/mrlokans/campussync/internal/entities"
	"github.com/mrlokans/campussync/internal/network"
	"github.com/mrlokans/campussync/internal/settingsstore"
	"github.com/mrlokans/campussync/internal/syncer"
)

type stubHandler struct {
	component string
	summary   syncer.Summary
	err       error
	block     chan struct{}
	calls     atomic.Int32
	forced    atomic.Bool
}

func (h *stubHandler) Component() string { return h.component }

func (h *stubHandler) RunAll(ctx context.Context, siteID string, force bool) (syncer.Summary, error) {
	h.calls.Add(1)
	h.forced.Store(force)
	if h.block != nil {
		<-h.block
	}
	s := h.summary
	s.Component = h.component
	return s, h.err
}

func (h *stubHandler) RunKey(context.Context, string, syncer.Key, bool) (syncer.KeySummary, error) {
	return syncer.KeySummary{}, nil
}

type env struct {
	db       *database.Database
	settings *settingsstore.SettingsStore
	monitor  *network.Monitor
	audit    *audit.Service
	archive  *audit.Archive
}

func newEnv(t *testing.T, online bool) *env {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "scheduler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &env{
		db:       db,
		settings: settingsstore.New(db),
		monitor:  network.NewMonitor(online),
		audit:    audit.NewService(auditRepo.NewRepository(db.DB)),
		archive:  audit.NewArchive(filepath.Join(t.TempDir(), "reports")),
	}
}

func (e *env) scheduler(hs ...syncer.Handler) *SyncScheduler {
	return NewSyncScheduler(e.settings, syncer.NewHandlers(hs...), e.monitor, e.audit, e.archive)
}

func TestRunSync_Success(t *testing.T) {
	e := newEnv(t, true)
	lessons := &stubHandler{component: "mod_lesson", summary: syncer.Summary{Synced: 2, Updated: true, Warnings: []string{"discarded"}}}
	s := e.scheduler(lessons)

	run, err := s.RunSync(context.Background(), "manual", true)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, run.Status)
	assert.True(t, run.Updated())
	assert.True(t, lessons.forced.Load())

	status := e.settings.GetSyncStatus()
	assert.Equal(t, StatusSuccess, status.Status)
	assert.True(t, status.Updated)
	assert.NotNil(t, status.LastSyncAt)

	e.audit.Flush()
	events, total, err := e.audit.GetEvents(auditRepo.Query{EventType: entities.AuditEventSync})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, entities.AuditStatusWarning, events[0].Status)

	files, err := os.ReadDir(e.archive.Dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestRunSync_PartialAndFailed(t *testing.T) {
	e := newEnv(t, true)
	ok := &stubHandler{component: "core_completion", summary: syncer.Summary{Synced: 1}}
	broken := &stubHandler{component: "mutation_log", err: errors.New("db locked")}

	run, err := e.scheduler(ok, broken).RunSync(context.Background(), "cron", false)
	assert.Error(t, err)
	assert.Equal(t, StatusPartial, run.Status)
	assert.Contains(t, run.Message, "mutation_log")

	run, err = e.scheduler(broken).RunSync(context.Background(), "cron", false)
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, StatusFailed, e.settings.GetSyncStatus().Status)
}

func TestRunSync_SkipsWhileOffline(t *testing.T) {
	e := newEnv(t, false)
	h := &stubHandler{component: "mod_lesson"}

	run, err := e.scheduler(h).RunSync(context.Background(), "cron", false)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, run.Status)
	assert.Equal(t, int32(0), h.calls.Load())
	assert.Equal(t, StatusSkipped, e.settings.GetSyncStatus().Status)
}

func TestRunSync_RejectsConcurrentRun(t *testing.T) {
	e := newEnv(t, true)
	h := &stubHandler{component: "mod_lesson", block: make(chan struct{})}
	s := e.scheduler(h)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.RunSync(context.Background(), "manual", false)
	}()
	require.Eventually(t, s.IsSyncing, time.Second, time.Millisecond)

	_, err := s.RunSync(context.Background(), "manual", false)
	assert.ErrorIs(t, err, ErrAlreadySyncing)

	close(h.block)
	<-done
	assert.False(t, s.IsSyncing())
}

func TestScheduler_StartStop(t *testing.T) {
	e := newEnv(t, true)
	s := e.scheduler(&stubHandler{component: "mod_lesson"})

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.NotNil(t, s.GetNextRunTime())

	require.NoError(t, e.settings.SetSyncCronSchedule("*/30 * * * *"))
	require.NoError(t, s.Reschedule())
	assert.True(t, s.IsRunning())

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Nil(t, s.GetNextRunTime())
}

func TestScheduler_DisabledDoesNotStart(t *testing.T) {
	e := newEnv(t, true)
	require.NoError(t, e.settings.SetSyncCronEnabled(false))
	s := e.scheduler(&stubHandler{component: "mod_lesson"})

	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
}

func TestScheduler_SyncsWhenConnectionReturns(t *testing.T) {
	e := newEnv(t, false)
	h := &stubHandler{component: "mod_lesson"}
	s := e.scheduler(h)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	e.monitor.SetOnline(true)
	require.Eventually(t, func() bool { return h.calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, h.forced.Load())
}

func TestScheduler_ReconnectSyncsWithCronDisabled(t *testing.T) {
	e := newEnv(t, false)
	require.NoError(t, e.settings.SetSyncCronEnabled(false))
	h := &stubHandler{component: "mod_lesson"}
	s := e.scheduler(h)
	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())

	e.monitor.SetOnline(true)
	require.Eventually(t, func() bool { return h.calls.Load() == 1 }, time.Second, time.Millisecond)

	s.Stop()
	e.monitor.SetOnline(false)
	e.monitor.SetOnline(true)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), h.calls.Load())
}

func TestScheduler_RescheduleKeepsNewSession(t *testing.T) {
	e := newEnv(t, true)
	s := e.scheduler(&stubHandler{component: "mod_lesson"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Reschedule())
	time.Sleep(20 * time.Millisecond)
	assert.True(t, s.IsRunning())
	s.Stop()
}

func TestScheduler_StopsWithContext(t *testing.T) {
	e := newEnv(t, true)
	s := e.scheduler(&stubHandler{component: "mod_lesson"})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Start(ctx))
	cancel()
	require.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, time.Millisecond)
}
