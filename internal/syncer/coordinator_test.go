package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/campussync/internal/clock"
	"github.com/mrlokans/campussync/internal/events"
	"github.com/mrlokans/campussync/internal/network"
	"github.com/mrlokans/campussync/internal/transport"
)

type memTimestamps struct {
	mu       sync.Mutex
	at       map[string]time.Time
	warnings map[string][]string
}

func newMemTimestamps() *memTimestamps {
	return &memTimestamps{at: map[string]time.Time{}, warnings: map[string][]string{}}
}

func (m *memTimestamps) LastSync(_ context.Context, siteID, component, key string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.at[siteID+component+key], nil
}

func (m *memTimestamps) SetSynced(_ context.Context, siteID, component, key string, at time.Time, warnings []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.at[siteID+component+key] = at
	m.warnings[siteID+component+key] = warnings
	return nil
}

type fixture struct {
	clock   *clock.Manual
	monitor *network.Monitor
	bus     *events.Bus
	times   *memTimestamps
	emitted []events.SyncCompletedPayload
	mu      sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:   clock.NewManual(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)),
		monitor: network.NewMonitor(true),
		bus:     events.NewBus(),
		times:   newMemTimestamps(),
	}
	f.bus.On(events.SyncCompleted, "", func(e events.Event) {
		f.mu.Lock()
		f.emitted = append(f.emitted, e.Payload.(events.SyncCompletedPayload))
		f.mu.Unlock()
	})
	return f
}

func (f *fixture) coordinator(rec Reconciler[Result], pending PendingLister) *Coordinator[Result] {
	return New(Config[Result]{
		Component:    "mod_lesson",
		Reconcile:    rec,
		Pending:      pending,
		Timestamps:   f.times,
		Connectivity: f.monitor,
		Events:       f.bus,
		Clock:        f.clock,
	})
}

func (f *fixture) events() []events.SyncCompletedPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.SyncCompletedPayload(nil), f.emitted...)
}

func TestSync_ConcurrentCallsShareOneRun(t *testing.T) {
	f := newFixture(t)
	var runs atomic.Int32
	release := make(chan struct{})
	c := f.coordinator(func(ctx context.Context, siteID string, key Key) (Result, error) {
		runs.Add(1)
		<-release
		return Result{Updated: true}, nil
	}, nil)

	key := NewKey("42", "7")
	var wg sync.WaitGroup
	results := make([]Result, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.Sync(context.Background(), "site", key)
			assert.NoError(t, err)
			results[i] = res
		}(i)
		if i == 0 {
			require.Eventually(t, func() bool { return c.IsSyncing("site", key) }, time.Second, time.Millisecond)
		}
	}
	require.Eventually(t, func() bool { return c.flights.Waiters(flightKey("site", key)) == 4 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
	for _, r := range results {
		assert.True(t, r.Updated)
	}
	assert.Len(t, f.events(), 1)
	assert.False(t, c.IsSyncing("site", key))
}

func TestSync_OfflineFailsFast(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetOnline(false)
	called := false
	c := f.coordinator(func(context.Context, string, Key) (Result, error) {
		called = true
		return Result{}, nil
	}, nil)

	_, err := c.Sync(context.Background(), "site", NewKey("42", "7"))
	assert.ErrorIs(t, err, transport.ErrOffline)
	assert.Equal(t, KindConnectivity, Classify(err))
	assert.False(t, called)
}

func TestSync_RecordsTimestampAndWarnings(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(func(context.Context, string, Key) (Result, error) {
		return Result{Warnings: []string{"discarded"}}, nil
	}, nil)

	_, err := c.Sync(context.Background(), "site", NewKey("42", "7"))
	require.NoError(t, err)

	last, _ := f.times.LastSync(context.Background(), "site", "mod_lesson", "42#7")
	assert.Equal(t, f.clock.Now(), last)
	assert.Equal(t, []string{"discarded"}, f.times.warnings["sitemod_lesson42#7"])

	evs := f.events()
	require.Len(t, evs, 1)
	assert.Equal(t, "42", evs[0].EntityID)
	assert.Equal(t, "7", evs[0].UserID)
	assert.False(t, evs[0].Auto)
}

func TestSync_NoEventWhenNothingHappened(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(func(context.Context, string, Key) (Result, error) { return Result{}, nil }, nil)

	_, err := c.Sync(context.Background(), "site", NewKey("42", "7"))
	require.NoError(t, err)
	assert.Empty(t, f.events())
}

func TestSync_FailureDoesNotStoreTimestamp(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(func(context.Context, string, Key) (Result, error) {
		return Result{}, &transport.ConnectivityError{Call: "x", Err: errors.New("reset")}
	}, nil)

	_, err := c.Sync(context.Background(), "site", NewKey("42", "7"))
	assert.Equal(t, KindConnectivity, Classify(err))

	last, _ := f.times.LastSync(context.Background(), "site", "mod_lesson", "42#7")
	assert.True(t, last.IsZero())
}

func TestSyncIfNeeded_RespectsMinInterval(t *testing.T) {
	f := newFixture(t)
	var runs int
	c := f.coordinator(func(context.Context, string, Key) (Result, error) {
		runs++
		return Result{}, nil
	}, nil)
	key := NewKey("42", "7")

	_, ran, err := c.SyncIfNeeded(context.Background(), "site", key)
	require.NoError(t, err)
	assert.True(t, ran)

	f.clock.Advance(DefaultMinInterval - time.Second)
	_, ran, err = c.SyncIfNeeded(context.Background(), "site", key)
	require.NoError(t, err)
	assert.False(t, ran)

	f.clock.Advance(time.Second)
	_, ran, err = c.SyncIfNeeded(context.Background(), "site", key)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 2, runs)
}

func TestSync_Blocking(t *testing.T) {
	f := newFixture(t)
	c := f.coordinator(func(context.Context, string, Key) (Result, error) { return Result{}, nil }, nil)
	key := NewKey("42", "7")

	c.Block("site", key, "submit")
	c.Block("site", key, "edit")
	assert.True(t, c.IsBlocked("site", key))
	assert.False(t, c.IsBlocked("other", key))

	_, err := c.Sync(context.Background(), "site", key)
	assert.ErrorIs(t, err, ErrBlocked)

	c.Unblock("site", key, "submit")
	assert.True(t, c.IsBlocked("site", key))
	c.Unblock("site", key, "")
	assert.False(t, c.IsBlocked("site", key))

	_, err = c.Sync(context.Background(), "site", key)
	assert.NoError(t, err)
}

func TestSyncAll_CollectsPartialFailures(t *testing.T) {
	f := newFixture(t)
	targets := []Target{
		{SiteID: "a", Key: NewKey("1", "7")},
		{SiteID: "a", Key: NewKey("2", "7")},
		{SiteID: "b", Key: NewKey("3", "7")},
		{SiteID: "b", Key: NewKey("4", "7")},
	}
	var listedSite string
	c := f.coordinator(func(_ context.Context, siteID string, key Key) (Result, error) {
		if key == NewKey("2", "7") {
			return Result{}, &transport.ConnectivityError{Call: "x", Err: errors.New("timeout")}
		}
		return Result{Updated: true, Warnings: []string{fmt.Sprintf("w-%s", key)}}, nil
	}, func(_ context.Context, siteID string) ([]Target, error) {
		listedSite = siteID
		return targets, nil
	})
	c.Block("b", NewKey("4", "7"), "edit")

	report, err := c.SyncAll(context.Background(), "", true)
	require.NoError(t, err)
	assert.Equal(t, "", listedSite)

	assert.Len(t, report.Results, 2)
	assert.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures, targets[1])
	assert.Equal(t, []Target{targets[3]}, report.Skipped)
	assert.True(t, report.Updated())
	assert.ElementsMatch(t, []string{"w-1#7", "w-3#7"}, report.Warnings())
	assert.Error(t, report.Err())

	for _, ev := range f.events() {
		assert.True(t, ev.Auto)
	}
	assert.Len(t, f.events(), 2)
}

func TestSyncAll_SkipsRecentlySyncedUnlessForced(t *testing.T) {
	f := newFixture(t)
	var runs atomic.Int32
	target := Target{SiteID: "a", Key: NewKey("1", "7")}
	c := f.coordinator(func(context.Context, string, Key) (Result, error) {
		runs.Add(1)
		return Result{}, nil
	}, func(context.Context, string) ([]Target, error) { return []Target{target}, nil })

	_, err := c.Sync(context.Background(), "a", target.Key)
	require.NoError(t, err)

	report, err := c.SyncAll(context.Background(), "a", false)
	require.NoError(t, err)
	assert.Equal(t, []Target{target}, report.Skipped)
	assert.Equal(t, int32(1), runs.Load())

	report, err = c.SyncAll(context.Background(), "a", true)
	require.NoError(t, err)
	assert.Len(t, report.Results, 1)
	assert.Equal(t, int32(2), runs.Load())
}

func TestSyncAll_Offline(t *testing.T) {
	f := newFixture(t)
	f.monitor.SetOnline(false)
	c := f.coordinator(func(context.Context, string, Key) (Result, error) { return Result{}, nil },
		func(context.Context, string) ([]Target, error) { return nil, nil })

	_, err := c.SyncAll(context.Background(), "", true)
	assert.ErrorIs(t, err, transport.ErrOffline)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"offline", transport.ErrOffline, KindConnectivity},
		{"timeout", context.DeadlineExceeded, KindConnectivity},
		{"rejected", &transport.ServerError{Call: "c", Code: "invalidrecord"}, KindRejected},
		{"conflict", &ConflictError{Component: "mod_lesson", EntityID: "42"}, KindConflict},
		{"wrapped conflict", fmt.Errorf("x: %w", &ConflictError{}), KindConflict},
		{"internal", &InternalError{Op: "save", Err: errors.New("disk full")}, KindInternal},
		{"plain", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestKey_Split(t *testing.T) {
	e, u := NewKey("42", "7").Split()
	assert.Equal(t, "42", e)
	assert.Equal(t, "7", u)

	e, u = Key("mod_lesson#42#x").Split()
	assert.Equal(t, "mod_lesson", e)
	assert.Equal(t, "42#x", u)

	e, u = Key("solo").Split()
	assert.Equal(t, "solo", e)
	assert.Equal(t, "", u)
}

func TestRejectionWarning(t *testing.T) {
	w := RejectionWarning("mod_lesson", "42", &transport.ServerError{Call: "c", Code: "nopermission", Message: "No access"})
	assert.Contains(t, w, "mod_lesson 42")
	assert.Contains(t, w, "No access")
}

func TestHandlers_RunAllAndRunKey(t *testing.T) {
	f := newFixture(t)
	lessons := f.coordinator(func(context.Context, string, Key) (Result, error) {
		return Result{Updated: true, Warnings: []string{"w"}}, nil
	}, func(context.Context, string) ([]Target, error) {
		return []Target{{SiteID: "a", Key: "1#7"}}, nil
	})
	failing := New(Config[Result]{
		Component:  "mod_quiz",
		Reconcile:  func(context.Context, string, Key) (Result, error) { return Result{}, nil },
		Pending:    func(context.Context, string) ([]Target, error) { return nil, errors.New("db locked") },
		Timestamps: f.times,
		Clock:      f.clock,
	})

	handlers := NewHandlers(failing, lessons)
	all := handlers.All()
	require.Len(t, all, 2)
	assert.Equal(t, "mod_lesson", all[0].Component())

	summaries, err := handlers.RunAll(context.Background(), "", false)
	assert.Error(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, 1, summaries[0].Synced)
	assert.True(t, summaries[0].Updated)
	assert.Equal(t, []string{"w"}, summaries[0].Warnings)
	assert.NotEmpty(t, summaries[1].Errors)

	h, ok := handlers.Get("mod_lesson")
	require.True(t, ok)
	ks, err := h.RunKey(context.Background(), "a", "1#7", false)
	require.NoError(t, err)
	assert.False(t, ks.Ran)

	ks, err = h.RunKey(context.Background(), "a", "1#7", true)
	require.NoError(t, err)
	assert.True(t, ks.Ran)
	assert.True(t, ks.Updated)

	_, ok = handlers.Get("missing")
	assert.False(t, ok)
}
