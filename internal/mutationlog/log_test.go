package mutationlog

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/campussync/internal/clock"
	"github.com/mrlokans/campussync/internal/database/mutations"
	"github.com/mrlokans/campussync/internal/database/synctime"
	"github.com/mrlokans/campussync/internal/entities"
	"github.com/mrlokans/campussync/internal/network"
	"github.com/mrlokans/campussync/internal/syncer"
	"github.com/mrlokans/campussync/internal/transport"
)

type sentCall struct {
	Call string
	Args transport.Args
}

type fakeWriter struct {
	mu       sync.Mutex
	sent     []sentCall
	fails    map[string]error // keyed by call name
	failOnce map[string]error // consumed by the first attempt
	delay    time.Duration
}

func (w *fakeWriter) Write(_ context.Context, call string, args transport.Args) (transport.Response, error) {
	if w.delay > 0 {
		time.Sleep(w.delay)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fails[call]; err != nil {
		return nil, err
	}
	if err, ok := w.failOnce[call]; ok {
		delete(w.failOnce, call)
		return nil, err
	}
	w.sent = append(w.sent, sentCall{Call: call, Args: args})
	return transport.Response(`{"status":true}`), nil
}

func (w *fakeWriter) calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.sent))
	for _, s := range w.sent {
		out = append(out, s.Call)
	}
	return out
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entities.QueuedMutation{}, &entities.SyncTimestamp{}))
	return db
}

func newLog(t *testing.T, w *fakeWriter) (*Log, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	clk := clock.NewManual(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	return New(mutations.NewRepository(db), w, clk), db
}

func TestEnqueue_IdenticalCallIsNoOp(t *testing.T) {
	log, _ := newLog(t, &fakeWriter{})

	created, err := log.Enqueue("site", "mod_lesson", "42", "mod_lesson_process_page", transport.Args{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = log.Enqueue("site", "mod_lesson", "42", "mod_lesson_process_page", transport.Args{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.False(t, created)

	pending, err := log.ListPending("site", mutations.Filter{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, `{"a":1,"b":2}`, pending[0].Args)
}

func TestEnqueue_RequiresScopeAndCall(t *testing.T) {
	log, _ := newLog(t, &fakeWriter{})
	_, err := log.Enqueue("site", "", "42", "call", nil)
	assert.Error(t, err)
	_, err = log.Enqueue("site", "mod_lesson", "42", "", nil)
	assert.Error(t, err)
}

func TestReplayAll_FIFOAndDequeue(t *testing.T) {
	w := &fakeWriter{}
	log, _ := newLog(t, w)

	_, err := log.Enqueue("site", "mod_lesson", "42", "start_attempt", transport.Args{"lessonid": 42})
	require.NoError(t, err)
	_, err = log.Enqueue("site", "mod_lesson", "42", "process_page", transport.Args{"lessonid": 42, "page": 1})
	require.NoError(t, err)
	_, err = log.Enqueue("site", "mod_lesson", "42", "finish_attempt", transport.Args{"lessonid": 42})
	require.NoError(t, err)

	res, err := log.ReplayAll(context.Background(), "site")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sent)
	assert.True(t, res.SyncUpdated())
	assert.Equal(t, []string{"start_attempt", "process_page", "finish_attempt"}, w.calls())
	assert.Equal(t, float64(1), w.sent[1].Args["page"])

	pending, err := log.ListPending("site", mutations.Filter{})
	require.NoError(t, err)
	assert.Empty(t, pending)

	res, err = log.ReplayAll(context.Background(), "site")
	require.NoError(t, err)
	assert.Zero(t, res.Sent)
	assert.False(t, res.SyncUpdated())
	assert.Len(t, w.calls(), 3)
}

func TestReplayAll_SendsDuplicateCallsOnce(t *testing.T) {
	w := &fakeWriter{}
	log, _ := newLog(t, w)

	args := transport.Args{"cmid": 42, "completed": true}
	_, err := log.Enqueue("site", "core_completion", "42", "update_completion", args)
	require.NoError(t, err)
	_, err = log.Enqueue("site", "mod_lesson", "42", "update_completion", args)
	require.NoError(t, err)

	res, err := log.ReplayAll(context.Background(), "site")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, []string{"update_completion"}, w.calls())

	pending, err := log.ListPending("site", mutations.Filter{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReplayAll_ConnectivityHaltsOnlyThatScope(t *testing.T) {
	w := &fakeWriter{fails: map[string]error{
		"save_a": &transport.ConnectivityError{Call: "save_a", Err: errors.New("reset")},
	}}
	log, _ := newLog(t, w)

	_, err := log.Enqueue("site", "mod_a", "1", "save_a", transport.Args{"n": 1})
	require.NoError(t, err)
	_, err = log.Enqueue("site", "mod_b", "2", "save_b", transport.Args{"n": 1})
	require.NoError(t, err)
	_, err = log.Enqueue("site", "mod_a", "1", "finish_a", transport.Args{"n": 1})
	require.NoError(t, err)

	before, err := log.ListPending("site", mutations.Filter{Component: "mod_a"})
	require.NoError(t, err)
	require.Len(t, before, 2)

	res, err := log.ReplayAll(context.Background(), "site")
	require.Error(t, err)
	assert.Equal(t, syncer.KindConnectivity, syncer.Classify(err))
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Deferred)
	assert.Equal(t, []string{"save_b"}, w.calls())

	after, err := log.ListPending("site", mutations.Filter{Component: "mod_a"})
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, "save_a", after[0].CallName)
	assert.Equal(t, "finish_a", after[1].CallName)
}

func TestReplayAll_UndeliveredCallIsNotADuplicate(t *testing.T) {
	w := &fakeWriter{failOnce: map[string]error{
		"x": &transport.ConnectivityError{Call: "x", Err: errors.New("reset")},
	}}
	log, _ := newLog(t, w)

	_, err := log.Enqueue("site", "mod_a", "1", "x", transport.Args{"n": 1})
	require.NoError(t, err)
	_, err = log.Enqueue("site", "mod_b", "2", "x", transport.Args{"n": 1})
	require.NoError(t, err)
	_, err = log.Enqueue("site", "mod_b", "2", "y", transport.Args{"n": 1})
	require.NoError(t, err)

	res, err := log.ReplayAll(context.Background(), "site")
	require.Error(t, err)
	assert.Zero(t, res.Duplicates)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, []string{"x", "y"}, w.calls())

	pending, err := log.ListPending("site", mutations.Filter{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "mod_a", pending[0].Component)
}

func TestReplay_OverlappingTriggersSendOnce(t *testing.T) {
	w := &fakeWriter{delay: 100 * time.Millisecond}
	log, db := newLog(t, w)
	coord := syncer.New(syncer.Config[*ReplayResult]{
		Component:    Component,
		Reconcile:    log.Reconcile,
		Pending:      log.Pending,
		Timestamps:   synctime.NewRepository(db),
		Connectivity: network.NewMonitor(true),
		KeyParts:     ScopeParts,
	})

	_, err := log.Enqueue("s", "mod_quiz", "7", "save", transport.Args{"n": 1})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := log.ReplayAll(context.Background(), "s")
			assert.NoError(t, err)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := coord.Sync(context.Background(), "s", ScopeKey("mod_quiz", "7"))
		assert.NoError(t, err)
	}()
	wg.Wait()

	assert.Len(t, w.calls(), 1)
	pending, err := log.ListPending("s", mutations.Filter{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReplayAll_RejectionDiscardsWithWarning(t *testing.T) {
	w := &fakeWriter{fails: map[string]error{
		"save": &transport.ServerError{Call: "save", Code: "invalidrecord", Message: "Lesson closed"},
	}}
	log, _ := newLog(t, w)

	_, err := log.Enqueue("site", "mod_lesson", "42", "save", transport.Args{"n": 1})
	require.NoError(t, err)
	_, err = log.Enqueue("site", "mod_lesson", "42", "finish", transport.Args{"n": 1})
	require.NoError(t, err)

	res, err := log.ReplayAll(context.Background(), "site")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 1, res.Sent)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "Lesson closed")

	pending, err := log.ListPending("site", mutations.Filter{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSubmit_QueuesOnConnectivityFailure(t *testing.T) {
	w := &fakeWriter{fails: map[string]error{"save": transport.ErrOffline}}
	log, _ := newLog(t, w)

	_, queued, err := log.Submit(context.Background(), "site", "mod_lesson", "42", "save", transport.Args{"n": 1})
	require.NoError(t, err)
	assert.True(t, queued)

	w.fails["save"] = &transport.ServerError{Call: "save", Code: "nopermission"}
	_, queued, err = log.Submit(context.Background(), "site", "mod_lesson", "43", "save", transport.Args{"n": 2})
	assert.Error(t, err)
	assert.False(t, queued)

	delete(w.fails, "save")
	resp, queued, err := log.Submit(context.Background(), "site", "mod_lesson", "44", "save", transport.Args{"n": 3})
	require.NoError(t, err)
	assert.False(t, queued)
	assert.NotEmpty(t, resp)

	pending, err := log.ListPending("site", mutations.Filter{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "42", pending[0].EntityID)
}

func TestDequeueAllAndPrefix(t *testing.T) {
	log, _ := newLog(t, &fakeWriter{})
	for _, comp := range []string{"mod_lesson", "mod_lesson_page", "mod_quiz"} {
		_, err := log.Enqueue("site", comp, "1", "save", transport.Args{"c": comp})
		require.NoError(t, err)
	}
	_, err := log.Enqueue("site", "mod_quiz", "2", "save", transport.Args{"n": 2})
	require.NoError(t, err)

	require.NoError(t, log.DequeueAll("site", "mod_quiz", "1"))
	require.NoError(t, log.DeletePrefix("site", "mod_lesson"))
	assert.Error(t, log.DeletePrefix("site", ""))

	pending, err := log.ListPending("site", mutations.Filter{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "mod_quiz", pending[0].Component)
	assert.Equal(t, "2", pending[0].EntityID)

	require.NoError(t, log.Dequeue(pending[0]))
	pending, err = log.ListPending("site", mutations.Filter{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCoordinator_ReplaysPerScope(t *testing.T) {
	w := &fakeWriter{}
	log, db := newLog(t, w)
	clk := clock.NewManual(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	coord := syncer.New(syncer.Config[*ReplayResult]{
		Component:    Component,
		Reconcile:    log.Reconcile,
		Pending:      log.Pending,
		Timestamps:   synctime.NewRepository(db),
		Connectivity: network.NewMonitor(true),
		Clock:        clk,
		KeyParts:     ScopeParts,
	})

	_, err := log.Enqueue("a", "mod_lesson", "42", "save", transport.Args{"n": 1})
	require.NoError(t, err)
	_, err = log.Enqueue("b", "mod_quiz", "7", "save", transport.Args{"n": 1})
	require.NoError(t, err)

	report, err := coord.SyncAll(context.Background(), "", false)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Len(t, report.Results, 2)
	assert.True(t, report.Updated())
	assert.Len(t, w.calls(), 2)

	_, err = log.Reconcile(context.Background(), "a", "malformed")
	assert.Equal(t, syncer.KindInternal, syncer.Classify(err))
}
