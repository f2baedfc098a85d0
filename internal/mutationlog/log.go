// Package mutationlog queues remote writes made while offline and replays them,
// in order and exactly once per distinct call, when connectivity returns.
package mutationlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mrlokans/campussync/internal/clock"
	"github.com/mrlokans/campussync/internal/database/mutations"
	"github.com/mrlokans/campussync/internal/entities"
	"github.com/mrlokans/campussync/internal/flight"
	"github.com/mrlokans/campussync/internal/syncer"
	"github.com/mrlokans/campussync/internal/transport"
)

// Component is the name the log's sync coordinator reports in events.
const Component = "mutation_log"

type Store interface {
	Insert(m *entities.QueuedMutation) (bool, error)
	List(siteID string, f mutations.Filter) ([]entities.QueuedMutation, error)
	Delete(id uint) error
	DeleteScope(siteID, component, entityID string) (int64, error)
	DeleteComponentPrefix(siteID, prefix string) (int64, error)
	Scopes(siteID string) ([]entities.QueuedMutation, error)
}

// ReplayResult summarises one replay.
type ReplayResult struct {
	Sent       int      `json:"sent"`
	Rejected   int      `json:"rejected"`
	Duplicates int      `json:"duplicates"`
	Deferred   int      `json:"deferred"`
	Warnings   []string `json:"warnings"`
}

func (r *ReplayResult) SyncWarnings() []string {
	if r == nil {
		return nil
	}
	return r.Warnings
}

func (r *ReplayResult) SyncUpdated() bool {
	return r != nil && r.Sent+r.Rejected+r.Duplicates > 0
}

// Log replays a site's queue under one lock per site, shared by ReplayAll
// and Reconcile, and lists rows only once the lock is held. A row is
// therefore never sent by two replays of the same process.
type Log struct {
	store  Store
	writer transport.Writer
	clock  clock.Clock

	replays flight.Group[*ReplayResult]

	mu    sync.Mutex
	sites map[string]chan struct{}
}

func New(store Store, writer transport.Writer, clk clock.Clock) *Log {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Log{store: store, writer: writer, clock: clk, sites: make(map[string]chan struct{})}
}

func (l *Log) lockSite(ctx context.Context, siteID string) (unlock func(), err error) {
	l.mu.Lock()
	sem, ok := l.sites[siteID]
	if !ok {
		sem = make(chan struct{}, 1)
		l.sites[siteID] = sem
	}
	l.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// listAndReplay lists the rows matching f and replays them while holding the
// site lock.
func (l *Log) listAndReplay(ctx context.Context, siteID string, f mutations.Filter) (*ReplayResult, error) {
	unlock, err := l.lockSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	entries, err := l.store.List(siteID, f)
	if err != nil {
		return nil, &syncer.InternalError{Op: "list queued writes", Err: err}
	}
	return l.replay(ctx, entries)
}

// Enqueue stores a write for later replay. Enqueueing a call identical to one
// already queued for the same entity is a no-op; created reports which happened.
func (l *Log) Enqueue(siteID, component, entityID, call string, args transport.Args) (created bool, err error) {
	if component == "" || entityID == "" || call == "" {
		return false, fmt.Errorf("component, entity and call are required")
	}
	canonical, err := args.Canonical()
	if err != nil {
		return false, err
	}
	hash, err := args.Hash()
	if err != nil {
		return false, err
	}
	created, err = l.store.Insert(&entities.QueuedMutation{
		SiteID:     siteID,
		Component:  component,
		EntityID:   entityID,
		CallName:   call,
		ArgsHash:   hash,
		Args:       canonical,
		EnqueuedAt: l.clock.Now(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to enqueue %s: %w", call, err)
	}
	slog.Debug("Queued offline write", "site", siteID, "component", component, "entity", entityID,
		"call", call, "created", created)
	return created, nil
}

// Submit sends a write now, or queues it when the server cannot be reached.
// queued reports whether the write was deferred; server rejections are
// returned and never queued.
func (l *Log) Submit(ctx context.Context, siteID, component, entityID, call string, args transport.Args) (resp transport.Response, queued bool, err error) {
	resp, err = l.writer.Write(ctx, call, args)
	if err == nil || !transport.IsConnectivity(err) {
		return resp, false, err
	}
	if _, err := l.Enqueue(siteID, component, entityID, call, args); err != nil {
		return nil, false, err
	}
	return nil, true, nil
}

func (l *Log) ListPending(siteID string, f mutations.Filter) ([]entities.QueuedMutation, error) {
	return l.store.List(siteID, f)
}

func (l *Log) Dequeue(m entities.QueuedMutation) error {
	return l.store.Delete(m.ID)
}

// DequeueAll drops every queued write for one entity of a component.
func (l *Log) DequeueAll(siteID, component, entityID string) error {
	_, err := l.store.DeleteScope(siteID, component, entityID)
	return err
}

// DeletePrefix drops every queued write whose component starts with prefix.
func (l *Log) DeletePrefix(siteID, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("empty component prefix")
	}
	_, err := l.store.DeleteComponentPrefix(siteID, prefix)
	return err
}

// ReplayAll sends every queued write of siteID. Calls queued more than once,
// even under different entities, are sent once. Writes of one entity go out in
// enqueue order; a connectivity failure halts that entity only. Each row is
// deleted as soon as its call resolves. Concurrent calls for one site share
// a single run.
func (l *Log) ReplayAll(ctx context.Context, siteID string) (*ReplayResult, error) {
	res, _, err := l.replays.Do(ctx, siteID, func(ctx context.Context) (*ReplayResult, error) {
		return l.listAndReplay(ctx, siteID, mutations.Filter{})
	})
	return res, err
}

// Reconcile replays the writes of one scope key built by ScopeKey. It
// satisfies syncer.Reconciler.
func (l *Log) Reconcile(ctx context.Context, siteID string, key syncer.Key) (*ReplayResult, error) {
	component, entityID, ok := strings.Cut(string(key), "#")
	if !ok {
		return nil, &syncer.InternalError{Op: "replay", Err: fmt.Errorf("malformed scope key %q", key)}
	}
	res, err := l.listAndReplay(ctx, siteID, mutations.Filter{Component: component, EntityID: entityID})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Pending lists the scopes with queued writes. It satisfies syncer.PendingLister.
func (l *Log) Pending(_ context.Context, siteID string) ([]syncer.Target, error) {
	scopes, err := l.store.Scopes(siteID)
	if err != nil {
		return nil, err
	}
	targets := make([]syncer.Target, 0, len(scopes))
	for _, s := range scopes {
		targets = append(targets, syncer.Target{SiteID: s.SiteID, Key: ScopeKey(s.Component, s.EntityID)})
	}
	return targets, nil
}

func ScopeKey(component, entityID string) syncer.Key {
	return syncer.Key(component + "#" + entityID)
}

// ScopeParts reports a whole scope key as the entity of sync events.
func ScopeParts(key syncer.Key) (entityID, userID string) {
	return string(key), ""
}

func (l *Log) replay(ctx context.Context, entries []entities.QueuedMutation) (*ReplayResult, error) {
	res := &ReplayResult{}
	seen := make(map[string]bool, len(entries))
	halted := make(map[string]bool)
	var errs []error

	for _, m := range entries {
		scope := m.SiteID + "|" + m.Scope()
		if halted[scope] {
			res.Deferred++
			continue
		}

		call := m.SiteID + "|" + m.CallName + "|" + m.ArgsHash
		if seen[call] {
			if err := l.store.Delete(m.ID); err != nil {
				halted[scope] = true
				errs = append(errs, &syncer.InternalError{Op: "drop duplicate write", Err: err})
				continue
			}
			res.Duplicates++
			continue
		}

		// Only a resolved call makes later copies duplicates; a copy of an
		// undelivered call keeps its place in its own scope.
		resolved, err := l.send(ctx, m, res)
		if resolved {
			seen[call] = true
		}
		if err != nil {
			halted[scope] = true
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		slog.Warn("Replay incomplete", "sent", res.Sent, "rejected", res.Rejected, "deferred", res.Deferred,
			"error", errors.Join(errs...))
	}
	return res, errors.Join(errs...)
}

// send writes m and dequeues it. resolved reports whether the server
// answered, with success or a rejection.
func (l *Log) send(ctx context.Context, m entities.QueuedMutation, res *ReplayResult) (resolved bool, err error) {
	var args transport.Args
	if err := json.Unmarshal([]byte(m.Args), &args); err != nil {
		return false, &syncer.InternalError{Op: fmt.Sprintf("decode args of write %d", m.ID), Err: err}
	}

	_, err = l.writer.Write(ctx, m.CallName, args)
	switch syncer.Classify(err) {
	case syncer.KindNone:
		res.Sent++
	case syncer.KindRejected:
		res.Rejected++
		res.Warnings = append(res.Warnings, syncer.RejectionWarning(m.Component, m.EntityID, err))
	default:
		return false, err
	}

	if err := l.store.Delete(m.ID); err != nil {
		return true, &syncer.InternalError{Op: fmt.Sprintf("dequeue write %d", m.ID), Err: err}
	}
	return true, nil
}
