// Package syncer coordinates reconciliation of offline state with the server:
// one running sync per key, interval gating, blocking and sync-all sweeps.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrlokans/campussync/internal/clock"
	"github.com/mrlokans/campussync/internal/events"
	"github.com/mrlokans/campussync/internal/flight"
	"github.com/mrlokans/campussync/internal/network"
	"github.com/mrlokans/campussync/internal/transport"
)

const (
	DefaultMinInterval = 5 * time.Minute
	DefaultConcurrency = 4
)

// Reconciler performs one sync of one key.
type Reconciler[T Outcome] func(ctx context.Context, siteID string, key Key) (T, error)

// PendingLister returns every key with offline state. An empty siteID means all sites.
type PendingLister func(ctx context.Context, siteID string) ([]Target, error)

type TimestampStore interface {
	LastSync(ctx context.Context, siteID, component, key string) (time.Time, error)
	SetSynced(ctx context.Context, siteID, component, key string, at time.Time, warnings []string) error
}

type Emitter interface {
	Emit(name string, payload any, siteID string)
}

type Config[T Outcome] struct {
	Component    string
	Reconcile    Reconciler[T]
	Pending      PendingLister
	Timestamps   TimestampStore
	Connectivity network.Connectivity
	Events       Emitter
	Clock        clock.Clock
	MinInterval  time.Duration
	Concurrency  int
	// KeyParts splits a key into the entity and user reported in events.
	// Defaults to Key.Split.
	KeyParts func(Key) (entityID, userID string)
}

// Coordinator owns the sync lifecycle for one component.
type Coordinator[T Outcome] struct {
	component   string
	reconcile   Reconciler[T]
	pending     PendingLister
	timestamps  TimestampStore
	conn        network.Connectivity
	events      Emitter
	clock       clock.Clock
	minInterval time.Duration
	concurrency int
	keyParts    func(Key) (string, string)

	flights flight.Group[T]

	mu     sync.Mutex
	blocks map[Target]map[string]struct{}
}

func New[T Outcome](cfg Config[T]) *Coordinator[T] {
	c := &Coordinator[T]{
		component:   cfg.Component,
		reconcile:   cfg.Reconcile,
		pending:     cfg.Pending,
		timestamps:  cfg.Timestamps,
		conn:        cfg.Connectivity,
		events:      cfg.Events,
		clock:       cfg.Clock,
		minInterval: cfg.MinInterval,
		concurrency: cfg.Concurrency,
		keyParts:    cfg.KeyParts,
		blocks:      make(map[Target]map[string]struct{}),
	}
	if c.clock == nil {
		c.clock = clock.Real{}
	}
	if c.minInterval <= 0 {
		c.minInterval = DefaultMinInterval
	}
	if c.concurrency <= 0 {
		c.concurrency = DefaultConcurrency
	}
	if c.keyParts == nil {
		c.keyParts = Key.Split
	}
	return c
}

func (c *Coordinator[T]) Component() string { return c.component }

// Sync reconciles key now. Concurrent calls for the same key share one run.
func (c *Coordinator[T]) Sync(ctx context.Context, siteID string, key Key) (T, error) {
	return c.sync(ctx, siteID, key, false)
}

// SyncIfNeeded reconciles key unless it was synced less than MinInterval ago.
// ran is false when the call was skipped.
func (c *Coordinator[T]) SyncIfNeeded(ctx context.Context, siteID string, key Key) (res T, ran bool, err error) {
	return c.syncIfNeeded(ctx, siteID, key, false)
}

// IsSyncing reports whether a run for key is in progress.
func (c *Coordinator[T]) IsSyncing(siteID string, key Key) bool {
	return c.flights.InFlight(flightKey(siteID, key))
}

func (c *Coordinator[T]) syncIfNeeded(ctx context.Context, siteID string, key Key, auto bool) (T, bool, error) {
	var zero T
	last, err := c.timestamps.LastSync(ctx, siteID, c.component, string(key))
	if err != nil {
		return zero, false, &InternalError{Op: "read last sync time", Err: err}
	}
	if !last.IsZero() && c.clock.Now().Sub(last) < c.minInterval {
		return zero, false, nil
	}
	res, err := c.sync(ctx, siteID, key, auto)
	return res, true, err
}

func (c *Coordinator[T]) sync(ctx context.Context, siteID string, key Key, auto bool) (T, error) {
	var zero T
	if ops := c.blockers(siteID, key); len(ops) > 0 {
		return zero, fmt.Errorf("%s %s: %w by %v", c.component, key, ErrBlocked, ops)
	}
	res, _, err := c.flights.Do(ctx, flightKey(siteID, key), func(ctx context.Context) (T, error) {
		return c.run(ctx, siteID, key, auto)
	})
	return res, err
}

func (c *Coordinator[T]) run(ctx context.Context, siteID string, key Key, auto bool) (T, error) {
	var zero T
	if c.conn != nil && !c.conn.IsOnline() {
		return zero, fmt.Errorf("%s %s: %w", c.component, key, transport.ErrOffline)
	}

	res, err := c.reconcile(ctx, siteID, key)
	if err != nil {
		slog.Warn("Sync failed",
			"component", c.component, "site", siteID, "key", key,
			"kind", Classify(err).String(), "error", err)
		return zero, err
	}

	warnings := res.SyncWarnings()
	if err := c.timestamps.SetSynced(ctx, siteID, c.component, string(key), c.clock.Now(), warnings); err != nil {
		return res, &InternalError{Op: "store sync time", Err: err}
	}

	if res.SyncUpdated() || len(warnings) > 0 {
		c.emit(siteID, key, res, auto)
	}
	slog.Debug("Sync finished", "component", c.component, "site", siteID, "key", key,
		"updated", res.SyncUpdated(), "warnings", len(warnings))
	return res, nil
}

func (c *Coordinator[T]) emit(siteID string, key Key, res T, auto bool) {
	if c.events == nil {
		return
	}
	entityID, userID := c.keyParts(key)
	c.events.Emit(events.SyncCompleted, events.SyncCompletedPayload{
		Component: c.component,
		SiteID:    siteID,
		EntityID:  entityID,
		UserID:    userID,
		Warnings:  res.SyncWarnings(),
		Updated:   res.SyncUpdated(),
		Auto:      auto,
	}, siteID)
}

// SyncAll reconciles every pending key on siteID, or on all sites when siteID
// is empty. Without force, keys synced within MinInterval are skipped. A
// failing key never stops the others; failures are collected in the report.
func (c *Coordinator[T]) SyncAll(ctx context.Context, siteID string, force bool) (*Report[T], error) {
	if c.pending == nil {
		return newReport[T](), nil
	}
	if c.conn != nil && !c.conn.IsOnline() {
		return nil, fmt.Errorf("%s: %w", c.component, transport.ErrOffline)
	}
	targets, err := c.pending(ctx, siteID)
	if err != nil {
		return nil, &InternalError{Op: "list pending keys", Err: err}
	}

	report := newReport[T]()
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, t := range targets {
		if c.IsBlocked(t.SiteID, t.Key) {
			report.skip(t)
			continue
		}
		g.Go(func() error {
			var (
				res T
				ran = true
				err error
			)
			if force {
				res, err = c.sync(ctx, t.SiteID, t.Key, true)
			} else {
				res, ran, err = c.syncIfNeeded(ctx, t.SiteID, t.Key, true)
			}
			report.record(t, res, ran, err)
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("Sync-all finished",
		"component", c.component, "site", siteID, "targets", len(targets),
		"synced", len(report.Results), "skipped", len(report.Skipped), "failed", len(report.Failures))
	return report, nil
}

// Block prevents syncs of key while operation holds it. Runs already in
// progress are not interrupted.
func (c *Coordinator[T]) Block(siteID string, key Key, operation string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := Target{SiteID: siteID, Key: key}
	if c.blocks[t] == nil {
		c.blocks[t] = make(map[string]struct{})
	}
	c.blocks[t][operation] = struct{}{}
}

// Unblock releases operation's hold on key. An empty operation releases all holds.
func (c *Coordinator[T]) Unblock(siteID string, key Key, operation string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := Target{SiteID: siteID, Key: key}
	if operation == "" {
		delete(c.blocks, t)
		return
	}
	delete(c.blocks[t], operation)
	if len(c.blocks[t]) == 0 {
		delete(c.blocks, t)
	}
}

func (c *Coordinator[T]) IsBlocked(siteID string, key Key) bool {
	return len(c.blockers(siteID, key)) > 0
}

func (c *Coordinator[T]) blockers(siteID string, key Key) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ops := c.blocks[Target{SiteID: siteID, Key: key}]
	out := make([]string, 0, len(ops))
	for op := range ops {
		out = append(out, op)
	}
	return out
}

func flightKey(siteID string, key Key) string {
	return siteID + "|" + string(key)
}
