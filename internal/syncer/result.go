package syncer

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Outcome is what every reconciliation result must report.
type Outcome interface {
	SyncWarnings() []string
	SyncUpdated() bool
}

// Result is the stock Outcome.
type Result struct {
	Warnings []string `json:"warnings"`
	Updated  bool     `json:"updated"`
}

func (r Result) SyncWarnings() []string { return r.Warnings }
func (r Result) SyncUpdated() bool      { return r.Updated }

// Key identifies one reconciliation unit, usually entity#user.
type Key string

func NewKey(entityID, userID string) Key {
	return Key(entityID + "#" + userID)
}

// Split returns the parts around the first "#". A key without one is all entity.
func (k Key) Split() (entityID, userID string) {
	entityID, userID, _ = strings.Cut(string(k), "#")
	return entityID, userID
}

// Target is one key on one site.
type Target struct {
	SiteID string `json:"site_id"`
	Key    Key    `json:"key"`
}

func (t Target) String() string {
	return fmt.Sprintf("%s/%s", t.SiteID, t.Key)
}

// Report collects the per-target results of SyncAll.
type Report[T Outcome] struct {
	mu       sync.Mutex
	Results  map[Target]T
	Skipped  []Target
	Failures map[Target]error
}

func newReport[T Outcome]() *Report[T] {
	return &Report[T]{
		Results:  make(map[Target]T),
		Failures: make(map[Target]error),
	}
}

func (r *Report[T]) record(t Target, res T, ran bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err != nil:
		r.Failures[t] = err
	case ran:
		r.Results[t] = res
	default:
		r.Skipped = append(r.Skipped, t)
	}
}

func (r *Report[T]) skip(t Target) {
	r.mu.Lock()
	r.Skipped = append(r.Skipped, t)
	r.mu.Unlock()
}

// Updated reports whether any target changed local or remote state.
func (r *Report[T]) Updated() bool {
	for _, res := range r.Results {
		if res.SyncUpdated() {
			return true
		}
	}
	return false
}

// Warnings flattens the warnings of every target.
func (r *Report[T]) Warnings() []string {
	var out []string
	for _, res := range r.Results {
		out = append(out, res.SyncWarnings()...)
	}
	return out
}

// Err joins the failures, or returns nil when every target succeeded.
func (r *Report[T]) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for t, err := range r.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", t, err))
	}
	return errors.Join(errs...)
}
