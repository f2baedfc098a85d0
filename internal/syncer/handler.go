package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Summary is the untyped outcome of a sync-all run of one component.
type Summary struct {
	Component string   `json:"component"`
	Synced    int      `json:"synced"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Updated   bool     `json:"updated"`
	Warnings  []string `json:"warnings,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// KeySummary is the untyped outcome of one key's sync.
type KeySummary struct {
	Ran      bool     `json:"ran"`
	Updated  bool     `json:"updated"`
	Warnings []string `json:"warnings,omitempty"`
}

// Handler is the component-independent view of a Coordinator used by triggers.
type Handler interface {
	Component() string
	RunAll(ctx context.Context, siteID string, force bool) (Summary, error)
	RunKey(ctx context.Context, siteID string, key Key, force bool) (KeySummary, error)
}

var _ Handler = (*Coordinator[Result])(nil)

func (c *Coordinator[T]) RunAll(ctx context.Context, siteID string, force bool) (Summary, error) {
	report, err := c.SyncAll(ctx, siteID, force)
	if err != nil {
		return Summary{Component: c.component}, err
	}
	s := Summary{
		Component: c.component,
		Synced:    len(report.Results),
		Skipped:   len(report.Skipped),
		Failed:    len(report.Failures),
		Updated:   report.Updated(),
		Warnings:  report.Warnings(),
	}
	for t, err := range report.Failures {
		s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", t, err))
	}
	sort.Strings(s.Errors)
	return s, nil
}

func (c *Coordinator[T]) RunKey(ctx context.Context, siteID string, key Key, force bool) (KeySummary, error) {
	var (
		res T
		ran = true
		err error
	)
	if force {
		res, err = c.Sync(ctx, siteID, key)
	} else {
		res, ran, err = c.SyncIfNeeded(ctx, siteID, key)
	}
	if err != nil || !ran {
		return KeySummary{Ran: ran}, err
	}
	return KeySummary{Ran: true, Updated: res.SyncUpdated(), Warnings: res.SyncWarnings()}, nil
}

// Handlers is the set of registered sync handlers, keyed by component.
type Handlers struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewHandlers(hs ...Handler) *Handlers {
	r := &Handlers{handlers: make(map[string]Handler)}
	for _, h := range hs {
		r.Register(h)
	}
	return r
}

func (r *Handlers) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Component()] = h
}

func (r *Handlers) Get(component string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[component]
	return h, ok
}

// All returns the handlers ordered by component.
func (r *Handlers) All() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Component() < out[j].Component() })
	return out
}

// RunAll runs every handler in turn. A handler that fails does not stop the
// others; its error is recorded in the returned summaries' order.
func (r *Handlers) RunAll(ctx context.Context, siteID string, force bool) ([]Summary, error) {
	var summaries []Summary
	var errs []error
	for _, h := range r.All() {
		s, err := h.RunAll(ctx, siteID, force)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Component(), err))
			s.Errors = append(s.Errors, err.Error())
		}
		summaries = append(summaries, s)
	}
	return summaries, errors.Join(errs...)
}
