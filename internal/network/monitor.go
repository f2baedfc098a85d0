// Package network tracks whether the remote platform is reachable.
package network

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Connectivity is the view of the network the sync engine depends on.
type Connectivity interface {
	IsOnline() bool
	// Subscribe registers fn for online/offline transitions. The returned func
	// removes the subscription.
	Subscribe(fn func(online bool)) func()
}

// Monitor holds the current connectivity state and notifies subscribers of changes.
type Monitor struct {
	mu       sync.RWMutex
	online   bool
	nextID   int
	handlers map[int]func(bool)
}

func NewMonitor(online bool) *Monitor {
	return &Monitor{
		online:   online,
		handlers: make(map[int]func(bool)),
	}
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline updates the state. Subscribers are only called on a transition.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	handlers := make([]func(bool), 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	slog.Info("network: connectivity changed", "online", online)
	for _, h := range handlers {
		h(online)
	}
}

func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.handlers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.handlers, id)
		m.mu.Unlock()
	}
}

// Probe decides whether the remote is reachable.
type Probe func(ctx context.Context) bool

// HTTPProbe treats any HTTP response from url as reachable.
func HTTPProbe(client *http.Client, url string) Probe {
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}
}

// Watch runs probe every interval until ctx is done, feeding the result to SetOnline.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration, probe Probe) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	check := func() {
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		m.SetOnline(probe(probeCtx))
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
