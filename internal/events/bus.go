// Package events is the in-process event bus used to tell collaborators that a
// sync finished or a package changed status.
package events

import (
	"log/slog"
	"sync"

	"github.com/mrlokans/campussync/internal/entities"
)

const (
	SyncCompleted        = "sync_completed"
	PackageStatusChanged = "package_status_changed"
	DownloadFinished     = "download_finished"
)

// SyncCompletedPayload is emitted after a reconciliation that changed something
// or produced warnings.
type SyncCompletedPayload struct {
	Component string   `json:"component"`
	SiteID    string   `json:"site_id"`
	EntityID  string   `json:"entity_id"`
	UserID    string   `json:"user_id,omitempty"`
	Warnings  []string `json:"warnings"`
	Updated   bool     `json:"updated"`
	Auto      bool     `json:"auto"` // started by a sync-all run rather than a direct call
}

// PackageStatusPayload is emitted whenever a stored package status changes.
type PackageStatusPayload struct {
	SiteID      string                 `json:"site_id"`
	ComponentID string                 `json:"component_id"`
	Component   string                 `json:"component"`
	Status      entities.PackageStatus `json:"status"`
}

// DownloadFinishedPayload is emitted when every item of a multi-package
// download has settled.
type DownloadFinishedPayload struct {
	SiteID     string                 `json:"site_id"`
	DownloadID string                 `json:"download_id"`
	Items      int                    `json:"items"`
	Status     entities.PackageStatus `json:"status"`
	Err        error                  `json:"-"`
}

type Event struct {
	Name    string
	SiteID  string
	Payload any
}

type Handler func(Event)

type subscription struct {
	id      int
	siteID  string
	handler Handler
}

// Bus delivers events synchronously, in subscription order, on the emitting goroutine.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string][]subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// On subscribes handler to name. An empty siteID receives events of every site.
// The returned func removes the subscription.
func (b *Bus) On(name, siteID string, handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[name] = append(b.subs[name], subscription{id: id, siteID: siteID, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[name]
		for i, s := range subs {
			if s.id == id {
				b.subs[name] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

func (b *Bus) Emit(name string, payload any, siteID string) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[name]...)
	b.mu.RUnlock()

	ev := Event{Name: name, SiteID: siteID, Payload: payload}
	for _, s := range subs {
		if s.siteID != "" && s.siteID != siteID {
			continue
		}
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("events: handler panicked", "event", ev.Name, "panic", r)
		}
	}()
	s.handler(ev)
}
