// Package packages tracks the download status of content packages, drives
// their downloads and rolls statuses up over collections.
package packages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/campussync/internal/cache"
	packagesdb "github.com/mrlokans/campussync/internal/database/packages"
	"github.com/mrlokans/campussync/internal/entities"
	"github.com/mrlokans/campussync/internal/events"
	"github.com/mrlokans/campussync/internal/flight"
	"github.com/mrlokans/campussync/internal/network"
	"github.com/mrlokans/campussync/internal/syncer"
)

const (
	DefaultConcurrency = 3
	DefaultStatusTTL   = 10 * time.Minute
)

type Store interface {
	Get(siteID, component, componentID string) (*entities.PackageEntry, error)
	SetStatus(siteID, component, componentID string, status entities.PackageStatus, upd *packagesdb.Update) (*entities.PackageEntry, bool, error)
}

// ReadInvalidator drops cached transport reads; *transport.Cached implements it.
type ReadInvalidator interface {
	InvalidatePrefix(ctx context.Context, prefix string) error
}

type Emitter interface {
	Emit(name string, payload any, siteID string)
}

type Config struct {
	Store        Store
	Manifest     Manifest
	Fetcher      Fetcher
	Cache        cache.Cache
	Reads        ReadInvalidator
	Events       Emitter
	Connectivity network.Connectivity
	Concurrency  int
	StatusTTL    time.Duration
}

type Engine struct {
	store       Store
	manifest    Manifest
	fetcher     Fetcher
	statuses    cache.Cache
	reads       ReadInvalidator
	events      Emitter
	conn        network.Connectivity
	concurrency int
	statusTTL   time.Duration

	packages  flight.Group[entities.PackageStatus]
	downloads *flight.Registry[*Download]
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{
		store:       cfg.Store,
		manifest:    cfg.Manifest,
		fetcher:     cfg.Fetcher,
		reads:       cfg.Reads,
		events:      cfg.Events,
		conn:        cfg.Connectivity,
		concurrency: cfg.Concurrency,
		statusTTL:   cfg.StatusTTL,
		downloads:   flight.NewRegistry[*Download](),
	}
	c := cfg.Cache
	if c == nil {
		c = cache.NewMemoryCache()
	}
	e.statuses = cache.WithPrefix(c, "pkgstatus:")
	if e.concurrency <= 0 {
		e.concurrency = DefaultConcurrency
	}
	if e.statusTTL <= 0 {
		e.statusTTL = DefaultStatusTTL
	}
	return e
}

// GetStatus returns the download status of ref. With useCache the cached
// answer is used when present; otherwise the stored status is checked against
// the server manifest.
func (e *Engine) GetStatus(ctx context.Context, siteID string, ref Ref, courseID string, useCache bool) (entities.PackageStatus, error) {
	key := statusKey(siteID, ref)
	if useCache {
		if data, err := e.statuses.Get(ctx, key); err == nil {
			return entities.PackageStatus(data), nil
		}
	}

	entry, err := e.store.Get(siteID, ref.Component, ref.ComponentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return e.remember(ctx, key, entities.PackageNotDownloaded), nil
	}
	if err != nil {
		return "", &syncer.InternalError{Op: "read package status", Err: err}
	}

	switch entry.Status {
	case entities.PackageDownloading:
		if e.packages.InFlight(key) {
			return entities.PackageDownloading, nil
		}
		// Interrupted by a restart: the partial files are discarded.
		slog.Info("Resetting interrupted download", "site", siteID, "package", ref)
		if err := e.fetcher.Remove(siteID, ref); err != nil {
			slog.Warn("Failed to remove partial package files", "site", siteID, "package", ref, "error", err)
		}
		if _, err := e.setStatus(siteID, ref, entities.PackageNotDownloaded, nil); err != nil {
			return "", err
		}
		return e.remember(ctx, key, entities.PackageNotDownloaded), nil

	case entities.PackageDownloaded:
		if isOffline(e.conn) {
			return entry.Status, nil
		}
		info, err := e.manifest.Package(ctx, siteID, ref, courseID)
		if err != nil {
			slog.Debug("Manifest unavailable, using stored status", "site", siteID, "package", ref, "error", err)
			return entry.Status, nil
		}
		if info.Revision > entry.Revision {
			if _, err := e.setStatus(siteID, ref, entities.PackageOutdated, nil); err != nil {
				return "", err
			}
			return e.remember(ctx, key, entities.PackageOutdated), nil
		}
	}
	return e.remember(ctx, key, entry.Status), nil
}

// Entry returns the stored state of ref, including the status and download
// time it had before the last change. Never-stored packages yield a
// not_downloaded entry.
func (e *Engine) Entry(siteID string, ref Ref) (*entities.PackageEntry, error) {
	entry, err := e.store.Get(siteID, ref.Component, ref.ComponentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &entities.PackageEntry{
			SiteID:      siteID,
			Component:   ref.Component,
			ComponentID: ref.ComponentID,
			Status:      entities.PackageNotDownloaded,
		}, nil
	}
	if err != nil {
		return nil, &syncer.InternalError{Op: "read package entry", Err: err}
	}
	return entry, nil
}

// AggregateStatus merges the statuses of refs. Refs whose status cannot be
// read are left out and reported in the error.
func (e *Engine) AggregateStatus(ctx context.Context, siteID string, refs []Ref, courseID string) (entities.PackageStatus, error) {
	statuses := make([]entities.PackageStatus, 0, len(refs))
	var errs []error
	for _, ref := range refs {
		s, err := e.GetStatus(ctx, siteID, ref, courseID, true)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ref, err))
			continue
		}
		statuses = append(statuses, s)
	}
	return Aggregate(statuses...), errors.Join(errs...)
}

// Invalidate drops the cached status and manifest of ref, so the next
// GetStatus asks the server again.
func (e *Engine) Invalidate(ctx context.Context, siteID string, ref Ref) error {
	if err := e.statuses.Delete(ctx, statusKey(siteID, ref)); err != nil {
		return fmt.Errorf("drop cached status of %s: %w", ref, err)
	}
	if e.reads != nil {
		if err := e.reads.InvalidatePrefix(ctx, ManifestCacheKey(siteID, ref)+"|"); err != nil {
			return fmt.Errorf("drop cached manifest of %s: %w", ref, err)
		}
	}
	return nil
}

// InvalidatePrefix invalidates every package whose component starts with prefix.
func (e *Engine) InvalidatePrefix(ctx context.Context, siteID, prefix string) error {
	if err := e.statuses.DeletePrefix(ctx, siteID+"|"+prefix); err != nil {
		return fmt.Errorf("drop cached statuses: %w", err)
	}
	if e.reads != nil {
		if err := e.reads.InvalidatePrefix(ctx, manifestSitePrefix(siteID)+prefix); err != nil {
			return fmt.Errorf("drop cached manifests: %w", err)
		}
	}
	return nil
}

// Remove deletes the files of ref and marks it not downloaded.
func (e *Engine) Remove(ctx context.Context, siteID string, ref Ref) error {
	if err := e.fetcher.Remove(siteID, ref); err != nil {
		return fmt.Errorf("remove files of %s: %w", ref, err)
	}
	if _, err := e.setStatus(siteID, ref, entities.PackageNotDownloaded, nil); err != nil {
		return err
	}
	return e.statuses.Delete(ctx, statusKey(siteID, ref))
}

// setStatus persists a status and announces it when it changed.
func (e *Engine) setStatus(siteID string, ref Ref, status entities.PackageStatus, upd *packagesdb.Update) (*entities.PackageEntry, error) {
	entry, changed, err := e.store.SetStatus(siteID, ref.Component, ref.ComponentID, status, upd)
	if err != nil {
		return nil, &syncer.InternalError{Op: fmt.Sprintf("store status of %s", ref), Err: err}
	}
	if err := e.statuses.Delete(context.Background(), statusKey(siteID, ref)); err != nil {
		slog.Warn("Failed to drop cached package status", "package", ref, "error", err)
	}
	if changed && e.events != nil {
		e.events.Emit(events.PackageStatusChanged, events.PackageStatusPayload{
			SiteID:      siteID,
			ComponentID: ref.ComponentID,
			Component:   ref.Component,
			Status:      status,
		}, siteID)
	}
	return entry, nil
}

func (e *Engine) remember(ctx context.Context, key string, status entities.PackageStatus) entities.PackageStatus {
	if err := e.statuses.Set(ctx, key, []byte(status), e.statusTTL); err != nil {
		slog.Warn("Failed to cache package status", "key", key, "error", err)
	}
	return status
}

func statusKey(siteID string, ref Ref) string {
	return siteID + "|" + ref.Component + "|" + ref.ComponentID
}

func isOffline(conn network.Connectivity) bool {
	return conn != nil && !conn.IsOnline()
}
