package http

import (
	"context"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/campussync/internal/cache"
	"github.com/mrlokans/campussync/internal/database"
	auditRepo "github.com/mrlokans/campussync/internal/database/audit"
	"github.com/mrlokans/campussync/internal/database/mutations"
	"github.com/mrlokans/campussync/internal/entities"
	"github.com/mrlokans/campussync/internal/network"
	"github.com/mrlokans/campussync/internal/packages"
	"github.com/mrlokans/campussync/internal/scheduler"
	"github.com/mrlokans/campussync/internal/settingsstore"
	"github.com/mrlokans/campussync/internal/syncer"
)

// TaskQueue enqueues background tasks and reports their status.
type TaskQueue interface {
	Enqueue(task backlite.Task) (string, error)
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}

// SyncScheduler is the periodic sync trigger.
type SyncScheduler interface {
	IsRunning() bool
	IsSyncing() bool
	GetNextRunTime() *time.Time
	RunSync(ctx context.Context, trigger string, force bool) (*scheduler.Run, error)
	Reschedule() error
}

// PackageService is the download-state engine.
type PackageService interface {
	GetStatus(ctx context.Context, siteID string, ref packages.Ref, courseID string, useCache bool) (entities.PackageStatus, error)
	Entry(siteID string, ref packages.Ref) (*entities.PackageEntry, error)
	Invalidate(ctx context.Context, siteID string, ref packages.Ref) error
	PrefetchOrRestore(ctx context.Context, siteID, downloadID string, items []packages.Item, onProgress func(packages.Progress)) (*packages.Download, error)
}

// MutationLister lists queued mutations.
type MutationLister interface {
	ListPending(siteID string, f mutations.Filter) ([]entities.QueuedMutation, error)
}

// AuditReader lists audit events.
type AuditReader interface {
	GetEvents(q auditRepo.Query) ([]entities.AuditEvent, int64, error)
}

// RouterConfig contains the dependencies of the HTTP router. Nil
// dependencies disable the routes that need them.
type RouterConfig struct {
	Database     *database.Database
	Version      string
	SiteID       string
	Connectivity network.Connectivity
	Cache        cache.Cache

	Handlers      *syncer.Handlers
	Scheduler     SyncScheduler
	SettingsStore *settingsstore.SettingsStore
	TaskQueue     TaskQueue
	Packages      PackageService
	Mutations     MutationLister
	Audit         AuditReader
}
