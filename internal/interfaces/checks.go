package interfaces

// Compile-time interface implementation checks.

import (
	"github.com/mrlokans/campussync/internal/audit"
	"github.com/mrlokans/campussync/internal/cache"
	"github.com/mrlokans/campussync/internal/completion"
	"github.com/mrlokans/campussync/internal/database/mutations"
	"github.com/mrlokans/campussync/internal/database/offline"
	"github.com/mrlokans/campussync/internal/database/packages"
	"github.com/mrlokans/campussync/internal/database/synctime"
	"github.com/mrlokans/campussync/internal/events"
	"github.com/mrlokans/campussync/internal/http"
	"github.com/mrlokans/campussync/internal/mutationlog"
	"github.com/mrlokans/campussync/internal/network"
	offlinesync "github.com/mrlokans/campussync/internal/offline"
	pkgengine "github.com/mrlokans/campussync/internal/packages"
	"github.com/mrlokans/campussync/internal/scheduler"
	"github.com/mrlokans/campussync/internal/syncer"
	"github.com/mrlokans/campussync/internal/tasks"
	"github.com/mrlokans/campussync/internal/transport"
)

// =============================================================================
// Data Access Layer
// =============================================================================

var _ syncer.TimestampStore = (*synctime.Repository)(nil)
var _ offlinesync.CourseStore = (*offline.Repository)(nil)
var _ mutationlog.Store = (*mutations.Repository)(nil)
var _ pkgengine.Store = (*packages.Repository)(nil)

// =============================================================================
// Caching and Transport
// =============================================================================

var _ cache.Cache = (*cache.MemoryCache)(nil)
var _ cache.Cache = (*cache.RedisCache)(nil)
var _ cache.Cache = (*cache.Prefixed)(nil)
var _ transport.Transport = (*transport.HTTPClient)(nil)
var _ transport.Transport = (*transport.Retry)(nil)
var _ transport.Transport = (*transport.Cached)(nil)
var _ completion.ReadInvalidator = (*transport.Cached)(nil)
var _ pkgengine.ReadInvalidator = (*transport.Cached)(nil)
var _ pkgengine.Manifest = (*pkgengine.TransportManifest)(nil)
var _ pkgengine.Fetcher = (*pkgengine.FileStore)(nil)

// =============================================================================
// Sync Engine
// =============================================================================

var _ network.Connectivity = (*network.Monitor)(nil)
var _ syncer.Emitter = (*events.Bus)(nil)
var _ pkgengine.Emitter = (*events.Bus)(nil)
var _ syncer.Handler = (*syncer.Coordinator[*mutationlog.ReplayResult])(nil)
var _ syncer.Outcome = (*mutationlog.ReplayResult)(nil)

// =============================================================================
// Control Surfaces
// =============================================================================

var _ http.SyncScheduler = (*scheduler.SyncScheduler)(nil)
var _ http.TaskQueue = (*tasks.Client)(nil)
var _ http.PackageService = (*pkgengine.Engine)(nil)
var _ http.MutationLister = (*mutationlog.Log)(nil)
var _ http.AuditReader = (*audit.Service)(nil)
var _ tasks.Replayer = (*mutationlog.Log)(nil)
var _ tasks.Prefetcher = (*pkgengine.Engine)(nil)
var _ tasks.AuditPruner = (*audit.Service)(nil)
