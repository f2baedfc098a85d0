package entrypoint

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/mrlokans/campussync/internal/audit"
	"github.com/mrlokans/campussync/internal/cache"
	"github.com/mrlokans/campussync/internal/clock"
	"github.com/mrlokans/campussync/internal/completion"
	"github.com/mrlokans/campussync/internal/config"
	"github.com/mrlokans/campussync/internal/database"
	auditRepo "github.com/mrlokans/campussync/internal/database/audit"
	mutationsdb "github.com/mrlokans/campussync/internal/database/mutations"
	offlinedb "github.com/mrlokans/campussync/internal/database/offline"
	packagesdb "github.com/mrlokans/campussync/internal/database/packages"
	"github.com/mrlokans/campussync/internal/database/synctime"
	"github.com/mrlokans/campussync/internal/events"
	"github.com/mrlokans/campussync/internal/mutationlog"
	"github.com/mrlokans/campussync/internal/network"
	"github.com/mrlokans/campussync/internal/offline"
	"github.com/mrlokans/campussync/internal/packages"
	"github.com/mrlokans/campussync/internal/scheduler"
	"github.com/mrlokans/campussync/internal/settingsstore"
	"github.com/mrlokans/campussync/internal/syncer"
	"github.com/mrlokans/campussync/internal/transport"
)

// App is the wired sync engine shared by the server and the CLI.
type App struct {
	Config *config.Config

	DB       *database.Database
	Cache    cache.Cache
	Monitor  *network.Monitor
	Bus      *events.Bus
	Remote   *transport.Cached
	Settings *settingsstore.SettingsStore
	Audit    *audit.Service
	Archive  *audit.Archive

	Offline      *offline.Store
	Mutations    *mutationlog.Log
	MutationSync *syncer.Coordinator[*mutationlog.ReplayResult]
	Completion   *completion.Service
	Packages     *packages.Engine
	Handlers     *syncer.Handlers
	Scheduler    *scheduler.SyncScheduler

	closers []func()
}

// SetupLogging installs the default slog logger.
func SetupLogging(cfg config.Global) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func newCache(cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Type {
	case config.CacheTypeRedis:
		c, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: "campussync:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("Using redis cache", "addr", cfg.Redis.Addr)
		return c, nil
	case config.CacheTypeMemory, "":
		return cache.NewMemoryCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Cache.Type)
	}
}

// NewApp opens the database and wires every component.
func NewApp(cfg *config.Config) (*App, error) {
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: db}
	a.closers = append(a.closers, func() {
		if err := db.Close(); err != nil {
			slog.Warn("Error closing database", "error", err)
		}
	})

	if a.Cache, err = newCache(cfg); err != nil {
		a.Close()
		return nil, err
	}
	if closer, ok := a.Cache.(io.Closer); ok {
		a.closers = append(a.closers, func() { _ = closer.Close() })
	}

	a.Monitor = network.NewMonitor(true)
	a.Bus = events.NewBus()
	clk := clock.Real{}

	retryCfg := transport.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.Remote.MaxRetries
	client := transport.NewHTTPClient(cfg.Remote.URL, cfg.Remote.Token, cfg.Remote.Timeout)
	a.Remote = transport.NewCached(transport.NewRetry(client, retryCfg), cache.WithPrefix(a.Cache, "ws:"), cfg.Cache.TTL)

	a.Settings = settingsstore.New(db)
	a.Audit = audit.NewService(auditRepo.NewRepository(db.DB))
	a.Archive = audit.NewArchive(cfg.Audit.Dir)
	unsubscribe := a.Audit.Subscribe(a.Bus)
	a.closers = append(a.closers, func() {
		unsubscribe()
		a.Audit.Flush()
	})

	timestamps := synctime.NewRepository(db.DB)
	records := offlinedb.NewRepository(db.DB)
	a.Offline = offline.NewStore(records)

	a.Mutations = mutationlog.New(mutationsdb.NewRepository(db.DB), a.Remote, clk)
	a.MutationSync = syncer.New(syncer.Config[*mutationlog.ReplayResult]{
		Component:    mutationlog.Component,
		Reconcile:    a.Mutations.Reconcile,
		Pending:      a.Mutations.Pending,
		Timestamps:   timestamps,
		Connectivity: a.Monitor,
		Events:       a.Bus,
		Clock:        clk,
		MinInterval:  cfg.Sync.MinInterval,
		Concurrency:  cfg.Sync.Concurrency,
		KeyParts:     mutationlog.ScopeParts,
	})

	a.Completion = completion.New(completion.Config{
		Records:      records,
		Remote:       a.Remote,
		Reads:        a.Remote,
		Timestamps:   timestamps,
		Connectivity: a.Monitor,
		Events:       a.Bus,
		Clock:        clk,
		MinInterval:  cfg.Sync.MinInterval,
		Concurrency:  cfg.Sync.Concurrency,
	})

	files, err := packages.NewFileStore(cfg.Download.Dir, cfg.Remote.Token, cfg.Remote.Timeout)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Packages = packages.NewEngine(packages.Config{
		Store:        packagesdb.NewRepository(db.DB),
		Manifest:     &packages.TransportManifest{Reader: a.Remote, Call: packages.DefaultManifestCall},
		Fetcher:      files,
		Cache:        a.Cache,
		Reads:        a.Remote,
		Events:       a.Bus,
		Connectivity: a.Monitor,
		Concurrency:  cfg.Download.Concurrency,
		StatusTTL:    cfg.Cache.TTL,
	})

	a.Handlers = syncer.NewHandlers(a.MutationSync, a.Completion.Coordinator())
	a.Scheduler = scheduler.NewSyncScheduler(a.Settings, a.Handlers, a.Monitor, a.Audit, a.Archive)

	return a, nil
}

// WatchNetwork probes the remote until ctx ends. Without a probe URL the
// device is assumed to stay online.
func (a *App) WatchNetwork(ctx context.Context) {
	if a.Config.Network.ProbeURL == "" {
		return
	}
	probe := network.HTTPProbe(&http.Client{Timeout: a.Config.Network.ProbeInterval}, a.Config.Network.ProbeURL)
	go a.Monitor.Watch(ctx, a.Config.Network.ProbeInterval, probe)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
