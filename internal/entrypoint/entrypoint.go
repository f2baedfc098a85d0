package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/campussync/internal/config"
	http_controllers "github.com/mrlokans/campussync/internal/http"
	"github.com/mrlokans/campussync/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Serve runs router until SIGINT or SIGTERM, then shuts down within the
// configured timeout.
func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) error {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-listenErr:
		return fmt.Errorf("listen: %w", err)
	}
	slog.Info("Shutting down server", "timeout", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop background work first so nothing writes after the server is gone.
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("Server exiting")
	return nil
}

// Run wires the application and serves the control API until shutdown.
func Run(cfg *config.Config, version string) error {
	slog.Info("Starting campussync", "version", version)

	app, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	app.WatchNetwork(bgCtx)

	routerCfg := http_controllers.RouterConfig{
		Database:      app.DB,
		Version:       version,
		SiteID:        cfg.Site.ID,
		Connectivity:  app.Monitor,
		Cache:         app.Cache,
		Handlers:      app.Handlers,
		Scheduler:     app.Scheduler,
		SettingsStore: app.Settings,
		Packages:      app.Packages,
		Mutations:     app.Mutations,
		Audit:         app.Audit,
	}

	var taskClient *tasks.Client
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.Config{
			Workers:            cfg.Tasks.Workers,
			ReleaseAfter:       cfg.Tasks.ReleaseAfter,
			CleanupInterval:    cfg.Tasks.CleanupInterval,
			AuditRetentionDays: cfg.Audit.RetentionDays,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize task queue: %w", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				slog.Warn("Error closing task client", "error", err)
			}
		}()

		taskClient.Register(
			tasks.NewSyncAllQueue(app.Handlers),
			tasks.NewReplayMutationsQueue(app.Mutations),
			tasks.NewPrefetchPackagesQueue(app.Packages),
			tasks.NewCleanupAuditEventsQueue(app.Audit),
		)
		go taskClient.Start(bgCtx)

		if _, err := taskClient.Enqueue(tasks.CleanupAuditEventsTask{RetentionDays: cfg.Audit.RetentionDays}); err != nil {
			slog.Warn("Failed to schedule audit cleanup", "error", err)
		}
		routerCfg.TaskQueue = taskClient
	}

	if err := app.Scheduler.Start(bgCtx); err != nil {
		slog.Warn("Sync scheduler not started", "error", err)
	}

	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		app.Scheduler.Stop()
		if taskClient != nil {
			taskClient.Stop(ctx)
		}
		bgCancel()
	}

	return Serve(router, cfg, onShutdown)
}
