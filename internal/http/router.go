package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// requestLogger logs every request through slog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// NewRouter creates the local control API.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())

	health := NewHealthController(cfg.Version,
		DatabaseCheck(cfg.Database),
		NetworkCheck(cfg.Connectivity),
		CacheCheck(cfg.Cache),
	)
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	api := router.Group("/api")

	if cfg.Handlers != nil {
		syncController := NewSyncController(cfg.Handlers, cfg.Scheduler, cfg.SettingsStore, cfg.TaskQueue, cfg.SiteID)
		api.POST("/sync/run", syncController.RunAll)
		api.POST("/sync/now", syncController.RunNow)
		api.GET("/sync/status", syncController.Status)
		api.GET("/sync/settings", syncController.GetSettings)
		api.PUT("/sync/settings", syncController.UpdateSettings)
		api.POST("/sync/:handler/:key", syncController.RunKey)
	}

	if cfg.Mutations != nil {
		mutationsController := NewMutationsController(cfg.Mutations, cfg.SiteID)
		api.GET("/mutations", mutationsController.List)
	}

	if cfg.Packages != nil {
		packagesController := NewPackagesController(cfg.Packages, cfg.TaskQueue, cfg.SiteID)
		api.GET("/packages/:component/:id/status", packagesController.Status)
		api.POST("/packages/:component/:id/invalidate", packagesController.Invalidate)
		api.POST("/packages/prefetch", packagesController.Prefetch)
	}

	if cfg.TaskQueue != nil {
		tasksController := NewTasksController(cfg.TaskQueue, cfg.SiteID)
		api.GET("/tasks/types", tasksController.ListTaskTypes)
		api.GET("/tasks/:id", tasksController.GetTaskStatus)
		api.POST("/tasks/:type/run", tasksController.RunTask)
	}

	if cfg.Audit != nil {
		auditController := NewAuditController(cfg.Audit)
		api.GET("/audit", auditController.GetAuditEvents)
	}

	return router
}
