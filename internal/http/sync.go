package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/campussync/internal/scheduler"
	"github.com/mrlokans/campussync/internal/settingsstore"
	"github.com/mrlokans/campussync/internal/syncer"
	"github.com/mrlokans/campussync/internal/tasks"
)

// SyncController triggers syncs and manages the periodic sync settings.
type SyncController struct {
	handlers      *syncer.Handlers
	scheduler     SyncScheduler
	settingsStore *settingsstore.SettingsStore
	tasks         TaskQueue
	siteID        string
}

func NewSyncController(handlers *syncer.Handlers, sched SyncScheduler, settingsStore *settingsstore.SettingsStore, queue TaskQueue, siteID string) *SyncController {
	return &SyncController{
		handlers:      handlers,
		scheduler:     sched,
		settingsStore: settingsStore,
		tasks:         queue,
		siteID:        siteID,
	}
}

type SyncRequest struct {
	SiteID    string `json:"site_id"`
	Component string `json:"component"`
	Force     bool   `json:"force"`
}

func (sc *SyncController) bind(c *gin.Context) (SyncRequest, bool) {
	var req SyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body: "+err.Error())
			return req, false
		}
	}
	return req, true
}

// RunAll handles POST /api/sync/run. With a task queue the sync runs in the
// background; without one it runs inline and the summaries are returned.
func (sc *SyncController) RunAll(c *gin.Context) {
	req, ok := sc.bind(c)
	if !ok {
		return
	}
	if req.Component != "" {
		if _, found := sc.handlers.Get(req.Component); !found {
			respondNotFound(c, "sync handler "+req.Component)
			return
		}
	}

	if sc.tasks != nil {
		id, err := sc.tasks.Enqueue(tasks.SyncAllTask{SiteID: req.SiteID, Component: req.Component, Force: req.Force})
		if err != nil {
			respondInternalError(c, err, "enqueue sync_all")
			return
		}
		respondAccepted(c, "sync enqueued", gin.H{"task_id": id})
		return
	}

	if req.Component != "" {
		h, _ := sc.handlers.Get(req.Component)
		summary, err := h.RunAll(c.Request.Context(), req.SiteID, req.Force)
		if err != nil {
			respondSyncError(c, err, "sync "+req.Component)
			return
		}
		c.JSON(http.StatusOK, gin.H{"components": []syncer.Summary{summary}})
		return
	}

	summaries, err := sc.handlers.RunAll(c.Request.Context(), req.SiteID, req.Force)
	resp := gin.H{"components": summaries}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// RunKey handles POST /api/sync/:handler/:key and syncs one key now.
func (sc *SyncController) RunKey(c *gin.Context) {
	h, found := sc.handlers.Get(c.Param("handler"))
	if !found {
		respondNotFound(c, "sync handler "+c.Param("handler"))
		return
	}
	req, ok := sc.bind(c)
	if !ok {
		return
	}
	site := req.SiteID
	if site == "" {
		site = sc.siteID
	}

	summary, err := h.RunKey(c.Request.Context(), site, syncer.Key(c.Param("key")), req.Force)
	if err != nil {
		respondSyncError(c, err, "sync key")
		return
	}
	c.JSON(http.StatusOK, summary)
}

type SyncStatusResponse struct {
	Handlers  []string                          `json:"handlers"`
	Scheduler *SchedulerState                   `json:"scheduler,omitempty"`
	LastRun   *settingsstore.SyncStatus         `json:"last_run,omitempty"`
	Settings  *settingsstore.SyncCronConfigInfo `json:"settings,omitempty"`
}

type SchedulerState struct {
	Running bool   `json:"running"`
	Syncing bool   `json:"syncing"`
	NextRun string `json:"next_run,omitempty"`
}

// Status handles GET /api/sync/status.
func (sc *SyncController) Status(c *gin.Context) {
	resp := SyncStatusResponse{Handlers: []string{}}
	for _, h := range sc.handlers.All() {
		resp.Handlers = append(resp.Handlers, h.Component())
	}
	if sc.scheduler != nil {
		state := &SchedulerState{Running: sc.scheduler.IsRunning(), Syncing: sc.scheduler.IsSyncing()}
		if next := sc.scheduler.GetNextRunTime(); next != nil {
			state.NextRun = next.Format("2006-01-02T15:04:05Z07:00")
		}
		resp.Scheduler = state
	}
	if sc.settingsStore != nil {
		last := sc.settingsStore.GetSyncStatus()
		info := sc.settingsStore.GetSyncCronConfigInfo()
		resp.LastRun = &last
		resp.Settings = &info
	}
	c.JSON(http.StatusOK, resp)
}

// GetSettings handles GET /api/sync/settings.
func (sc *SyncController) GetSettings(c *gin.Context) {
	if sc.settingsStore == nil {
		respondError(c, http.StatusServiceUnavailable, "settings store not configured")
		return
	}
	c.JSON(http.StatusOK, sc.settingsStore.GetSyncCronConfigInfo())
}

type SyncSettingsRequest struct {
	Enabled  *bool   `json:"enabled"`
	Schedule *string `json:"schedule"`
}

// UpdateSettings handles PUT /api/sync/settings and reschedules the periodic sync.
func (sc *SyncController) UpdateSettings(c *gin.Context) {
	if sc.settingsStore == nil {
		respondError(c, http.StatusServiceUnavailable, "settings store not configured")
		return
	}
	var req SyncSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if req.Schedule != nil {
		if err := sc.settingsStore.SetSyncCronSchedule(*req.Schedule); err != nil {
			respondBadRequest(c, err.Error())
			return
		}
	}
	if req.Enabled != nil {
		if err := sc.settingsStore.SetSyncCronEnabled(*req.Enabled); err != nil {
			respondInternalError(c, err, "save sync settings")
			return
		}
	}

	if sc.scheduler != nil {
		if err := sc.scheduler.Reschedule(); err != nil {
			respondInternalError(c, err, "reschedule sync")
			return
		}
	}
	c.JSON(http.StatusOK, sc.settingsStore.GetSyncCronConfigInfo())
}

// RunNow handles POST /api/sync/now: a synchronous run through the scheduler,
// recorded as the last run.
func (sc *SyncController) RunNow(c *gin.Context) {
	if sc.scheduler == nil {
		respondError(c, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	req, ok := sc.bind(c)
	if !ok {
		return
	}
	run, err := sc.scheduler.RunSync(c.Request.Context(), "manual", req.Force)
	if errors.Is(err, scheduler.ErrAlreadySyncing) {
		respondError(c, http.StatusConflict, err.Error())
		return
	}
	resp := gin.H{"run": run}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}
