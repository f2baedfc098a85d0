package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/campussync/internal/packages"
	"github.com/mrlokans/campussync/internal/tasks"
)

// PackagesController exposes package download state.
type PackagesController struct {
	engine PackageService
	tasks  TaskQueue
	siteID string
}

func NewPackagesController(engine PackageService, queue TaskQueue, siteID string) *PackagesController {
	return &PackagesController{engine: engine, tasks: queue, siteID: siteID}
}

func refParam(c *gin.Context) packages.Ref {
	return packages.Ref{Component: c.Param("component"), ComponentID: c.Param("id")}
}

// Status handles GET /api/packages/:component/:id/status.
// refresh=true bypasses the cached status.
func (pc *PackagesController) Status(c *gin.Context) {
	site := siteID(c, pc.siteID)
	ref := refParam(c)

	status, err := pc.engine.GetStatus(c.Request.Context(), site, ref, c.Query("course_id"), c.Query("refresh") != "true")
	if err != nil {
		respondSyncError(c, err, "package status")
		return
	}
	entry, err := pc.engine.Entry(site, ref)
	if err != nil {
		respondInternalError(c, err, "package entry")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"site_id": site,
		"status":  status,
		"entry":   entry,
	})
}

// Invalidate handles POST /api/packages/:component/:id/invalidate.
func (pc *PackagesController) Invalidate(c *gin.Context) {
	if err := pc.engine.Invalidate(c.Request.Context(), siteID(c, pc.siteID), refParam(c)); err != nil {
		respondInternalError(c, err, "invalidate package")
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "package invalidated"})
}

type PrefetchRequest struct {
	SiteID     string          `json:"site_id"`
	DownloadID string          `json:"download_id"`
	Items      []packages.Item `json:"items" binding:"required,min=1"`
}

// Prefetch handles POST /api/packages/prefetch. Posting the id of a running
// download joins it.
func (pc *PackagesController) Prefetch(c *gin.Context) {
	var req PrefetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	site := req.SiteID
	if site == "" {
		site = pc.siteID
	}
	task := tasks.NewPrefetchPackagesTask(site, req.DownloadID, req.Items)

	if pc.tasks != nil {
		id, err := pc.tasks.Enqueue(task)
		if err != nil {
			respondInternalError(c, err, "enqueue prefetch_packages")
			return
		}
		respondAccepted(c, "prefetch enqueued", gin.H{"task_id": id, "download_id": task.DownloadID})
		return
	}

	if _, err := pc.engine.PrefetchOrRestore(context.WithoutCancel(c.Request.Context()), site, task.DownloadID, task.Items, nil); err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	respondAccepted(c, "prefetch started", gin.H{"download_id": task.DownloadID})
}
