package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/campussync/internal/packages"
	"github.com/mrlokans/campussync/internal/tasks"
)

// TasksController handles task queue management endpoints.
type TasksController struct {
	queue  TaskQueue
	siteID string
}

func NewTasksController(queue TaskQueue, siteID string) *TasksController {
	return &TasksController{queue: queue, siteID: siteID}
}

// TaskTypeInfo describes an available task type.
type TaskTypeInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

var taskTypes = []TaskTypeInfo{
	{Type: "sync_all", Description: "Sync every pending key of every handler"},
	{Type: "replay_mutations", Description: "Send queued mutations of a site"},
	{Type: "prefetch_packages", Description: "Download a set of packages"},
	{Type: "cleanup_audit_events", Description: "Delete audit events past retention"},
}

// ListTaskTypes handles GET /api/tasks/types
func (tc *TasksController) ListTaskTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"task_types": taskTypes})
}

// GetTaskStatus handles GET /api/tasks/:id
func (tc *TasksController) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, err := tc.queue.Status(ctx, taskID)
	if err != nil {
		respondInternalError(c, err, "task status")
		return
	}
	if status == backlite.TaskStatusNotFound {
		respondNotFound(c, "task "+taskID)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     taskID,
		"status": taskStatusToString(status),
	})
}

// RunTaskRequest is the request body for running a task. Fields that do
// not apply to the task type are ignored.
type RunTaskRequest struct {
	SiteID        string          `json:"site_id"`
	Component     string          `json:"component"`
	Force         bool            `json:"force"`
	DownloadID    string          `json:"download_id"`
	Items         []packages.Item `json:"items"`
	RetentionDays int             `json:"retention_days"`
}

// RunTask handles POST /api/tasks/:type/run
func (tc *TasksController) RunTask(c *gin.Context) {
	taskType := c.Param("type")

	var req RunTaskRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}
	site := req.SiteID
	if site == "" {
		site = tc.siteID
	}

	var task backlite.Task
	switch taskType {
	case "sync_all":
		task = tasks.SyncAllTask{SiteID: req.SiteID, Component: req.Component, Force: req.Force}
	case "replay_mutations":
		if site == "" {
			respondBadRequest(c, "site_id is required for replay_mutations task")
			return
		}
		task = tasks.ReplayMutationsTask{SiteID: site}
	case "prefetch_packages":
		if len(req.Items) == 0 {
			respondBadRequest(c, "items are required for prefetch_packages task")
			return
		}
		task = tasks.NewPrefetchPackagesTask(site, req.DownloadID, req.Items)
	case "cleanup_audit_events":
		task = tasks.CleanupAuditEventsTask{RetentionDays: req.RetentionDays}
	default:
		respondBadRequest(c, fmt.Sprintf("unknown task type: %s", taskType))
		return
	}

	id, err := tc.queue.Enqueue(task)
	if err != nil {
		respondInternalError(c, err, "enqueue "+taskType)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task_id": id,
		"type":    taskType,
		"message": "task enqueued",
	})
}

func taskStatusToString(status backlite.TaskStatus) string {
	switch status {
	case backlite.TaskStatusPending:
		return "pending"
	case backlite.TaskStatusRunning:
		return "running"
	case backlite.TaskStatusSuccess:
		return "success"
	case backlite.TaskStatusFailure:
		return "failure"
	case backlite.TaskStatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
