package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/campussync/internal/syncer"
)

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"` // machine-readable error code
}

// SuccessResponse is a standard success response with optional data.
type SuccessResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// PaginatedResponse wraps paginated data with metadata.
type PaginatedResponse struct {
	Data       any   `json:"data"`
	Total      int64 `json:"total"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
	HasMore    bool  `json:"has_more"`
	TotalPages int   `json:"total_pages,omitempty"`
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

func respondNotFound(c *gin.Context, resource string) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: resource + " not found"})
}

// respondInternalError logs err and sends a 500 without exposing it.
func respondInternalError(c *gin.Context, err error, context string) {
	slog.Error("Internal error", "context", context, "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

func respondAccepted(c *gin.Context, message string, data any) {
	c.JSON(http.StatusAccepted, SuccessResponse{Message: message, Data: data})
}

// respondSyncError maps a sync failure to a status code by its kind.
func respondSyncError(c *gin.Context, err error, context string) {
	if errors.Is(err, syncer.ErrBlocked) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "blocked"})
		return
	}
	switch kind := syncer.Classify(err); kind {
	case syncer.KindConnectivity:
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: kind.String()})
	case syncer.KindRejected, syncer.KindConflict:
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: kind.String()})
	default:
		respondInternalError(c, err, context)
	}
}

// siteID reads site_id from the query string, falling back to def.
func siteID(c *gin.Context, def string) string {
	if s := c.Query("site_id"); s != "" {
		return s
	}
	return def
}

// parsePagination reads page and limit query parameters.
func parsePagination(c *gin.Context, defaultLimit, maxLimit int) (limit, offset, page int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}
	return limit, (page - 1) * limit, page
}
