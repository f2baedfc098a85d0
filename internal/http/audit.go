package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	auditRepo "github.com/mrlokans/campussync/internal/database/audit"
	"github.com/mrlokans/campussync/internal/entities"
)

type AuditController struct {
	audit AuditReader
}

func NewAuditController(audit AuditReader) *AuditController {
	return &AuditController{audit: audit}
}

// GetAuditEvents returns paginated audit events as JSON
// GET /api/audit?type=&site_id=&page=&limit=
func (ac *AuditController) GetAuditEvents(c *gin.Context) {
	limit, offset, page := parsePagination(c, 25, 100)

	events, total, err := ac.audit.GetEvents(auditRepo.Query{
		SiteID:    c.Query("site_id"),
		EventType: entities.AuditEventType(c.Query("type")),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		respondInternalError(c, err, "load audit events")
		return
	}

	totalPages := (int(total) + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:       events,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		HasMore:    page < totalPages,
		TotalPages: totalPages,
	})
}
