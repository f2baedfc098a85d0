package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/campussync/internal/database/mutations"
)

type MutationsController struct {
	log    MutationLister
	siteID string
}

func NewMutationsController(log MutationLister, siteID string) *MutationsController {
	return &MutationsController{log: log, siteID: siteID}
}

// List handles GET /api/mutations?site_id=&component=&entity_id=
func (mc *MutationsController) List(c *gin.Context) {
	site := siteID(c, mc.siteID)
	pending, err := mc.log.ListPending(site, mutations.Filter{
		Component: c.Query("component"),
		EntityID:  c.Query("entity_id"),
	})
	if err != nil {
		respondInternalError(c, err, "list mutations")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"site_id":   site,
		"mutations": pending,
		"total":     len(pending),
	})
}
