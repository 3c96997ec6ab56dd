package handler

import (
	appmetering "github.com/campreserve/backend/internal/application/metering"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SeedingHandler handles bulk meter provisioning endpoints
type SeedingHandler struct {
	BaseHandler
	seeding *appmetering.SeedingService
}

// NewSeedingHandler creates a new SeedingHandler
func NewSeedingHandler(seeding *appmetering.SeedingService) *SeedingHandler {
	return &SeedingHandler{seeding: seeding}
}

// RegisterRoutes registers the seeding routes
func (h *SeedingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/site-classes/:id/seed-meters", h.SeedMeters)
}

// SeedMeters equips every site of the class with a meter from the class
// metering template. Reruns skip sites that already have one.
func (h *SeedingHandler) SeedMeters(c *gin.Context) {
	var req struct {
		ID string `uri:"id" binding:"required,uuid"`
	}
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "Invalid site class ID")
		return
	}

	report, err := h.seeding.SeedMeters(c.Request.Context(), uuid.MustParse(req.ID))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, report)
}
