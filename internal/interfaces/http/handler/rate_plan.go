package handler

import (
	"time"

	appmetering "github.com/campreserve/backend/internal/application/metering"
	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RatePlanHandler handles rate plan API endpoints
type RatePlanHandler struct {
	BaseHandler
	ratePlans *appmetering.RatePlanService
}

// NewRatePlanHandler creates a new RatePlanHandler
func NewRatePlanHandler(ratePlans *appmetering.RatePlanService) *RatePlanHandler {
	return &RatePlanHandler{ratePlans: ratePlans}
}

// RegisterRoutes registers the rate plan routes
func (h *RatePlanHandler) RegisterRoutes(rg *gin.RouterGroup) {
	plans := rg.Group("/rate-plans")
	plans.GET("/resolve", h.Resolve)
	plans.GET("/:id", h.Get)
}

// ResolveRatePlanRequest asks which plan is effective for a meter type at an
// instant. AsOf defaults to now.
type ResolveRatePlanRequest struct {
	Type string     `form:"type" binding:"required,oneof=power water sewer"`
	AsOf *time.Time `form:"as_of" time_format:"2006-01-02T15:04:05Z07:00"`
}

// Get returns a rate plan by ID
func (h *RatePlanHandler) Get(c *gin.Context) {
	var req struct {
		ID string `uri:"id" binding:"required,uuid"`
	}
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "Invalid rate plan ID")
		return
	}

	plan, err := h.ratePlans.GetPlan(c.Request.Context(), uuid.MustParse(req.ID))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, toRatePlanResponse(plan))
}

// Resolve returns the plan effective for a meter type at the given instant
func (h *RatePlanHandler) Resolve(c *gin.Context) {
	var req ResolveRatePlanRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	asOf := time.Now()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	plan, err := h.ratePlans.ResolveByType(c.Request.Context(), metering.MeterType(req.Type), asOf)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, toRatePlanResponse(plan))
}
