package handler

import (
	appmetering "github.com/campreserve/backend/internal/application/metering"
	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MeterHandler handles meter registry API endpoints
type MeterHandler struct {
	BaseHandler
	meters *appmetering.MeterService
}

// NewMeterHandler creates a new MeterHandler
func NewMeterHandler(meters *appmetering.MeterService) *MeterHandler {
	return &MeterHandler{meters: meters}
}

// RegisterRoutes registers the meter routes
func (h *MeterHandler) RegisterRoutes(rg *gin.RouterGroup) {
	meters := rg.Group("/meters")
	meters.POST("", h.Create)
	meters.GET("", h.List)
	meters.GET("/:id", h.Get)
	meters.PATCH("/:id", h.Update)
	meters.POST("/:id/active", h.SetActive)
	meters.GET("/:id/effective-config", h.EffectiveConfig)
}

// CreateMeterRequest represents a request to register a meter on a site
type CreateMeterRequest struct {
	SiteID       string   `json:"site_id" binding:"required,uuid"`
	Type         string   `json:"type" binding:"required,oneof=power water sewer"`
	BillingMode  *string  `json:"billing_mode" binding:"omitempty,oneof=cycle per_reading annual manual"`
	BillTo       *string  `json:"bill_to" binding:"omitempty,oneof=reservation guest"`
	Multiplier   *float64 `json:"multiplier" binding:"omitempty,gt=0"`
	RatePlanID   *string  `json:"rate_plan_id" binding:"omitempty,uuid"`
	AutoEmail    *bool    `json:"auto_email"`
	SerialNumber string   `json:"serial_number" binding:"max=100"`
}

// UpdateMeterRequest represents a partial meter update. ClearRatePlan removes
// the per-meter rate plan override and cannot be combined with RatePlanID.
type UpdateMeterRequest struct {
	BillingMode   *string  `json:"billing_mode" binding:"omitempty,oneof=cycle per_reading annual manual"`
	BillTo        *string  `json:"bill_to" binding:"omitempty,oneof=reservation guest"`
	Multiplier    *float64 `json:"multiplier" binding:"omitempty,gt=0"`
	RatePlanID    *string  `json:"rate_plan_id" binding:"omitempty,uuid"`
	ClearRatePlan bool     `json:"clear_rate_plan"`
	AutoEmail     *bool    `json:"auto_email"`
	SerialNumber  *string  `json:"serial_number" binding:"omitempty,max=100"`
}

// SetMeterActiveRequest toggles a meter's active flag
type SetMeterActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// ListMetersRequest represents meter list filters
type ListMetersRequest struct {
	SiteID string `form:"site_id" binding:"omitempty,uuid"`
	Type   string `form:"type" binding:"omitempty,oneof=power water sewer"`
	Active *bool  `form:"active"`
}

// Create registers a meter on a site
func (h *MeterHandler) Create(c *gin.Context) {
	var req CreateMeterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	input := appmetering.CreateMeterInput{
		SiteID:       uuid.MustParse(req.SiteID),
		Type:         metering.MeterType(req.Type),
		AutoEmail:    req.AutoEmail,
		SerialNumber: req.SerialNumber,
	}
	if req.BillingMode != nil {
		mode := metering.BillingMode(*req.BillingMode)
		input.BillingMode = &mode
	}
	if req.BillTo != nil {
		target := metering.BillTo(*req.BillTo)
		input.BillTo = &target
	}
	if req.Multiplier != nil {
		multiplier := decimal.NewFromFloat(*req.Multiplier)
		input.Multiplier = &multiplier
	}
	if req.RatePlanID != nil {
		planID := uuid.MustParse(*req.RatePlanID)
		input.RatePlanID = &planID
	}

	meter, err := h.meters.CreateMeter(c.Request.Context(), input)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Created(c, toMeterResponse(meter))
}

// Get returns a meter by ID
func (h *MeterHandler) Get(c *gin.Context) {
	id, ok := h.meterID(c)
	if !ok {
		return
	}

	meter, err := h.meters.GetMeter(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, toMeterResponse(meter))
}

// List returns meters matching the filter, ordered by site then type
func (h *MeterHandler) List(c *gin.Context) {
	var req ListMetersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := metering.MeterFilter{Active: req.Active}
	if req.SiteID != "" {
		siteID := uuid.MustParse(req.SiteID)
		filter.SiteID = &siteID
	}
	if req.Type != "" {
		meterType := metering.MeterType(req.Type)
		filter.Type = &meterType
	}

	meters, err := h.meters.ListMeters(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	responses := make([]MeterResponse, len(meters))
	for i := range meters {
		responses[i] = toMeterResponse(&meters[i])
	}
	h.SuccessList(c, responses, len(responses))
}

// Update applies a partial update to a meter
func (h *MeterHandler) Update(c *gin.Context) {
	id, ok := h.meterID(c)
	if !ok {
		return
	}

	var req UpdateMeterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	input := appmetering.UpdateMeterInput{
		ClearRatePlan: req.ClearRatePlan,
		AutoEmail:     req.AutoEmail,
		SerialNumber:  req.SerialNumber,
	}
	if req.BillingMode != nil {
		mode := metering.BillingMode(*req.BillingMode)
		input.BillingMode = &mode
	}
	if req.BillTo != nil {
		target := metering.BillTo(*req.BillTo)
		input.BillTo = &target
	}
	if req.Multiplier != nil {
		multiplier := decimal.NewFromFloat(*req.Multiplier)
		input.Multiplier = &multiplier
	}
	if req.RatePlanID != nil {
		planID := uuid.MustParse(*req.RatePlanID)
		input.RatePlanID = &planID
	}

	meter, err := h.meters.UpdateMeter(c.Request.Context(), id, input)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, toMeterResponse(meter))
}

// SetActive activates or deactivates a meter
func (h *MeterHandler) SetActive(c *gin.Context) {
	id, ok := h.meterID(c)
	if !ok {
		return
	}

	var req SetMeterActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	meter, err := h.meters.SetMeterActive(c.Request.Context(), id, *req.Active)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, toMeterResponse(meter))
}

// EffectiveConfig returns the meter's fully resolved configuration
func (h *MeterHandler) EffectiveConfig(c *gin.Context) {
	id, ok := h.meterID(c)
	if !ok {
		return
	}

	cfg, err := h.meters.EffectiveConfig(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, cfg)
}

func (h *MeterHandler) meterID(c *gin.Context) (uuid.UUID, bool) {
	var req struct {
		ID string `uri:"id" binding:"required,uuid"`
	}
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "Invalid meter ID")
		return uuid.Nil, false
	}
	return uuid.MustParse(req.ID), true
}
