package handler

import (
	appmetering "github.com/campreserve/backend/internal/application/metering"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BillingHandler handles billing API endpoints
type BillingHandler struct {
	BaseHandler
	billing *appmetering.BillingService
}

// NewBillingHandler creates a new BillingHandler
func NewBillingHandler(billing *appmetering.BillingService) *BillingHandler {
	return &BillingHandler{billing: billing}
}

// RegisterRoutes registers the billing routes
func (h *BillingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	meters := rg.Group("/meters")
	meters.POST("/:id/bill", h.Bill)
	meters.GET("/:id/billing-preview", h.Preview)
	meters.GET("/:id/billing-events", h.ListEvents)
}

// BillMeterRequest represents a billing trigger. A nil ReadID bills the
// meter's latest read.
type BillMeterRequest struct {
	ReadID *string `json:"read_id" binding:"omitempty,uuid"`
}

// Bill triggers billing for a reading. Repeating the trigger returns the
// existing event with already_billed set, as a 200.
func (h *BillingHandler) Bill(c *gin.Context) {
	id, ok := h.meterID(c)
	if !ok {
		return
	}

	var req BillMeterRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, err.Error())
			return
		}
	}

	input := appmetering.BillMeterInput{MeterID: id}
	if req.ReadID != nil {
		readID := uuid.MustParse(*req.ReadID)
		input.ReadID = &readID
	}

	result, err := h.billing.BillMeter(c.Request.Context(), input)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	if result.AlreadyBilled {
		h.Success(c, toBillingResultResponse(result))
		return
	}
	h.Created(c, toBillingResultResponse(result))
}

// Preview computes what billing the latest read would charge, persisting
// nothing
func (h *BillingHandler) Preview(c *gin.Context) {
	id, ok := h.meterID(c)
	if !ok {
		return
	}

	preview, err := h.billing.Preview(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, preview)
}

// ListEvents returns the meter's billing history, newest first
func (h *BillingHandler) ListEvents(c *gin.Context) {
	id, ok := h.meterID(c)
	if !ok {
		return
	}

	events, err := h.billing.ListBillingEvents(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	responses := make([]BillingEventResponse, len(events))
	for i := range events {
		responses[i] = toBillingEventResponse(&events[i])
	}
	h.SuccessList(c, responses, len(responses))
}

func (h *BillingHandler) meterID(c *gin.Context) (uuid.UUID, bool) {
	var req struct {
		ID string `uri:"id" binding:"required,uuid"`
	}
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "Invalid meter ID")
		return uuid.Nil, false
	}
	return uuid.MustParse(req.ID), true
}
