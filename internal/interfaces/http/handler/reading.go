package handler

import (
	"time"

	appmetering "github.com/campreserve/backend/internal/application/metering"
	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReadingHandler handles meter read ledger API endpoints
type ReadingHandler struct {
	BaseHandler
	readings *appmetering.ReadingService
}

// NewReadingHandler creates a new ReadingHandler
func NewReadingHandler(readings *appmetering.ReadingService) *ReadingHandler {
	return &ReadingHandler{readings: readings}
}

// RegisterRoutes registers the reading routes
func (h *ReadingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	meters := rg.Group("/meters")
	meters.POST("/:id/reads", h.Append)
	meters.GET("/:id/reads", h.List)
	meters.GET("/:id/reads/latest", h.Latest)
}

// AppendReadRequest represents a request to record a reading. Value binds as
// a decimal so large cumulative counters keep their full precision on the
// way to the ledger, and must be present rather than defaulting to zero.
type AppendReadRequest struct {
	Value  *decimal.Decimal `json:"value" binding:"required"`
	ReadAt time.Time        `json:"read_at" binding:"required"`
	Note   string           `json:"note" binding:"max=500"`
}

// AppendReadResponse is the outcome of recording a reading. Billing is set
// when the meter bills per reading and the append produced a billing event.
type AppendReadResponse struct {
	Read    ReadResponse           `json:"read"`
	Billing *BillingResultResponse `json:"billing,omitempty"`
}

// ListReadsRequest represents read list range filters (half-open, RFC 3339)
type ListReadsRequest struct {
	From *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To   *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// Append records a reading on the meter
func (h *ReadingHandler) Append(c *gin.Context) {
	id, ok := h.meterID(c)
	if !ok {
		return
	}

	var req AppendReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.readings.AppendRead(c.Request.Context(), appmetering.AppendReadInput{
		MeterID: id,
		Value:   *req.Value,
		ReadAt:  req.ReadAt,
		Note:    req.Note,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	resp := AppendReadResponse{Read: toReadResponse(result.Read)}
	if result.Billing != nil {
		billing := toBillingResultResponse(result.Billing)
		resp.Billing = &billing
	}
	h.Created(c, resp)
}

// List returns the meter's readings within the range in ledger order
func (h *ReadingHandler) List(c *gin.Context) {
	id, ok := h.meterID(c)
	if !ok {
		return
	}

	var req ListReadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	reads, err := h.readings.ListReads(c.Request.Context(), id, metering.ReadRange{
		From: req.From,
		To:   req.To,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	responses := make([]ReadResponse, len(reads))
	for i := range reads {
		responses[i] = toReadResponse(&reads[i])
	}
	h.SuccessList(c, responses, len(responses))
}

// Latest returns the meter's most recent reading
func (h *ReadingHandler) Latest(c *gin.Context) {
	id, ok := h.meterID(c)
	if !ok {
		return
	}

	read, err := h.readings.LatestRead(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, toReadResponse(read))
}

func (h *ReadingHandler) meterID(c *gin.Context) (uuid.UUID, bool) {
	var req struct {
		ID string `uri:"id" binding:"required,uuid"`
	}
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "Invalid meter ID")
		return uuid.Nil, false
	}
	return uuid.MustParse(req.ID), true
}
