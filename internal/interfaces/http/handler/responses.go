package handler

import (
	"time"

	appmetering "github.com/campreserve/backend/internal/application/metering"
	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MeterResponse represents a meter in API responses. Nil configuration fields
// mean the value is inherited; GET /meters/:id/effective-config returns the
// resolved view.
type MeterResponse struct {
	ID           uuid.UUID        `json:"id"`
	SiteID       uuid.UUID        `json:"site_id"`
	Type         string           `json:"type"`
	BillingMode  *string          `json:"billing_mode,omitempty"`
	BillTo       *string          `json:"bill_to,omitempty"`
	Multiplier   *decimal.Decimal `json:"multiplier,omitempty"`
	RatePlanID   *uuid.UUID       `json:"rate_plan_id,omitempty"`
	AutoEmail    *bool            `json:"auto_email,omitempty"`
	Active       bool             `json:"active"`
	SerialNumber string           `json:"serial_number,omitempty"`
	Version      int              `json:"version"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func toMeterResponse(meter *metering.Meter) MeterResponse {
	resp := MeterResponse{
		ID:           meter.GetID(),
		SiteID:       meter.SiteID,
		Type:         meter.Type.String(),
		Multiplier:   meter.Multiplier,
		RatePlanID:   meter.RatePlanID,
		AutoEmail:    meter.AutoEmail,
		Active:       meter.Active,
		SerialNumber: meter.SerialNumber,
		Version:      meter.GetVersion(),
		CreatedAt:    meter.GetCreatedAt(),
		UpdatedAt:    meter.GetUpdatedAt(),
	}
	if meter.BillingMode != nil {
		mode := string(*meter.BillingMode)
		resp.BillingMode = &mode
	}
	if meter.BillTo != nil {
		target := string(*meter.BillTo)
		resp.BillTo = &target
	}
	return resp
}

// ReadResponse represents a ledger entry in API responses
type ReadResponse struct {
	ID        uuid.UUID       `json:"id"`
	MeterID   uuid.UUID       `json:"meter_id"`
	Seq       int64           `json:"seq"`
	Value     decimal.Decimal `json:"value"`
	ReadAt    time.Time       `json:"read_at"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func toReadResponse(read *metering.MeterRead) ReadResponse {
	return ReadResponse{
		ID:        read.GetID(),
		MeterID:   read.MeterID,
		Seq:       read.Seq,
		Value:     read.Value,
		ReadAt:    read.ReadAt,
		Note:      read.Note,
		CreatedAt: read.GetCreatedAt(),
	}
}

// BillingEventResponse represents a billing event in API responses
type BillingEventResponse struct {
	ID             uuid.UUID       `json:"id"`
	MeterID        uuid.UUID       `json:"meter_id"`
	ReadID         uuid.UUID       `json:"read_id"`
	PreviousReadID uuid.UUID       `json:"previous_read_id"`
	Usage          decimal.Decimal `json:"usage"`
	BilledUsage    decimal.Decimal `json:"billed_usage"`
	AmountCents    int64           `json:"amount_cents"`
	RatePlanID     uuid.UUID       `json:"rate_plan_id"`
	CreatedAt      time.Time       `json:"created_at"`
}

func toBillingEventResponse(event *metering.BillingEvent) BillingEventResponse {
	return BillingEventResponse{
		ID:             event.GetID(),
		MeterID:        event.MeterID,
		ReadID:         event.ReadID,
		PreviousReadID: event.PreviousReadID,
		Usage:          event.Usage,
		BilledUsage:    event.BilledUsage,
		AmountCents:    event.AmountCents,
		RatePlanID:     event.RatePlanID,
		CreatedAt:      event.GetCreatedAt(),
	}
}

// BillingResultResponse is the outcome of a billing trigger
type BillingResultResponse struct {
	Event         BillingEventResponse `json:"event"`
	AlreadyBilled bool                 `json:"already_billed"`
}

func toBillingResultResponse(result *appmetering.BillingResultDTO) BillingResultResponse {
	return BillingResultResponse{
		Event:         toBillingEventResponse(result.Event),
		AlreadyBilled: result.AlreadyBilled,
	}
}

// RateTierResponse represents one bracket of a tiered plan
type RateTierResponse struct {
	ThresholdUnits decimal.Decimal `json:"threshold_units"`
	RateCents      int64           `json:"rate_cents"`
}

// RatePlanResponse represents a rate plan in API responses
type RatePlanResponse struct {
	ID             uuid.UUID          `json:"id"`
	Name           string             `json:"name"`
	Type           string             `json:"type"`
	PricingMode    string             `json:"pricing_mode"`
	BaseRateCents  int64              `json:"base_rate_cents"`
	Tiers          []RateTierResponse `json:"tiers,omitempty"`
	DemandFeeCents *int64             `json:"demand_fee_cents,omitempty"`
	MinimumCents   *int64             `json:"minimum_cents,omitempty"`
	EffectiveFrom  time.Time          `json:"effective_from"`
	EffectiveTo    *time.Time         `json:"effective_to,omitempty"`
}

func toRatePlanResponse(plan *metering.RatePlan) RatePlanResponse {
	resp := RatePlanResponse{
		ID:             plan.GetID(),
		Name:           plan.Name,
		Type:           plan.Type.String(),
		PricingMode:    string(plan.PricingMode),
		BaseRateCents:  plan.BaseRateCents,
		DemandFeeCents: plan.DemandFeeCents,
		MinimumCents:   plan.MinimumCents,
		EffectiveFrom:  plan.EffectiveFrom,
		EffectiveTo:    plan.EffectiveTo,
	}
	for _, tier := range plan.Tiers {
		resp.Tiers = append(resp.Tiers, RateTierResponse{
			ThresholdUnits: tier.ThresholdUnits,
			RateCents:      tier.RateCents,
		})
	}
	return resp
}
