package metering

import (
	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MeterType identifies the utility a meter measures
type MeterType string

const (
	MeterTypePower MeterType = "power"
	MeterTypeWater MeterType = "water"
	MeterTypeSewer MeterType = "sewer"
)

// IsValid returns true if the meter type is a known enum value
func (t MeterType) IsValid() bool {
	switch t {
	case MeterTypePower, MeterTypeWater, MeterTypeSewer:
		return true
	}
	return false
}

// String returns the string representation of the meter type
func (t MeterType) String() string {
	return string(t)
}

// BillingMode is the cadence policy controlling when a reading produces a bill
type BillingMode string

const (
	BillingModeCycle      BillingMode = "cycle"
	BillingModePerReading BillingMode = "per_reading"
	BillingModeAnnual     BillingMode = "annual"
	BillingModeManual     BillingMode = "manual"
)

// IsValid returns true if the billing mode is a known enum value
func (m BillingMode) IsValid() bool {
	switch m {
	case BillingModeCycle, BillingModePerReading, BillingModeAnnual, BillingModeManual:
		return true
	}
	return false
}

// BillTo determines whether charges attach to the reservation or the guest
type BillTo string

const (
	BillToReservation BillTo = "reservation"
	BillToGuest       BillTo = "guest"
)

// IsValid returns true if the bill-to target is a known enum value
func (b BillTo) IsValid() bool {
	return b == BillToReservation || b == BillToGuest
}

// Meter is a utility counter bound to a campsite. Configuration fields are
// pointers: nil means "inherit from the site class defaults" and is resolved
// through ResolveEffectiveConfig. Meters are never deleted, only deactivated,
// so historical billing stays attributable.
type Meter struct {
	shared.VersionedEntity
	SiteID       uuid.UUID
	Type         MeterType
	BillingMode  *BillingMode
	BillTo       *BillTo
	Multiplier   *decimal.Decimal
	RatePlanID   *uuid.UUID
	AutoEmail    *bool
	Active       bool
	SerialNumber string
}

// MeterConfig carries the optional configuration supplied at creation time
type MeterConfig struct {
	BillingMode  *BillingMode
	BillTo       *BillTo
	Multiplier   *decimal.Decimal
	RatePlanID   *uuid.UUID
	AutoEmail    *bool
	SerialNumber string
}

// NewMeter creates an active meter for a site after validating its
// configuration
func NewMeter(siteID uuid.UUID, meterType MeterType, cfg MeterConfig) (*Meter, error) {
	if siteID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SITE", "Site ID cannot be empty")
	}
	if !meterType.IsValid() {
		return nil, shared.NewDomainError("INVALID_METER_TYPE", "Unknown meter type: "+string(meterType))
	}
	if cfg.BillingMode != nil && !cfg.BillingMode.IsValid() {
		return nil, shared.NewDomainError("INVALID_BILLING_MODE", "Unknown billing mode: "+string(*cfg.BillingMode))
	}
	if cfg.BillTo != nil && !cfg.BillTo.IsValid() {
		return nil, shared.NewDomainError("INVALID_BILL_TO", "Unknown bill-to target: "+string(*cfg.BillTo))
	}
	if cfg.Multiplier != nil && !cfg.Multiplier.IsPositive() {
		return nil, shared.NewDomainError("INVALID_MULTIPLIER", "Multiplier must be greater than zero")
	}

	return &Meter{
		VersionedEntity: shared.NewVersionedEntity(),
		SiteID:          siteID,
		Type:            meterType,
		BillingMode:     cfg.BillingMode,
		BillTo:          cfg.BillTo,
		Multiplier:      cfg.Multiplier,
		RatePlanID:      cfg.RatePlanID,
		AutoEmail:       cfg.AutoEmail,
		Active:          true,
		SerialNumber:    cfg.SerialNumber,
	}, nil
}

// MeterPatch carries partial-update semantics for a meter. Nil fields are
// left unchanged; ClearRatePlan removes the per-meter rate plan override so
// the meter reverts to its class default.
type MeterPatch struct {
	BillingMode   *BillingMode
	BillTo        *BillTo
	Multiplier    *decimal.Decimal
	RatePlanID    *uuid.UUID
	ClearRatePlan bool
	AutoEmail     *bool
	SerialNumber  *string
}

// Apply validates and applies the patch to the meter
func (m *Meter) Apply(patch MeterPatch) error {
	if patch.BillingMode != nil && !patch.BillingMode.IsValid() {
		return shared.NewDomainError("INVALID_BILLING_MODE", "Unknown billing mode: "+string(*patch.BillingMode))
	}
	if patch.BillTo != nil && !patch.BillTo.IsValid() {
		return shared.NewDomainError("INVALID_BILL_TO", "Unknown bill-to target: "+string(*patch.BillTo))
	}
	if patch.Multiplier != nil && !patch.Multiplier.IsPositive() {
		return shared.NewDomainError("INVALID_MULTIPLIER", "Multiplier must be greater than zero")
	}
	if patch.ClearRatePlan && patch.RatePlanID != nil {
		return shared.NewDomainError("INVALID_RATE_PLAN_PATCH", "Cannot both set and clear the rate plan override")
	}

	if patch.BillingMode != nil {
		m.BillingMode = patch.BillingMode
	}
	if patch.BillTo != nil {
		m.BillTo = patch.BillTo
	}
	if patch.Multiplier != nil {
		m.Multiplier = patch.Multiplier
	}
	if patch.ClearRatePlan {
		m.RatePlanID = nil
	} else if patch.RatePlanID != nil {
		m.RatePlanID = patch.RatePlanID
	}
	if patch.AutoEmail != nil {
		m.AutoEmail = patch.AutoEmail
	}
	if patch.SerialNumber != nil {
		m.SerialNumber = *patch.SerialNumber
	}
	return nil
}

// SetActive activates or deactivates the meter. Deactivation is the only
// form of removal.
func (m *Meter) SetActive(active bool) {
	m.Active = active
}
