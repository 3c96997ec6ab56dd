package metering

import (
	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingEvent records the billing of a single reading. The idempotency key
// is (MeterID, ReadID): at most one event may exist per pair, and the store
// enforces this with a unique constraint. Events are never mutated or deleted.
type BillingEvent struct {
	shared.BaseEntity
	MeterID        uuid.UUID
	ReadID         uuid.UUID
	PreviousReadID uuid.UUID
	Usage          decimal.Decimal
	BilledUsage    decimal.Decimal
	AmountCents    int64
	RatePlanID     uuid.UUID
}

// NewBillingEvent creates a billing event linking a reading to its charge
func NewBillingEvent(
	meterID uuid.UUID,
	readID uuid.UUID,
	previousReadID uuid.UUID,
	usage UsageResult,
	charge ChargeResult,
	ratePlanID uuid.UUID,
) *BillingEvent {
	return &BillingEvent{
		BaseEntity:     shared.NewBaseEntity(),
		MeterID:        meterID,
		ReadID:         readID,
		PreviousReadID: previousReadID,
		Usage:          usage.Usage,
		BilledUsage:    usage.BilledUsage,
		AmountCents:    charge.AmountCents,
		RatePlanID:     ratePlanID,
	}
}
