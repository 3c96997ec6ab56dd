package metering

import (
	"time"

	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MeterRead is one immutable entry in a meter's append-only ledger. Ordering
// key is ReadAt; Seq is the insertion sequence assigned by the store and
// breaks ties between reads taken at the same instant.
type MeterRead struct {
	shared.BaseEntity
	MeterID uuid.UUID
	Seq     int64
	Value   decimal.Decimal
	ReadAt  time.Time
	Note    string
}

// NewMeterRead creates a ledger entry after validating the reading value
func NewMeterRead(meterID uuid.UUID, value decimal.Decimal, readAt time.Time, note string) (*MeterRead, error) {
	if meterID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_METER", "Meter ID cannot be empty")
	}
	if value.IsNegative() {
		return nil, shared.NewDomainError("INVALID_READING", "Reading value cannot be negative")
	}
	if readAt.IsZero() {
		return nil, shared.NewDomainError("INVALID_READING", "Reading timestamp cannot be empty")
	}

	return &MeterRead{
		BaseEntity: shared.NewBaseEntity(),
		MeterID:    meterID,
		Value:      value,
		ReadAt:     readAt,
		Note:       note,
	}, nil
}

// Before reports whether this read is ordered before other, using ReadAt and
// the insertion sequence as tie-break.
func (r *MeterRead) Before(other *MeterRead) bool {
	if r.ReadAt.Equal(other.ReadAt) {
		return r.Seq < other.Seq
	}
	return r.ReadAt.Before(other.ReadAt)
}
