package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BillingEventModel is the GORM model for billing events. The unique
// (meter_id, read_id) index is the idempotency backstop: even if two triggers
// race past the application-level check, only one event row can exist per
// reading.
type BillingEventModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	MeterID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_billing_meter_read,priority:1"`
	ReadID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_billing_meter_read,priority:2"`
	PreviousReadID uuid.UUID       `gorm:"type:uuid;not null"`
	Usage          decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	BilledUsage    decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	AmountCents    int64           `gorm:"not null"`
	RatePlanID     uuid.UUID       `gorm:"type:uuid;not null"`
	CreatedAt      time.Time       `gorm:"not null"`
	UpdatedAt      time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BillingEventModel) TableName() string {
	return "billing_events"
}

// ToDomain converts the persistence model to a domain BillingEvent
func (m *BillingEventModel) ToDomain() *metering.BillingEvent {
	return &metering.BillingEvent{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		MeterID:        m.MeterID,
		ReadID:         m.ReadID,
		PreviousReadID: m.PreviousReadID,
		Usage:          m.Usage,
		BilledUsage:    m.BilledUsage,
		AmountCents:    m.AmountCents,
		RatePlanID:     m.RatePlanID,
	}
}

// BillingEventModelFromDomain creates a model from a domain BillingEvent
func BillingEventModelFromDomain(event *metering.BillingEvent) *BillingEventModel {
	return &BillingEventModel{
		ID:             event.GetID(),
		MeterID:        event.MeterID,
		ReadID:         event.ReadID,
		PreviousReadID: event.PreviousReadID,
		Usage:          event.Usage,
		BilledUsage:    event.BilledUsage,
		AmountCents:    event.AmountCents,
		RatePlanID:     event.RatePlanID,
		CreatedAt:      event.GetCreatedAt(),
		UpdatedAt:      event.GetUpdatedAt(),
	}
}

// BillingEventRepository implements metering.BillingEventRepository using GORM
type BillingEventRepository struct {
	db *gorm.DB
}

// NewBillingEventRepository creates a new billing event repository
func NewBillingEventRepository(db *gorm.DB) *BillingEventRepository {
	return &BillingEventRepository{db: db}
}

// Save persists a billing event, failing with ErrAlreadyExists when an event
// for the same (meter, read) pair already exists
func (r *BillingEventRepository) Save(ctx context.Context, event *metering.BillingEvent) error {
	model := BillingEventModelFromDomain(event)
	if err := dbFromContext(ctx, r.db).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindByMeterAndRead returns the billing event for a (meter, read) pair
func (r *BillingEventRepository) FindByMeterAndRead(ctx context.Context, meterID, readID uuid.UUID) (*metering.BillingEvent, error) {
	var model BillingEventModel
	err := dbFromContext(ctx, r.db).
		Where("meter_id = ? AND read_id = ?", meterID, readID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByMeter returns the meter's billing history, newest first
func (r *BillingEventRepository) FindByMeter(ctx context.Context, meterID uuid.UUID) ([]metering.BillingEvent, error) {
	var models []BillingEventModel
	err := dbFromContext(ctx, r.db).
		Where("meter_id = ?", meterID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	events := make([]metering.BillingEvent, len(models))
	for i := range models {
		events[i] = *models[i].ToDomain()
	}
	return events, nil
}
