package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RatePlanModel is the GORM model for rate plans. Tiers are stored as a JSON
// document; they are always read and written as a unit with the plan.
type RatePlanModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name           string    `gorm:"type:varchar(255);not null"`
	Type           string    `gorm:"type:varchar(20);not null;index:idx_rate_plans_type_effective,priority:1"`
	PricingMode    string    `gorm:"type:varchar(20);not null"`
	BaseRateCents  int64     `gorm:"not null;default:0"`
	Tiers          []byte    `gorm:"type:jsonb"`
	DemandFeeCents *int64
	MinimumCents   *int64
	EffectiveFrom  time.Time `gorm:"not null;index:idx_rate_plans_type_effective,priority:2"`
	EffectiveTo    *time.Time
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RatePlanModel) TableName() string {
	return "rate_plans"
}

type rateTierJSON struct {
	ThresholdUnits string `json:"threshold_units"`
	RateCents      int64  `json:"rate_cents"`
}

// ToDomain converts the persistence model to a domain RatePlan
func (m *RatePlanModel) ToDomain() (*metering.RatePlan, error) {
	plan := &metering.RatePlan{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Name:           m.Name,
		Type:           metering.MeterType(m.Type),
		PricingMode:    metering.PricingMode(m.PricingMode),
		BaseRateCents:  m.BaseRateCents,
		DemandFeeCents: m.DemandFeeCents,
		MinimumCents:   m.MinimumCents,
		EffectiveFrom:  m.EffectiveFrom,
		EffectiveTo:    m.EffectiveTo,
	}

	if len(m.Tiers) > 0 {
		var raw []rateTierJSON
		if err := json.Unmarshal(m.Tiers, &raw); err != nil {
			return nil, err
		}
		plan.Tiers = make([]metering.RateTier, len(raw))
		for i, tier := range raw {
			threshold, err := decimal.NewFromString(tier.ThresholdUnits)
			if err != nil {
				return nil, err
			}
			plan.Tiers[i] = metering.RateTier{
				ThresholdUnits: threshold,
				RateCents:      tier.RateCents,
			}
		}
	}
	return plan, nil
}

// RatePlanModelFromDomain creates a model from a domain RatePlan
func RatePlanModelFromDomain(plan *metering.RatePlan) (*RatePlanModel, error) {
	model := &RatePlanModel{
		ID:             plan.GetID(),
		Name:           plan.Name,
		Type:           string(plan.Type),
		PricingMode:    string(plan.PricingMode),
		BaseRateCents:  plan.BaseRateCents,
		DemandFeeCents: plan.DemandFeeCents,
		MinimumCents:   plan.MinimumCents,
		EffectiveFrom:  plan.EffectiveFrom,
		EffectiveTo:    plan.EffectiveTo,
		CreatedAt:      plan.GetCreatedAt(),
		UpdatedAt:      plan.GetUpdatedAt(),
	}

	if len(plan.Tiers) > 0 {
		raw := make([]rateTierJSON, len(plan.Tiers))
		for i, tier := range plan.Tiers {
			raw[i] = rateTierJSON{
				ThresholdUnits: tier.ThresholdUnits.String(),
				RateCents:      tier.RateCents,
			}
		}
		payload, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		model.Tiers = payload
	}
	return model, nil
}

// RatePlanRepository implements metering.RatePlanRepository using GORM
type RatePlanRepository struct {
	db *gorm.DB
}

// NewRatePlanRepository creates a new rate plan repository
func NewRatePlanRepository(db *gorm.DB) *RatePlanRepository {
	return &RatePlanRepository{db: db}
}

// Save persists a rate plan. Plans are authored by operators via seed data or
// billing configuration tooling; the metering API itself never writes them.
func (r *RatePlanRepository) Save(ctx context.Context, plan *metering.RatePlan) error {
	model, err := RatePlanModelFromDomain(plan)
	if err != nil {
		return err
	}
	return dbFromContext(ctx, r.db).Create(model).Error
}

// FindByID returns a rate plan by ID
func (r *RatePlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*metering.RatePlan, error) {
	var model RatePlanModel
	if err := dbFromContext(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindEffectiveByType returns all plans of the type effective at asOf
func (r *RatePlanRepository) FindEffectiveByType(ctx context.Context, meterType metering.MeterType, asOf time.Time) ([]*metering.RatePlan, error) {
	var models []RatePlanModel
	err := dbFromContext(ctx, r.db).
		Where("type = ?", string(meterType)).
		Where("effective_from <= ?", asOf).
		Where("effective_to IS NULL OR effective_to > ?", asOf).
		Order("effective_from DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	plans := make([]*metering.RatePlan, len(models))
	for i := range models {
		plan, err := models[i].ToDomain()
		if err != nil {
			return nil, err
		}
		plans[i] = plan
	}
	return plans, nil
}
