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
	"gorm.io/gorm/clause"
)

// MeterModel is the GORM model for meters. Configuration columns are nullable
// to preserve the domain's "nil means inherit" semantics. The partial unique
// index on (site_id, type) WHERE active backstops the one-active-meter rule
// against concurrent writers.
type MeterModel struct {
	ID           uuid.UUID        `gorm:"type:uuid;primaryKey"`
	SiteID       uuid.UUID        `gorm:"type:uuid;not null;index:idx_meters_site_type,priority:1;uniqueIndex:uq_meters_site_type_active,priority:1,where:active"`
	Type         string           `gorm:"type:varchar(20);not null;index:idx_meters_site_type,priority:2;uniqueIndex:uq_meters_site_type_active,priority:2"`
	BillingMode  *string          `gorm:"type:varchar(20)"`
	BillTo       *string          `gorm:"type:varchar(20)"`
	Multiplier   *decimal.Decimal `gorm:"type:numeric(12,4)"`
	RatePlanID   *uuid.UUID       `gorm:"type:uuid"`
	AutoEmail    *bool
	Active       bool      `gorm:"not null;default:true"`
	SerialNumber string    `gorm:"type:varchar(100)"`
	Version      int       `gorm:"not null;default:1"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MeterModel) TableName() string {
	return "meters"
}

// ToDomain converts the persistence model to a domain Meter
func (m *MeterModel) ToDomain() *metering.Meter {
	meter := &metering.Meter{
		VersionedEntity: shared.VersionedEntity{
			BaseEntity: shared.BaseEntity{
				ID:        m.ID,
				CreatedAt: m.CreatedAt,
				UpdatedAt: m.UpdatedAt,
			},
			Version: m.Version,
		},
		SiteID:       m.SiteID,
		Type:         metering.MeterType(m.Type),
		Multiplier:   m.Multiplier,
		RatePlanID:   m.RatePlanID,
		AutoEmail:    m.AutoEmail,
		Active:       m.Active,
		SerialNumber: m.SerialNumber,
	}
	if m.BillingMode != nil {
		mode := metering.BillingMode(*m.BillingMode)
		meter.BillingMode = &mode
	}
	if m.BillTo != nil {
		target := metering.BillTo(*m.BillTo)
		meter.BillTo = &target
	}
	return meter
}

// MeterModelFromDomain creates a model from a domain Meter
func MeterModelFromDomain(meter *metering.Meter) *MeterModel {
	model := &MeterModel{
		ID:           meter.GetID(),
		SiteID:       meter.SiteID,
		Type:         string(meter.Type),
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
		model.BillingMode = &mode
	}
	if meter.BillTo != nil {
		target := string(*meter.BillTo)
		model.BillTo = &target
	}
	return model
}

// MeterRepository implements metering.MeterRepository using GORM
type MeterRepository struct {
	db *gorm.DB
}

// NewMeterRepository creates a new meter repository
func NewMeterRepository(db *gorm.DB) *MeterRepository {
	return &MeterRepository{db: db}
}

// Save persists a new meter
func (r *MeterRepository) Save(ctx context.Context, meter *metering.Meter) error {
	model := MeterModelFromDomain(meter)
	if err := dbFromContext(ctx, r.db).Create(model).Error; err != nil {
		// The only unique index besides the uuid primary key is the
		// partial (site_id, type) WHERE active index.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrDuplicateActiveMeter
		}
		return err
	}
	return nil
}

// FindByID returns a meter by ID
func (r *MeterRepository) FindByID(ctx context.Context, id uuid.UUID) (*metering.Meter, error) {
	var model MeterModel
	if err := dbFromContext(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForUpdate locks the meter row for the rest of the transaction
func (r *MeterRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*metering.Meter, error) {
	var model MeterModel
	err := dbFromContext(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveBySiteAndType returns the site's active meter of the given type
func (r *MeterRepository) FindActiveBySiteAndType(ctx context.Context, siteID uuid.UUID, meterType metering.MeterType) (*metering.Meter, error) {
	var model MeterModel
	err := dbFromContext(ctx, r.db).
		Where("site_id = ? AND type = ? AND active = ?", siteID, string(meterType), true).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns meters matching the filter, ordered by site then type
func (r *MeterRepository) FindAll(ctx context.Context, filter metering.MeterFilter) ([]metering.Meter, error) {
	query := dbFromContext(ctx, r.db).Model(&MeterModel{})
	if filter.SiteID != nil {
		query = query.Where("site_id = ?", *filter.SiteID)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", string(*filter.Type))
	}
	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}

	var models []MeterModel
	if err := query.Order("site_id, type").Find(&models).Error; err != nil {
		return nil, err
	}

	meters := make([]metering.Meter, len(models))
	for i := range models {
		meters[i] = *models[i].ToDomain()
	}
	return meters, nil
}

// FindActiveByBillingModes returns active meters whose effective billing mode
// is one of the given modes. Meters with no explicit mode inherit from their
// site class, so the query joins through sites and classes and falls back to
// the system default for the final NULL layer.
func (r *MeterRepository) FindActiveByBillingModes(ctx context.Context, modes []metering.BillingMode) ([]metering.Meter, error) {
	values := make([]string, len(modes))
	for i, mode := range modes {
		values[i] = string(mode)
	}

	var models []MeterModel
	err := dbFromContext(ctx, r.db).
		Table("meters").
		Select("meters.*").
		Joins("LEFT JOIN sites ON sites.id = meters.site_id").
		Joins("LEFT JOIN site_classes ON site_classes.id = sites.site_class_id").
		Where("meters.active = ?", true).
		Where("COALESCE(meters.billing_mode, site_classes.default_billing_mode, ?) IN ?",
			string(metering.BillingModeManual), values).
		Order("meters.site_id, meters.type").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	meters := make([]metering.Meter, len(models))
	for i := range models {
		meters[i] = *models[i].ToDomain()
	}
	return meters, nil
}

// UpdateWithVersion saves the meter with an optimistic version check
func (r *MeterRepository) UpdateWithVersion(ctx context.Context, meter *metering.Meter) error {
	currentVersion := meter.GetVersion()
	meter.IncrementVersion()
	model := MeterModelFromDomain(meter)

	result := dbFromContext(ctx, r.db).
		Model(&MeterModel{}).
		Where("id = ? AND version = ?", model.ID, currentVersion).
		Select("billing_mode", "bill_to", "multiplier", "rate_plan_id", "auto_email", "active", "serial_number", "version", "updated_at").
		Updates(map[string]any{
			"billing_mode":  model.BillingMode,
			"bill_to":       model.BillTo,
			"multiplier":    model.Multiplier,
			"rate_plan_id":  model.RatePlanID,
			"auto_email":    model.AutoEmail,
			"active":        model.Active,
			"serial_number": model.SerialNumber,
			"version":       model.Version,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		meter.Version = currentVersion
		// Reactivating a meter can collide with another active meter on
		// the partial (site_id, type) unique index.
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return shared.ErrDuplicateActiveMeter
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		meter.Version = currentVersion
		return shared.ErrConcurrencyConflict
	}
	return nil
}
