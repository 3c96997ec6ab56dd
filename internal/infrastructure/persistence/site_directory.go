package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/campreserve/backend/internal/domain/directory"
	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SiteModel is the GORM model for campsites. Sites and classes are owned by
// the reservation system; this service reads them and never writes.
type SiteModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	SiteClassID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name        string    `gorm:"type:varchar(100);not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SiteModel) TableName() string {
	return "sites"
}

// SiteClassModel is the GORM model for site classes, carrying the class-level
// metering template as nullable default columns
type SiteClassModel struct {
	ID                 uuid.UUID        `gorm:"type:uuid;primaryKey"`
	Name               string           `gorm:"type:varchar(100);not null"`
	MeteredEnabled     bool             `gorm:"not null;default:false"`
	MeteredType        *string          `gorm:"type:varchar(20)"`
	DefaultBillingMode *string          `gorm:"type:varchar(20)"`
	DefaultBillTo      *string          `gorm:"type:varchar(20)"`
	DefaultMultiplier  *decimal.Decimal `gorm:"type:numeric(12,4)"`
	DefaultRatePlanID  *uuid.UUID       `gorm:"type:uuid"`
	DefaultAutoEmail   *bool
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SiteClassModel) TableName() string {
	return "site_classes"
}

// ToDomain converts the persistence model to a domain SiteClass
func (m *SiteClassModel) ToDomain() *directory.SiteClass {
	class := &directory.SiteClass{
		ID:   m.ID,
		Name: m.Name,
	}

	defaults := &metering.ClassDefaults{
		MeteredEnabled: m.MeteredEnabled,
		Multiplier:     m.DefaultMultiplier,
		RatePlanID:     m.DefaultRatePlanID,
		AutoEmail:      m.DefaultAutoEmail,
	}
	if m.MeteredType != nil {
		defaults.MeteredType = metering.MeterType(*m.MeteredType)
	}
	if m.DefaultBillingMode != nil {
		mode := metering.BillingMode(*m.DefaultBillingMode)
		defaults.BillingMode = &mode
	}
	if m.DefaultBillTo != nil {
		target := metering.BillTo(*m.DefaultBillTo)
		defaults.BillTo = &target
	}
	class.Metering = defaults
	return class
}

// SiteDirectory implements directory.SiteDirectory against the reservation
// system's site tables
type SiteDirectory struct {
	db *gorm.DB
}

// NewSiteDirectory creates a new site directory
func NewSiteDirectory(db *gorm.DB) *SiteDirectory {
	return &SiteDirectory{db: db}
}

// FindSite returns a site by ID
func (r *SiteDirectory) FindSite(ctx context.Context, id uuid.UUID) (*directory.Site, error) {
	var model SiteModel
	if err := dbFromContext(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &directory.Site{
		ID:          model.ID,
		SiteClassID: model.SiteClassID,
		Name:        model.Name,
	}, nil
}

// FindSiteClass returns a site class by ID
func (r *SiteDirectory) FindSiteClass(ctx context.Context, id uuid.UUID) (*directory.SiteClass, error) {
	var model SiteClassModel
	if err := dbFromContext(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListSitesByClass returns every site of the class, ordered by name
func (r *SiteDirectory) ListSitesByClass(ctx context.Context, siteClassID uuid.UUID) ([]directory.Site, error) {
	var models []SiteModel
	err := dbFromContext(ctx, r.db).
		Where("site_class_id = ?", siteClassID).
		Order("name").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	sites := make([]directory.Site, len(models))
	for i, model := range models {
		sites[i] = directory.Site{
			ID:          model.ID,
			SiteClassID: model.SiteClassID,
			Name:        model.Name,
		}
	}
	return sites, nil
}
