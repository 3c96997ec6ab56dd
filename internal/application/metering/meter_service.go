package metering

import (
	"context"
	"errors"

	"github.com/campreserve/backend/internal/domain/directory"
	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateMeterInput contains input for registering a meter on a site
type CreateMeterInput struct {
	SiteID       uuid.UUID
	Type         metering.MeterType
	BillingMode  *metering.BillingMode
	BillTo       *metering.BillTo
	Multiplier   *decimal.Decimal
	RatePlanID   *uuid.UUID
	AutoEmail    *bool
	SerialNumber string
}

// UpdateMeterInput contains partial-update input for a meter
type UpdateMeterInput struct {
	BillingMode   *metering.BillingMode
	BillTo        *metering.BillTo
	Multiplier    *decimal.Decimal
	RatePlanID    *uuid.UUID
	ClearRatePlan bool
	AutoEmail     *bool
	SerialNumber  *string
}

// EffectiveConfigDTO is a meter's resolved configuration for API consumers
type EffectiveConfigDTO struct {
	MeterID     uuid.UUID            `json:"meter_id"`
	BillingMode metering.BillingMode `json:"billing_mode"`
	BillTo      metering.BillTo      `json:"bill_to"`
	Multiplier  decimal.Decimal      `json:"multiplier"`
	RatePlanID  *uuid.UUID           `json:"rate_plan_id,omitempty"`
	AutoEmail   bool                 `json:"auto_email"`
}

// MeterService manages the meter registry
type MeterService struct {
	meterRepo     metering.MeterRepository
	siteDirectory directory.SiteDirectory
	resolver      *ConfigResolver
	tx            shared.TransactionManager
	logger        *zap.Logger
}

// NewMeterService creates a new MeterService
func NewMeterService(
	meterRepo metering.MeterRepository,
	siteDirectory directory.SiteDirectory,
	resolver *ConfigResolver,
	tx shared.TransactionManager,
	logger *zap.Logger,
) *MeterService {
	return &MeterService{
		meterRepo:     meterRepo,
		siteDirectory: siteDirectory,
		resolver:      resolver,
		tx:            tx,
		logger:        logger,
	}
}

// CreateMeter registers a meter on a site. A site may carry at most one
// active meter per utility type; a second registration fails with
// ErrDuplicateActiveMeter.
func (s *MeterService) CreateMeter(ctx context.Context, input CreateMeterInput) (*metering.Meter, error) {
	if _, err := s.siteDirectory.FindSite(ctx, input.SiteID); err != nil {
		return nil, err
	}

	meter, err := metering.NewMeter(input.SiteID, input.Type, metering.MeterConfig{
		BillingMode:  input.BillingMode,
		BillTo:       input.BillTo,
		Multiplier:   input.Multiplier,
		RatePlanID:   input.RatePlanID,
		AutoEmail:    input.AutoEmail,
		SerialNumber: input.SerialNumber,
	})
	if err != nil {
		return nil, err
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := s.meterRepo.FindActiveBySiteAndType(ctx, input.SiteID, input.Type)
		if err == nil {
			return shared.ErrDuplicateActiveMeter
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		return s.meterRepo.Save(ctx, meter)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("meter created",
		zap.String("meter_id", meter.GetID().String()),
		zap.String("site_id", meter.SiteID.String()),
		zap.String("type", meter.Type.String()))
	return meter, nil
}

// UpdateMeter applies a partial update. Lost optimistic-lock races are
// retried against the fresh meter state.
func (s *MeterService) UpdateMeter(ctx context.Context, meterID uuid.UUID, input UpdateMeterInput) (*metering.Meter, error) {
	patch := metering.MeterPatch{
		BillingMode:   input.BillingMode,
		BillTo:        input.BillTo,
		Multiplier:    input.Multiplier,
		RatePlanID:    input.RatePlanID,
		ClearRatePlan: input.ClearRatePlan,
		AutoEmail:     input.AutoEmail,
		SerialNumber:  input.SerialNumber,
	}

	var meter *metering.Meter
	err := withConflictRetry(ctx, func(ctx context.Context) error {
		var err error
		meter, err = s.meterRepo.FindByID(ctx, meterID)
		if err != nil {
			return err
		}
		if err := meter.Apply(patch); err != nil {
			return err
		}
		return s.meterRepo.UpdateWithVersion(ctx, meter)
	})
	if err != nil {
		return nil, err
	}
	return meter, nil
}

// GetMeter returns a meter by ID
func (s *MeterService) GetMeter(ctx context.Context, meterID uuid.UUID) (*metering.Meter, error) {
	return s.meterRepo.FindByID(ctx, meterID)
}

// ListMeters returns meters matching the filter, ordered by site then type
func (s *MeterService) ListMeters(ctx context.Context, filter metering.MeterFilter) ([]metering.Meter, error) {
	return s.meterRepo.FindAll(ctx, filter)
}

// SetMeterActive activates or deactivates a meter. Activation re-checks the
// one-active-meter-per-site-and-type rule against meters added since this one
// was deactivated.
func (s *MeterService) SetMeterActive(ctx context.Context, meterID uuid.UUID, active bool) (*metering.Meter, error) {
	var meter *metering.Meter
	err := withConflictRetry(ctx, func(ctx context.Context) error {
		return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			var err error
			meter, err = s.meterRepo.FindByIDForUpdate(ctx, meterID)
			if err != nil {
				return err
			}
			if meter.Active == active {
				return nil
			}

			if active {
				existing, err := s.meterRepo.FindActiveBySiteAndType(ctx, meter.SiteID, meter.Type)
				if err == nil && existing.GetID() != meter.GetID() {
					return shared.ErrDuplicateActiveMeter
				}
				if err != nil && !errors.Is(err, shared.ErrNotFound) {
					return err
				}
			}

			meter.SetActive(active)
			return s.meterRepo.UpdateWithVersion(ctx, meter)
		})
	})
	if err != nil {
		return nil, err
	}
	return meter, nil
}

// EffectiveConfig returns the meter's fully resolved configuration
func (s *MeterService) EffectiveConfig(ctx context.Context, meterID uuid.UUID) (*EffectiveConfigDTO, error) {
	meter, err := s.meterRepo.FindByID(ctx, meterID)
	if err != nil {
		return nil, err
	}

	cfg, err := s.resolver.Resolve(ctx, meter)
	if err != nil {
		return nil, err
	}

	return &EffectiveConfigDTO{
		MeterID:     meter.GetID(),
		BillingMode: cfg.BillingMode,
		BillTo:      cfg.BillTo,
		Multiplier:  cfg.Multiplier,
		RatePlanID:  cfg.RatePlanID,
		AutoEmail:   cfg.AutoEmail,
	}, nil
}
