package metering

import (
	"context"
	"time"

	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RatePlanService answers which pricing rule applies to a meter type or a
// concrete meter at a given instant. Plans themselves are authored by billing
// configuration and only read here.
type RatePlanService struct {
	ratePlanRepo metering.RatePlanRepository
	logger       *zap.Logger
}

// NewRatePlanService creates a new RatePlanService
func NewRatePlanService(ratePlanRepo metering.RatePlanRepository, logger *zap.Logger) *RatePlanService {
	return &RatePlanService{ratePlanRepo: ratePlanRepo, logger: logger}
}

// GetPlan returns a rate plan by ID
func (s *RatePlanService) GetPlan(ctx context.Context, planID uuid.UUID) (*metering.RatePlan, error) {
	return s.ratePlanRepo.FindByID(ctx, planID)
}

// ResolveByType returns the plan effective for the meter type at asOf. When
// several plans overlap the one with the latest effective-from wins. Fails
// with ErrNoRatePlanFound when no plan covers the instant.
func (s *RatePlanService) ResolveByType(ctx context.Context, meterType metering.MeterType, asOf time.Time) (*metering.RatePlan, error) {
	if !meterType.IsValid() {
		return nil, shared.NewDomainError("INVALID_METER_TYPE", "Unknown meter type: "+string(meterType))
	}

	candidates, err := s.ratePlanRepo.FindEffectiveByType(ctx, meterType, asOf)
	if err != nil {
		return nil, err
	}

	selected := metering.SelectEffectivePlan(candidates, asOf)
	if selected == nil {
		return nil, shared.ErrNoRatePlanFound
	}

	if len(candidates) > 1 {
		s.logger.Debug("overlapping rate plans resolved",
			zap.String("type", meterType.String()),
			zap.Time("as_of", asOf),
			zap.Int("candidates", len(candidates)),
			zap.String("selected", selected.Name))
	}
	return selected, nil
}

// ResolveForConfig resolves the plan a meter bills under at asOf. Without a
// pinned plan in the configuration chain, resolution falls back to the
// type-wide lookup. A pinned plan that is not effective at the instant fails
// with ErrRatePlanInactive rather than silently billing a different plan.
func (s *RatePlanService) ResolveForConfig(ctx context.Context, cfg metering.EffectiveConfig, meterType metering.MeterType, asOf time.Time) (*metering.RatePlan, error) {
	if cfg.RatePlanID == nil {
		return s.ResolveByType(ctx, meterType, asOf)
	}

	plan, err := s.ratePlanRepo.FindByID(ctx, *cfg.RatePlanID)
	if err != nil {
		return nil, err
	}
	if !plan.ActiveAt(asOf) {
		return nil, shared.ErrRatePlanInactive
	}
	return plan, nil
}
