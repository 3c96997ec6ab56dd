package metering

import (
	"time"

	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PricingMode distinguishes flat-rate plans from tiered ones
type PricingMode string

const (
	PricingModeFlat   PricingMode = "flat"
	PricingModeTiered PricingMode = "tiered"
)

// IsValid returns true if the pricing mode is a known enum value
func (p PricingMode) IsValid() bool {
	return p == PricingModeFlat || p == PricingModeTiered
}

// RateTier is one bracket of a tiered plan. The tier covers billed usage from
// ThresholdUnits up to the next tier's threshold (or infinity for the last
// tier), charged marginally at RateCents per unit.
type RateTier struct {
	ThresholdUnits decimal.Decimal
	RateCents      int64
}

// RatePlan is a time-bounded pricing rule for one meter type. Plans are owned
// by billing configuration and read-only to this core. EffectiveTo nil means
// open-ended; the effective interval is half-open [EffectiveFrom, EffectiveTo).
type RatePlan struct {
	shared.BaseEntity
	Name           string
	Type           MeterType
	PricingMode    PricingMode
	BaseRateCents  int64
	Tiers          []RateTier
	DemandFeeCents *int64
	MinimumCents   *int64
	EffectiveFrom  time.Time
	EffectiveTo    *time.Time
}

// ActiveAt reports whether the plan is effective at the given instant
func (p *RatePlan) ActiveAt(t time.Time) bool {
	if t.Before(p.EffectiveFrom) {
		return false
	}
	if p.EffectiveTo != nil && !t.Before(*p.EffectiveTo) {
		return false
	}
	return true
}

// Validate checks the structural invariants of a plan: a known type and
// pricing mode, non-negative rates, and tiers sorted strictly ascending by
// threshold for tiered plans.
func (p *RatePlan) Validate() error {
	if !p.Type.IsValid() {
		return shared.NewDomainError("INVALID_METER_TYPE", "Unknown meter type: "+string(p.Type))
	}
	if !p.PricingMode.IsValid() {
		return shared.NewDomainError("INVALID_PRICING_MODE", "Unknown pricing mode: "+string(p.PricingMode))
	}
	if p.BaseRateCents < 0 {
		return shared.NewDomainError("INVALID_RATE", "Base rate cannot be negative")
	}
	if p.PricingMode == PricingModeTiered {
		if len(p.Tiers) == 0 {
			return shared.NewDomainError("INVALID_TIERS", "Tiered plan needs at least one tier")
		}
		for i, tier := range p.Tiers {
			if tier.RateCents < 0 {
				return shared.NewDomainError("INVALID_RATE", "Tier rate cannot be negative")
			}
			if tier.ThresholdUnits.IsNegative() {
				return shared.NewDomainError("INVALID_TIERS", "Tier threshold cannot be negative")
			}
			if i > 0 && !p.Tiers[i-1].ThresholdUnits.LessThan(tier.ThresholdUnits) {
				return shared.NewDomainError("INVALID_TIERS", "Tier thresholds must be strictly ascending")
			}
		}
	}
	if p.EffectiveTo != nil && !p.EffectiveFrom.Before(*p.EffectiveTo) {
		return shared.NewDomainError("INVALID_EFFECTIVE_RANGE", "Effective-from must precede effective-to")
	}
	return nil
}

// SelectEffectivePlan picks the applicable plan from candidates at the given
// instant. When effective ranges overlap, the plan with the latest
// EffectiveFrom wins: the most recent override is deliberately preferred over
// erroring on ambiguous configuration. Returns nil if no candidate is active.
func SelectEffectivePlan(candidates []*RatePlan, asOf time.Time) *RatePlan {
	var selected *RatePlan
	for _, plan := range candidates {
		if !plan.ActiveAt(asOf) {
			continue
		}
		if selected == nil || plan.EffectiveFrom.After(selected.EffectiveFrom) {
			selected = plan
		}
	}
	return selected
}
