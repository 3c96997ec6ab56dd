package metering

import (
	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// UsageResult is the outcome of comparing two consecutive readings
type UsageResult struct {
	Usage       decimal.Decimal // raw counter delta, clamped to zero
	BilledUsage decimal.Decimal // usage scaled by the meter multiplier
}

// ChargeResult is the monetary outcome of pricing billed usage
type ChargeResult struct {
	AmountCents      int64 // total charge in integer cents
	AppliedRateCents int64 // per-unit rate of the highest bracket reached
}

// ComputeUsage derives billable usage from two consecutive readings. A
// decreasing counter yields zero usage: negative deltas are clamped rather
// than rejected, which matches upstream behavior for meter rollover and
// replacement. Callers that care should log the clamp.
func ComputeUsage(lastValue, newValue, multiplier decimal.Decimal) UsageResult {
	usage := newValue.Sub(lastValue)
	if usage.IsNegative() {
		usage = decimal.Zero
	}
	return UsageResult{
		Usage:       usage,
		BilledUsage: usage.Mul(multiplier),
	}
}

// ComputeCharge prices billed usage under a rate plan. All arithmetic is in
// decimal cents; the total is rounded half-up to integer cents exactly once,
// at the end. The demand fee (if any) is added on top and the minimum charge
// (if any) is applied as a floor last.
func ComputeCharge(billedUsage decimal.Decimal, plan *RatePlan) (ChargeResult, error) {
	if plan == nil {
		return ChargeResult{}, shared.NewDomainError("INVALID_RATE_PLAN", "Rate plan is required")
	}
	if billedUsage.IsNegative() {
		return ChargeResult{}, shared.NewDomainError("INVALID_USAGE", "Billed usage cannot be negative")
	}

	var amount decimal.Decimal
	var appliedRate int64

	switch plan.PricingMode {
	case PricingModeFlat:
		amount = billedUsage.Mul(decimal.NewFromInt(plan.BaseRateCents))
		appliedRate = plan.BaseRateCents

	case PricingModeTiered:
		if len(plan.Tiers) == 0 {
			return ChargeResult{}, shared.NewDomainError("INVALID_TIERS", "Tiered plan has no tiers")
		}
		// Marginal bracket accumulation: each tier charges its rate on the
		// portion of billed usage that falls between its threshold and the
		// next tier's threshold.
		for i, tier := range plan.Tiers {
			lower := tier.ThresholdUnits
			if billedUsage.LessThanOrEqual(lower) {
				break
			}
			portion := billedUsage.Sub(lower)
			if i+1 < len(plan.Tiers) {
				width := plan.Tiers[i+1].ThresholdUnits.Sub(lower)
				if portion.GreaterThan(width) {
					portion = width
				}
			}
			amount = amount.Add(portion.Mul(decimal.NewFromInt(tier.RateCents)))
			appliedRate = tier.RateCents
		}

	default:
		return ChargeResult{}, shared.NewDomainError("INVALID_PRICING_MODE", "Unknown pricing mode: "+string(plan.PricingMode))
	}

	if plan.DemandFeeCents != nil {
		amount = amount.Add(decimal.NewFromInt(*plan.DemandFeeCents))
	}

	amountCents := amount.Round(0).IntPart()

	if plan.MinimumCents != nil && amountCents < *plan.MinimumCents {
		amountCents = *plan.MinimumCents
	}

	return ChargeResult{
		AmountCents:      amountCents,
		AppliedRateCents: appliedRate,
	}, nil
}
