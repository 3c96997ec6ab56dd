package metering

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClassDefaults is the metering template attached to a site class. It is
// owned by the site directory and consumed here as the middle layer of the
// configuration override chain and as the seeding template. Nil fields fall
// through to the system defaults.
type ClassDefaults struct {
	MeteredEnabled bool
	MeteredType    MeterType
	BillingMode    *BillingMode
	BillTo         *BillTo
	Multiplier     *decimal.Decimal
	RatePlanID     *uuid.UUID
	AutoEmail      *bool
}

// EffectiveConfig is a fully resolved meter configuration: every field has a
// concrete value except RatePlanID, whose nil means "resolve by meter type"
// (see RatePlanService.Resolve).
type EffectiveConfig struct {
	BillingMode BillingMode
	BillTo      BillTo
	Multiplier  decimal.Decimal
	RatePlanID  *uuid.UUID
	AutoEmail   bool
}

// System defaults, the last layer of the override chain. A meter with no
// configuration and no class defaults bills manually, to the reservation,
// one billable unit per counter unit, without emailing anyone.
var (
	defaultBillingMode = BillingModeManual
	defaultBillTo      = BillToReservation
	defaultAutoEmail   = false
)

// ResolveEffectiveConfig resolves each configurable field through the
// override chain: meter value, else class default, else system default.
// The class defaults may be nil (site has no class, or the class has no
// metering template); resolution always produces a complete configuration.
func ResolveEffectiveConfig(m *Meter, d *ClassDefaults) EffectiveConfig {
	cfg := EffectiveConfig{
		BillingMode: defaultBillingMode,
		BillTo:      defaultBillTo,
		Multiplier:  decimal.NewFromInt(1),
		AutoEmail:   defaultAutoEmail,
	}

	if d != nil {
		if d.BillingMode != nil {
			cfg.BillingMode = *d.BillingMode
		}
		if d.BillTo != nil {
			cfg.BillTo = *d.BillTo
		}
		if d.Multiplier != nil {
			cfg.Multiplier = *d.Multiplier
		}
		if d.RatePlanID != nil {
			cfg.RatePlanID = d.RatePlanID
		}
		if d.AutoEmail != nil {
			cfg.AutoEmail = *d.AutoEmail
		}
	}

	if m != nil {
		if m.BillingMode != nil {
			cfg.BillingMode = *m.BillingMode
		}
		if m.BillTo != nil {
			cfg.BillTo = *m.BillTo
		}
		if m.Multiplier != nil {
			cfg.Multiplier = *m.Multiplier
		}
		if m.RatePlanID != nil {
			cfg.RatePlanID = m.RatePlanID
		}
		if m.AutoEmail != nil {
			cfg.AutoEmail = *m.AutoEmail
		}
	}

	return cfg
}
