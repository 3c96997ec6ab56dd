package metering

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MeterFilter defines filtering options for meter queries
type MeterFilter struct {
	SiteID *uuid.UUID
	Type   *MeterType
	Active *bool
}

// MeterRepository persists meters. Implementations must provide the
// concurrency primitives the billing flow relies on: FindByIDForUpdate takes
// a per-meter lock for the remainder of the surrounding transaction, and
// UpdateWithVersion fails with ErrConcurrencyConflict when the meter was
// modified since it was loaded.
type MeterRepository interface {
	Save(ctx context.Context, meter *Meter) error
	FindByID(ctx context.Context, id uuid.UUID) (*Meter, error)
	// FindByIDForUpdate locks the meter row until the transaction in ctx
	// commits, serializing concurrent per-meter operations.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Meter, error)
	// FindActiveBySiteAndType returns the site's active meter of the given
	// type, or ErrNotFound.
	FindActiveBySiteAndType(ctx context.Context, siteID uuid.UUID, meterType MeterType) (*Meter, error)
	// FindAll returns meters matching the filter, ordered by site then type.
	FindAll(ctx context.Context, filter MeterFilter) ([]Meter, error)
	// FindActiveByBillingModes returns active meters whose effective billing
	// mode is one of the given modes. Used by the cycle/annual scheduler.
	FindActiveByBillingModes(ctx context.Context, modes []BillingMode) ([]Meter, error)
	// UpdateWithVersion saves the meter with an optimistic version check.
	UpdateWithVersion(ctx context.Context, meter *Meter) error
}

// ReadRange bounds a ledger query; nil ends are open
type ReadRange struct {
	From *time.Time
	To   *time.Time
}

// MeterReadRepository persists the append-only read ledger. Reads are never
// updated or deleted; corrections happen through compensating entries owned
// by a correction workflow outside this core.
type MeterReadRepository interface {
	Append(ctx context.Context, read *MeterRead) error
	FindByID(ctx context.Context, id uuid.UUID) (*MeterRead, error)
	// Latest returns the most recent read by (readAt, seq), or ErrNotFound
	// for a meter that has never been read.
	Latest(ctx context.Context, meterID uuid.UUID) (*MeterRead, error)
	// LatestTwo returns the two most recent reads, newest first. Returns
	// fewer entries when the ledger is shorter.
	LatestTwo(ctx context.Context, meterID uuid.UUID) ([]MeterRead, error)
	// Previous returns the read immediately preceding the given one in
	// (readAt, seq) order, or ErrNotFound when it is the first read.
	Previous(ctx context.Context, meterID uuid.UUID, before *MeterRead) (*MeterRead, error)
	// List returns reads within the range in ascending (readAt, seq) order.
	List(ctx context.Context, meterID uuid.UUID, rng ReadRange) ([]MeterRead, error)
	Count(ctx context.Context, meterID uuid.UUID) (int64, error)
}

// RatePlanRepository reads billing configuration. Plans are owned externally;
// this core never writes them.
type RatePlanRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*RatePlan, error)
	// FindEffectiveByType returns all plans of the type whose effective
	// window contains asOf. Tie-breaking happens in the domain layer.
	FindEffectiveByType(ctx context.Context, meterType MeterType, asOf time.Time) ([]*RatePlan, error)
}

// BillingEventRepository persists billing events. Save must enforce the
// (meterID, readID) uniqueness and return ErrAlreadyExists on a duplicate.
type BillingEventRepository interface {
	Save(ctx context.Context, event *BillingEvent) error
	FindByMeterAndRead(ctx context.Context, meterID, readID uuid.UUID) (*BillingEvent, error)
	FindByMeter(ctx context.Context, meterID uuid.UUID) ([]BillingEvent, error)
}
