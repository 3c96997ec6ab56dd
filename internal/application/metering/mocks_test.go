package metering

import (
	"context"
	"time"

	"github.com/campreserve/backend/internal/domain/directory"
	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock implementations shared by the service tests

type mockMeterRepository struct {
	mock.Mock
}

func (m *mockMeterRepository) Save(ctx context.Context, meter *metering.Meter) error {
	args := m.Called(ctx, meter)
	return args.Error(0)
}

func (m *mockMeterRepository) FindByID(ctx context.Context, id uuid.UUID) (*metering.Meter, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.Meter), args.Error(1)
}

func (m *mockMeterRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*metering.Meter, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.Meter), args.Error(1)
}

func (m *mockMeterRepository) FindActiveBySiteAndType(ctx context.Context, siteID uuid.UUID, meterType metering.MeterType) (*metering.Meter, error) {
	args := m.Called(ctx, siteID, meterType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.Meter), args.Error(1)
}

func (m *mockMeterRepository) FindAll(ctx context.Context, filter metering.MeterFilter) ([]metering.Meter, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]metering.Meter), args.Error(1)
}

func (m *mockMeterRepository) FindActiveByBillingModes(ctx context.Context, modes []metering.BillingMode) ([]metering.Meter, error) {
	args := m.Called(ctx, modes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]metering.Meter), args.Error(1)
}

func (m *mockMeterRepository) UpdateWithVersion(ctx context.Context, meter *metering.Meter) error {
	args := m.Called(ctx, meter)
	return args.Error(0)
}

type mockMeterReadRepository struct {
	mock.Mock
}

func (m *mockMeterReadRepository) Append(ctx context.Context, read *metering.MeterRead) error {
	args := m.Called(ctx, read)
	return args.Error(0)
}

func (m *mockMeterReadRepository) FindByID(ctx context.Context, id uuid.UUID) (*metering.MeterRead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.MeterRead), args.Error(1)
}

func (m *mockMeterReadRepository) Latest(ctx context.Context, meterID uuid.UUID) (*metering.MeterRead, error) {
	args := m.Called(ctx, meterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.MeterRead), args.Error(1)
}

func (m *mockMeterReadRepository) LatestTwo(ctx context.Context, meterID uuid.UUID) ([]metering.MeterRead, error) {
	args := m.Called(ctx, meterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]metering.MeterRead), args.Error(1)
}

func (m *mockMeterReadRepository) Previous(ctx context.Context, meterID uuid.UUID, before *metering.MeterRead) (*metering.MeterRead, error) {
	args := m.Called(ctx, meterID, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.MeterRead), args.Error(1)
}

func (m *mockMeterReadRepository) List(ctx context.Context, meterID uuid.UUID, rng metering.ReadRange) ([]metering.MeterRead, error) {
	args := m.Called(ctx, meterID, rng)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]metering.MeterRead), args.Error(1)
}

func (m *mockMeterReadRepository) Count(ctx context.Context, meterID uuid.UUID) (int64, error) {
	args := m.Called(ctx, meterID)
	return args.Get(0).(int64), args.Error(1)
}

type mockRatePlanRepository struct {
	mock.Mock
}

func (m *mockRatePlanRepository) FindByID(ctx context.Context, id uuid.UUID) (*metering.RatePlan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.RatePlan), args.Error(1)
}

func (m *mockRatePlanRepository) FindEffectiveByType(ctx context.Context, meterType metering.MeterType, asOf time.Time) ([]*metering.RatePlan, error) {
	args := m.Called(ctx, meterType, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*metering.RatePlan), args.Error(1)
}

type mockBillingEventRepository struct {
	mock.Mock
}

func (m *mockBillingEventRepository) Save(ctx context.Context, event *metering.BillingEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockBillingEventRepository) FindByMeterAndRead(ctx context.Context, meterID, readID uuid.UUID) (*metering.BillingEvent, error) {
	args := m.Called(ctx, meterID, readID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.BillingEvent), args.Error(1)
}

func (m *mockBillingEventRepository) FindByMeter(ctx context.Context, meterID uuid.UUID) ([]metering.BillingEvent, error) {
	args := m.Called(ctx, meterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]metering.BillingEvent), args.Error(1)
}

type mockOutboxRepository struct {
	mock.Mock
}

func (m *mockOutboxRepository) Save(ctx context.Context, entry *shared.OutboxEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockOutboxRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]shared.OutboxEntry, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]shared.OutboxEntry), args.Error(1)
}

func (m *mockOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

type mockSiteDirectory struct {
	mock.Mock
}

func (m *mockSiteDirectory) FindSite(ctx context.Context, id uuid.UUID) (*directory.Site, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*directory.Site), args.Error(1)
}

func (m *mockSiteDirectory) FindSiteClass(ctx context.Context, id uuid.UUID) (*directory.SiteClass, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*directory.SiteClass), args.Error(1)
}

func (m *mockSiteDirectory) ListSitesByClass(ctx context.Context, siteClassID uuid.UUID) ([]directory.Site, error) {
	args := m.Called(ctx, siteClassID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]directory.Site), args.Error(1)
}

// stubTxManager runs the function directly; service tests assert behavior,
// not transaction plumbing.
type stubTxManager struct{}

func (stubTxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
