package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appmetering "github.com/campreserve/backend/internal/application/metering"
	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockMeterSource struct {
	mock.Mock
}

func (m *mockMeterSource) FindActiveByBillingModes(ctx context.Context, modes []metering.BillingMode) ([]metering.Meter, error) {
	args := m.Called(ctx, modes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]metering.Meter), args.Error(1)
}

type mockBillingTrigger struct {
	mock.Mock
}

func (m *mockBillingTrigger) BillMeter(ctx context.Context, input appmetering.BillMeterInput) (*appmetering.BillingResultDTO, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appmetering.BillingResultDTO), args.Error(1)
}

func newScheduledMeter(t *testing.T) metering.Meter {
	t.Helper()

	mode := metering.BillingModeCycle
	meter, err := metering.NewMeter(uuid.New(), metering.MeterTypePower, metering.MeterConfig{BillingMode: &mode})
	require.NoError(t, err)
	return *meter
}

func billedResult() *appmetering.BillingResultDTO {
	event := metering.NewBillingEvent(uuid.New(), uuid.New(), uuid.New(),
		metering.UsageResult{}, metering.ChargeResult{AmountCents: 750}, uuid.New())
	return &appmetering.BillingResultDTO{Event: event}
}

func TestBillingScheduler_RunOnce(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	config := DefaultBillingSchedulerConfig()

	t.Run("bills every cycle and annual meter", func(t *testing.T) {
		source := new(mockMeterSource)
		trigger := new(mockBillingTrigger)
		meters := []metering.Meter{newScheduledMeter(t), newScheduledMeter(t), newScheduledMeter(t)}

		source.On("FindActiveByBillingModes", ctx, []metering.BillingMode{
			metering.BillingModeCycle, metering.BillingModeAnnual,
		}).Return(meters, nil)
		trigger.On("BillMeter", ctx, mock.Anything).Return(billedResult(), nil)

		NewBillingScheduler(source, trigger, config, logger).RunOnce(ctx)

		trigger.AssertNumberOfCalls(t, "BillMeter", 3)
		for _, meter := range meters {
			trigger.AssertCalled(t, "BillMeter", ctx, appmetering.BillMeterInput{MeterID: meter.GetID()})
		}
	})

	t.Run("already billed meters are skipped quietly", func(t *testing.T) {
		source := new(mockMeterSource)
		trigger := new(mockBillingTrigger)
		meter := newScheduledMeter(t)

		source.On("FindActiveByBillingModes", ctx, mock.Anything).Return([]metering.Meter{meter}, nil)
		trigger.On("BillMeter", ctx, mock.Anything).
			Return(&appmetering.BillingResultDTO{Event: billedResult().Event, AlreadyBilled: true}, nil)

		NewBillingScheduler(source, trigger, config, logger).RunOnce(ctx)

		trigger.AssertNumberOfCalls(t, "BillMeter", 1)
	})

	t.Run("meters without read history stay in the pool", func(t *testing.T) {
		source := new(mockMeterSource)
		trigger := new(mockBillingTrigger)
		sparse := newScheduledMeter(t)
		ready := newScheduledMeter(t)

		source.On("FindActiveByBillingModes", ctx, mock.Anything).Return([]metering.Meter{sparse, ready}, nil)
		trigger.On("BillMeter", ctx, appmetering.BillMeterInput{MeterID: sparse.GetID()}).
			Return(nil, shared.ErrInsufficientReadHistory)
		trigger.On("BillMeter", ctx, appmetering.BillMeterInput{MeterID: ready.GetID()}).
			Return(billedResult(), nil)

		NewBillingScheduler(source, trigger, config, logger).RunOnce(ctx)

		trigger.AssertNumberOfCalls(t, "BillMeter", 2)
	})

	t.Run("one failing meter does not stop the pass", func(t *testing.T) {
		source := new(mockMeterSource)
		trigger := new(mockBillingTrigger)
		broken := newScheduledMeter(t)
		healthy := newScheduledMeter(t)

		source.On("FindActiveByBillingModes", ctx, mock.Anything).Return([]metering.Meter{broken, healthy}, nil)
		trigger.On("BillMeter", ctx, appmetering.BillMeterInput{MeterID: broken.GetID()}).
			Return(nil, errors.New("database unavailable"))
		trigger.On("BillMeter", ctx, appmetering.BillMeterInput{MeterID: healthy.GetID()}).
			Return(billedResult(), nil)

		NewBillingScheduler(source, trigger, config, logger).RunOnce(ctx)

		trigger.AssertNumberOfCalls(t, "BillMeter", 2)
	})

	t.Run("listing failure skips the pass", func(t *testing.T) {
		source := new(mockMeterSource)
		trigger := new(mockBillingTrigger)

		source.On("FindActiveByBillingModes", ctx, mock.Anything).Return(nil, errors.New("connection reset"))

		NewBillingScheduler(source, trigger, config, logger).RunOnce(ctx)

		trigger.AssertNotCalled(t, "BillMeter")
	})

	t.Run("respects the concurrency bound", func(t *testing.T) {
		source := new(mockMeterSource)
		trigger := new(mockBillingTrigger)

		meters := make([]metering.Meter, 8)
		for i := range meters {
			meters[i] = newScheduledMeter(t)
		}
		source.On("FindActiveByBillingModes", ctx, mock.Anything).Return(meters, nil)

		var mu sync.Mutex
		inFlight, peak := 0, 0
		trigger.On("BillMeter", ctx, mock.Anything).Run(func(args mock.Arguments) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
		}).Return(billedResult(), nil)

		NewBillingScheduler(source, trigger, BillingSchedulerConfig{
			TickInterval:  time.Hour,
			MaxConcurrent: 2,
		}, logger).RunOnce(ctx)

		trigger.AssertNumberOfCalls(t, "BillMeter", 8)
		assert.LessOrEqual(t, peak, 2)
	})
}

func TestBillingScheduler_StartStop(t *testing.T) {
	source := new(mockMeterSource)
	trigger := new(mockBillingTrigger)
	source.On("FindActiveByBillingModes", mock.Anything, mock.Anything).Return([]metering.Meter{}, nil).Maybe()

	sched := NewBillingScheduler(source, trigger, BillingSchedulerConfig{
		TickInterval:  10 * time.Millisecond,
		MaxConcurrent: 2,
	}, zap.NewNop())

	require.NoError(t, sched.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, sched.Stop(stopCtx))
}
