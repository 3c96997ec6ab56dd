package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/campreserve/backend/internal/application/metering"
	domainmetering "github.com/campreserve/backend/internal/domain/metering"
	"github.com/campreserve/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// MeterSource lists the meters the scheduler is responsible for
type MeterSource interface {
	FindActiveByBillingModes(ctx context.Context, modes []domainmetering.BillingMode) ([]domainmetering.Meter, error)
}

// BillingTrigger invokes billing for a meter's latest reading
type BillingTrigger interface {
	BillMeter(ctx context.Context, input metering.BillMeterInput) (*metering.BillingResultDTO, error)
}

// BillingSchedulerConfig holds the scheduler's tick and concurrency bounds
type BillingSchedulerConfig struct {
	TickInterval  time.Duration
	MaxConcurrent int
}

// DefaultBillingSchedulerConfig returns default configuration
func DefaultBillingSchedulerConfig() BillingSchedulerConfig {
	return BillingSchedulerConfig{
		TickInterval:  time.Hour,
		MaxConcurrent: 4,
	}
}

// BillingScheduler periodically bills every active cycle and annual meter.
// The schedule is best-effort: a missed or doubled tick is harmless because
// billing is idempotent per reading, and a meter with no new reading since
// its last bill is reported as already billed and skipped. Cadence comes from
// when readings are taken, not from the tick interval.
type BillingScheduler struct {
	meters  MeterSource
	billing BillingTrigger
	config  BillingSchedulerConfig
	logger  *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBillingScheduler creates a new billing scheduler
func NewBillingScheduler(meters MeterSource, billing BillingTrigger, config BillingSchedulerConfig, logger *zap.Logger) *BillingScheduler {
	return &BillingScheduler{
		meters:  meters,
		billing: billing,
		config:  config,
		logger:  logger,
	}
}

// Start begins the tick loop
func (s *BillingScheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.tickLoop(ctx)

	s.logger.Info("billing scheduler started",
		zap.Duration("tick_interval", s.config.TickInterval),
		zap.Int("max_concurrent", s.config.MaxConcurrent),
	)
	return nil
}

// Stop gracefully stops the scheduler, waiting for in-flight billing jobs
func (s *BillingScheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("billing scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *BillingScheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce bills every scheduled meter's latest unbilled reading. Exposed so
// tests and operator tooling can trigger a pass without the tick loop.
func (s *BillingScheduler) RunOnce(ctx context.Context) {
	meters, err := s.meters.FindActiveByBillingModes(ctx, []domainmetering.BillingMode{
		domainmetering.BillingModeCycle,
		domainmetering.BillingModeAnnual,
	})
	if err != nil {
		s.logger.Error("failed to list scheduled meters", zap.Error(err))
		return
	}
	if len(meters) == 0 {
		return
	}

	sem := make(chan struct{}, s.config.MaxConcurrent)
	var wg sync.WaitGroup
	var billed, skipped, failed int64
	var mu sync.Mutex

	for i := range meters {
		meter := &meters[i]

		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := s.billMeter(ctx, meter)
			mu.Lock()
			switch outcome {
			case outcomeBilled:
				billed++
			case outcomeSkipped:
				skipped++
			case outcomeFailed:
				failed++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if billed > 0 || failed > 0 {
		s.logger.Info("billing pass completed",
			zap.Int("meters", len(meters)),
			zap.Int64("billed", billed),
			zap.Int64("skipped", skipped),
			zap.Int64("failed", failed),
		)
	}
}

type billingOutcome int

const (
	outcomeBilled billingOutcome = iota
	outcomeSkipped
	outcomeFailed
)

func (s *BillingScheduler) billMeter(ctx context.Context, meter *domainmetering.Meter) billingOutcome {
	result, err := s.billing.BillMeter(ctx, metering.BillMeterInput{MeterID: meter.GetID()})
	if err != nil {
		// Meters without enough reads or an applicable plan are expected on a
		// best-effort schedule; they stay in the pool for the next tick.
		if errors.Is(err, shared.ErrInsufficientReadHistory) ||
			errors.Is(err, shared.ErrNotFound) ||
			errors.Is(err, shared.ErrNoRatePlanFound) ||
			errors.Is(err, shared.ErrRatePlanInactive) {
			s.logger.Debug("meter not billable yet",
				zap.String("meter_id", meter.GetID().String()),
				zap.Error(err),
			)
			return outcomeSkipped
		}
		s.logger.Error("scheduled billing failed",
			zap.String("meter_id", meter.GetID().String()),
			zap.Error(err),
		)
		return outcomeFailed
	}

	if result.AlreadyBilled {
		return outcomeSkipped
	}

	s.logger.Info("scheduled billing produced an invoice",
		zap.String("meter_id", meter.GetID().String()),
		zap.String("event_id", result.Event.GetID().String()),
		zap.Int64("amount_cents", result.Event.AmountCents),
	)
	return outcomeBilled
}
