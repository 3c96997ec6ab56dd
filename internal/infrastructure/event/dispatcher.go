package event

import (
	"context"
	"sync"
	"time"

	"github.com/campreserve/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// DispatcherConfig holds configuration for the outbox dispatcher
type DispatcherConfig struct {
	BatchSize    int
	PollInterval time.Duration
}

// DefaultDispatcherConfig returns default configuration
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BatchSize:    100,
		PollInterval: 5 * time.Second,
	}
}

// Dispatcher drains the transactional outbox in the background: it polls for
// due entries, hands them to the publisher, and records the outcome. Delivery
// is at-least-once; consumers must dedupe on the message id.
type Dispatcher struct {
	repo      shared.OutboxRepository
	publisher Publisher
	config    DispatcherConfig
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a new outbox dispatcher
func NewDispatcher(repo shared.OutboxRepository, publisher Publisher, config DispatcherConfig, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger,
	}
}

// Start begins background polling
func (d *Dispatcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go d.pollLoop(ctx)

	d.logger.Info("outbox dispatcher started",
		zap.Int("batch_size", d.config.BatchSize),
		zap.Duration("poll_interval", d.config.PollInterval),
	)
	return nil
}

// Stop gracefully stops the dispatcher, waiting for the in-flight batch
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("outbox dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) pollLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.DispatchDue(ctx)
		}
	}
}

// DispatchDue delivers one batch of due entries. Exposed so tests and
// one-shot tooling can drive the dispatcher without the polling loop.
func (d *Dispatcher) DispatchDue(ctx context.Context) {
	entries, err := d.repo.FindDue(ctx, time.Now(), d.config.BatchSize)
	if err != nil {
		d.logger.Error("failed to find due outbox entries", zap.Error(err))
		return
	}

	for i := range entries {
		d.dispatchEntry(ctx, &entries[i])
	}
}

func (d *Dispatcher) dispatchEntry(ctx context.Context, entry *shared.OutboxEntry) {
	if err := d.publisher.Publish(ctx, entry); err != nil {
		d.logger.Error("failed to publish outbox entry",
			zap.String("event_id", entry.ID.String()),
			zap.String("event_type", entry.EventType),
			zap.Error(err),
		)
		entry.MarkFailed(err.Error())
		if entry.Status == shared.OutboxStatusDead {
			d.logger.Warn("outbox entry exhausted its retries",
				zap.String("event_id", entry.ID.String()),
				zap.String("event_type", entry.EventType),
				zap.Int("retry_count", entry.RetryCount),
				zap.String("last_error", entry.LastError),
			)
		}
		if updateErr := d.repo.Update(ctx, entry); updateErr != nil {
			d.logger.Error("failed to update outbox entry", zap.Error(updateErr))
		}
		return
	}

	entry.MarkSent()
	if err := d.repo.Update(ctx, entry); err != nil {
		d.logger.Error("failed to mark outbox entry as sent",
			zap.String("event_id", entry.ID.String()),
			zap.Error(err),
		)
		return
	}

	d.logger.Debug("outbox entry dispatched",
		zap.String("event_id", entry.ID.String()),
		zap.String("event_type", entry.EventType),
	)
}
