package metering

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EventTypeInvoiceIssued is the outbox event type for invoice notifications
const EventTypeInvoiceIssued = "metering.invoice.issued"

// BillMeterInput contains input for billing a reading. A nil ReadID bills the
// meter's latest read.
type BillMeterInput struct {
	MeterID uuid.UUID
	ReadID  *uuid.UUID
}

// BillingResultDTO is the outcome of a billing trigger. AlreadyBilled means
// the reading had a billing event before this call; the existing event is
// returned and the trigger counts as a success.
type BillingResultDTO struct {
	Event         *metering.BillingEvent `json:"event"`
	AlreadyBilled bool                   `json:"already_billed"`
}

// BillingPreviewDTO is a dry-run billing computation. Nothing is persisted.
type BillingPreviewDTO struct {
	MeterID       uuid.UUID       `json:"meter_id"`
	ReadID        uuid.UUID       `json:"read_id"`
	PreviousID    uuid.UUID       `json:"previous_read_id"`
	Usage         decimal.Decimal `json:"usage"`
	BilledUsage   decimal.Decimal `json:"billed_usage"`
	AmountCents   int64           `json:"amount_cents"`
	RatePlanID    uuid.UUID       `json:"rate_plan_id"`
	RatePlanName  string          `json:"rate_plan_name"`
	AlreadyBilled bool            `json:"already_billed"`
}

// invoiceIssuedPayload is the message body for invoice notifications. The
// notification worker downstream renders and emails the invoice; this core
// only emits the facts.
type invoiceIssuedPayload struct {
	BillingEventID uuid.UUID       `json:"billing_event_id"`
	MeterID        uuid.UUID       `json:"meter_id"`
	SiteID         uuid.UUID       `json:"site_id"`
	MeterType      string          `json:"meter_type"`
	BillTo         string          `json:"bill_to"`
	Usage          decimal.Decimal `json:"usage"`
	BilledUsage    decimal.Decimal `json:"billed_usage"`
	AmountCents    int64           `json:"amount_cents"`
	RatePlanID     uuid.UUID       `json:"rate_plan_id"`
	BilledAt       time.Time       `json:"billed_at"`
}

// BillingService turns readings into billing events. All mutating paths run
// inside a transaction holding the meter's row lock, so concurrent triggers
// for one meter serialize and the (meter, read) idempotency check is race
// free.
type BillingService struct {
	meterRepo   metering.MeterRepository
	readRepo    metering.MeterReadRepository
	billingRepo metering.BillingEventRepository
	ratePlans   *RatePlanService
	resolver    *ConfigResolver
	outboxRepo  shared.OutboxRepository
	tx          shared.TransactionManager
	logger      *zap.Logger
}

// NewBillingService creates a new BillingService
func NewBillingService(
	meterRepo metering.MeterRepository,
	readRepo metering.MeterReadRepository,
	billingRepo metering.BillingEventRepository,
	ratePlans *RatePlanService,
	resolver *ConfigResolver,
	outboxRepo shared.OutboxRepository,
	tx shared.TransactionManager,
	logger *zap.Logger,
) *BillingService {
	return &BillingService{
		meterRepo:   meterRepo,
		readRepo:    readRepo,
		billingRepo: billingRepo,
		ratePlans:   ratePlans,
		resolver:    resolver,
		outboxRepo:  outboxRepo,
		tx:          tx,
		logger:      logger,
	}
}

// BillMeter bills a reading. The operation is idempotent on (meter, read):
// repeating a trigger returns the existing event with AlreadyBilled set
// instead of double charging. Serialization races are retried with bounded
// backoff.
func (s *BillingService) BillMeter(ctx context.Context, input BillMeterInput) (*BillingResultDTO, error) {
	var result *BillingResultDTO
	err := withConflictRetry(ctx, func(ctx context.Context) error {
		return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			meter, err := s.meterRepo.FindByIDForUpdate(ctx, input.MeterID)
			if err != nil {
				return err
			}

			read, err := s.targetRead(ctx, meter, input.ReadID)
			if err != nil {
				return err
			}

			cfg, err := s.resolver.Resolve(ctx, meter)
			if err != nil {
				return err
			}

			result, err = s.bill(ctx, meter, read, cfg)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Preview computes what billing the meter's latest read would charge, without
// persisting anything.
func (s *BillingService) Preview(ctx context.Context, meterID uuid.UUID) (*BillingPreviewDTO, error) {
	meter, err := s.meterRepo.FindByID(ctx, meterID)
	if err != nil {
		return nil, err
	}

	reads, err := s.readRepo.LatestTwo(ctx, meterID)
	if err != nil {
		return nil, err
	}
	if len(reads) < 2 {
		return nil, shared.ErrInsufficientReadHistory
	}
	read, previous := &reads[0], &reads[1]

	cfg, err := s.resolver.Resolve(ctx, meter)
	if err != nil {
		return nil, err
	}

	plan, err := s.ratePlans.ResolveForConfig(ctx, cfg, meter.Type, read.ReadAt)
	if err != nil {
		return nil, err
	}

	usage := metering.ComputeUsage(previous.Value, read.Value, cfg.Multiplier)
	charge, err := metering.ComputeCharge(usage.BilledUsage, plan)
	if err != nil {
		return nil, err
	}

	alreadyBilled := false
	if _, err := s.billingRepo.FindByMeterAndRead(ctx, meterID, read.GetID()); err == nil {
		alreadyBilled = true
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	return &BillingPreviewDTO{
		MeterID:       meterID,
		ReadID:        read.GetID(),
		PreviousID:    previous.GetID(),
		Usage:         usage.Usage,
		BilledUsage:   usage.BilledUsage,
		AmountCents:   charge.AmountCents,
		RatePlanID:    plan.GetID(),
		RatePlanName:  plan.Name,
		AlreadyBilled: alreadyBilled,
	}, nil
}

// ListBillingEvents returns the meter's billing history, newest first
func (s *BillingService) ListBillingEvents(ctx context.Context, meterID uuid.UUID) ([]metering.BillingEvent, error) {
	if _, err := s.meterRepo.FindByID(ctx, meterID); err != nil {
		return nil, err
	}
	return s.billingRepo.FindByMeter(ctx, meterID)
}

// bill runs the billing pipeline for a read. The caller must hold the
// meter's row lock within the transaction in ctx; ReadingService reuses this
// for per-reading auto billing so the read and its bill commit together.
func (s *BillingService) bill(ctx context.Context, meter *metering.Meter, read *metering.MeterRead, cfg metering.EffectiveConfig) (*BillingResultDTO, error) {
	existing, err := s.billingRepo.FindByMeterAndRead(ctx, meter.GetID(), read.GetID())
	if err == nil {
		return &BillingResultDTO{Event: existing, AlreadyBilled: true}, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	previous, err := s.readRepo.Previous(ctx, meter.GetID(), read)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInsufficientReadHistory
		}
		return nil, err
	}

	plan, err := s.ratePlans.ResolveForConfig(ctx, cfg, meter.Type, read.ReadAt)
	if err != nil {
		return nil, err
	}

	usage := metering.ComputeUsage(previous.Value, read.Value, cfg.Multiplier)
	if read.Value.LessThan(previous.Value) {
		s.logger.Warn("counter decreased between reads, usage clamped to zero",
			zap.String("meter_id", meter.GetID().String()),
			zap.String("previous_value", previous.Value.String()),
			zap.String("new_value", read.Value.String()))
	}

	charge, err := metering.ComputeCharge(usage.BilledUsage, plan)
	if err != nil {
		return nil, err
	}

	event := metering.NewBillingEvent(meter.GetID(), read.GetID(), previous.GetID(), usage, charge, plan.GetID())
	if err := s.billingRepo.Save(ctx, event); err != nil {
		// Unique (meter, read) constraint: another trigger won the race.
		if errors.Is(err, shared.ErrAlreadyExists) {
			existing, findErr := s.billingRepo.FindByMeterAndRead(ctx, meter.GetID(), read.GetID())
			if findErr != nil {
				return nil, findErr
			}
			return &BillingResultDTO{Event: existing, AlreadyBilled: true}, nil
		}
		return nil, err
	}

	if cfg.AutoEmail {
		if err := s.enqueueInvoiceNotification(ctx, meter, cfg, event); err != nil {
			return nil, err
		}
	}

	s.logger.Info("billing event created",
		zap.String("meter_id", meter.GetID().String()),
		zap.String("read_id", read.GetID().String()),
		zap.Int64("amount_cents", event.AmountCents),
		zap.String("rate_plan_id", plan.GetID().String()))

	return &BillingResultDTO{Event: event}, nil
}

func (s *BillingService) targetRead(ctx context.Context, meter *metering.Meter, readID *uuid.UUID) (*metering.MeterRead, error) {
	if readID == nil {
		read, err := s.readRepo.Latest(ctx, meter.GetID())
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, shared.ErrInsufficientReadHistory
			}
			return nil, err
		}
		return read, nil
	}

	read, err := s.readRepo.FindByID(ctx, *readID)
	if err != nil {
		return nil, err
	}
	if read.MeterID != meter.GetID() {
		return nil, shared.NewDomainError("READ_METER_MISMATCH", "Reading does not belong to this meter")
	}
	return read, nil
}

func (s *BillingService) enqueueInvoiceNotification(ctx context.Context, meter *metering.Meter, cfg metering.EffectiveConfig, event *metering.BillingEvent) error {
	payload, err := json.Marshal(invoiceIssuedPayload{
		BillingEventID: event.GetID(),
		MeterID:        meter.GetID(),
		SiteID:         meter.SiteID,
		MeterType:      meter.Type.String(),
		BillTo:         string(cfg.BillTo),
		Usage:          event.Usage,
		BilledUsage:    event.BilledUsage,
		AmountCents:    event.AmountCents,
		RatePlanID:     event.RatePlanID,
		BilledAt:       event.GetCreatedAt(),
	})
	if err != nil {
		return err
	}

	entry := shared.NewOutboxEntry(EventTypeInvoiceIssued, event.GetID(), payload)
	return s.outboxRepo.Save(ctx, entry)
}
