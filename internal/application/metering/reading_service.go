package metering

import (
	"context"
	"errors"
	"time"

	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AppendReadInput contains input for recording a reading
type AppendReadInput struct {
	MeterID uuid.UUID
	Value   decimal.Decimal
	ReadAt  time.Time
	Note    string
}

// AppendReadResultDTO is the outcome of recording a reading. Billing is set
// when the meter's effective billing mode is per-reading and the append
// produced a billing event in the same transaction.
type AppendReadResultDTO struct {
	Read    *metering.MeterRead `json:"read"`
	Billing *BillingResultDTO   `json:"billing,omitempty"`
}

// ReadingService maintains the append-only read ledger
type ReadingService struct {
	meterRepo metering.MeterRepository
	readRepo  metering.MeterReadRepository
	billing   *BillingService
	resolver  *ConfigResolver
	tx        shared.TransactionManager
	logger    *zap.Logger
}

// NewReadingService creates a new ReadingService
func NewReadingService(
	meterRepo metering.MeterRepository,
	readRepo metering.MeterReadRepository,
	billing *BillingService,
	resolver *ConfigResolver,
	tx shared.TransactionManager,
	logger *zap.Logger,
) *ReadingService {
	return &ReadingService{
		meterRepo: meterRepo,
		readRepo:  readRepo,
		billing:   billing,
		resolver:  resolver,
		tx:        tx,
		logger:    logger,
	}
}

// AppendRead records a reading on an active meter. The ledger is monotonic:
// a reading timestamped before the meter's latest read is rejected with
// ErrOutOfOrderRead (equal timestamps are allowed and ordered by insertion).
// When the meter bills per reading, the billing event commits in the same
// transaction as the read.
func (s *ReadingService) AppendRead(ctx context.Context, input AppendReadInput) (*AppendReadResultDTO, error) {
	var result *AppendReadResultDTO
	err := withConflictRetry(ctx, func(ctx context.Context) error {
		return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			meter, err := s.meterRepo.FindByIDForUpdate(ctx, input.MeterID)
			if err != nil {
				return err
			}
			if !meter.Active {
				return shared.NewDomainError("METER_INACTIVE", "Cannot record readings on a deactivated meter")
			}

			latest, err := s.readRepo.Latest(ctx, input.MeterID)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return err
			}
			if latest != nil && input.ReadAt.Before(latest.ReadAt) {
				return shared.ErrOutOfOrderRead
			}

			read, err := metering.NewMeterRead(input.MeterID, input.Value, input.ReadAt, input.Note)
			if err != nil {
				return err
			}
			if err := s.readRepo.Append(ctx, read); err != nil {
				return err
			}

			cfg, err := s.resolver.Resolve(ctx, meter)
			if err != nil {
				return err
			}

			result = &AppendReadResultDTO{Read: read}
			if cfg.BillingMode == metering.BillingModePerReading {
				billing, err := s.billing.bill(ctx, meter, read, cfg)
				if err != nil {
					// The first read of a per-reading meter has nothing to
					// bill against; the read itself still commits.
					if errors.Is(err, shared.ErrInsufficientReadHistory) {
						return nil
					}
					return err
				}
				result.Billing = billing
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("meter read appended",
		zap.String("meter_id", input.MeterID.String()),
		zap.String("read_id", result.Read.GetID().String()),
		zap.Time("read_at", input.ReadAt),
		zap.Bool("auto_billed", result.Billing != nil))
	return result, nil
}

// LatestRead returns the meter's most recent reading
func (s *ReadingService) LatestRead(ctx context.Context, meterID uuid.UUID) (*metering.MeterRead, error) {
	if _, err := s.meterRepo.FindByID(ctx, meterID); err != nil {
		return nil, err
	}
	return s.readRepo.Latest(ctx, meterID)
}

// ListReads returns the meter's readings within the range in ledger order
func (s *ReadingService) ListReads(ctx context.Context, meterID uuid.UUID, rng metering.ReadRange) ([]metering.MeterRead, error) {
	if _, err := s.meterRepo.FindByID(ctx, meterID); err != nil {
		return nil, err
	}
	return s.readRepo.List(ctx, meterID, rng)
}
