package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MeterReadModel is the GORM model for the append-only read ledger. Rows are
// only ever inserted; seq is a per-meter insertion counter assigned under the
// meter's row lock and breaks ordering ties between equal timestamps.
type MeterReadModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	MeterID   uuid.UUID       `gorm:"type:uuid;not null;index:idx_reads_meter_order,priority:1;uniqueIndex:idx_reads_meter_seq,priority:1"`
	Seq       int64           `gorm:"not null;uniqueIndex:idx_reads_meter_seq,priority:2"`
	Value     decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	ReadAt    time.Time       `gorm:"not null;index:idx_reads_meter_order,priority:2"`
	Note      string          `gorm:"type:text"`
	CreatedAt time.Time       `gorm:"not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MeterReadModel) TableName() string {
	return "meter_reads"
}

// ToDomain converts the persistence model to a domain MeterRead
func (m *MeterReadModel) ToDomain() *metering.MeterRead {
	return &metering.MeterRead{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		MeterID: m.MeterID,
		Seq:     m.Seq,
		Value:   m.Value,
		ReadAt:  m.ReadAt,
		Note:    m.Note,
	}
}

// MeterReadModelFromDomain creates a model from a domain MeterRead
func MeterReadModelFromDomain(read *metering.MeterRead) *MeterReadModel {
	return &MeterReadModel{
		ID:        read.GetID(),
		MeterID:   read.MeterID,
		Seq:       read.Seq,
		Value:     read.Value,
		ReadAt:    read.ReadAt,
		Note:      read.Note,
		CreatedAt: read.GetCreatedAt(),
		UpdatedAt: read.GetUpdatedAt(),
	}
}

// MeterReadRepository implements metering.MeterReadRepository using GORM
type MeterReadRepository struct {
	db *gorm.DB
}

// NewMeterReadRepository creates a new meter read repository
func NewMeterReadRepository(db *gorm.DB) *MeterReadRepository {
	return &MeterReadRepository{db: db}
}

// Append inserts a ledger entry and assigns its per-meter sequence number.
// Callers must hold the meter's row lock; the max(seq)+1 assignment is only
// race-free under that lock.
func (r *MeterReadRepository) Append(ctx context.Context, read *metering.MeterRead) error {
	db := dbFromContext(ctx, r.db)

	var maxSeq int64
	err := db.Model(&MeterReadModel{}).
		Where("meter_id = ?", read.MeterID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error
	if err != nil {
		return err
	}
	read.Seq = maxSeq + 1

	if err := db.Create(MeterReadModelFromDomain(read)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrConcurrencyConflict
		}
		return err
	}
	return nil
}

// FindByID returns a read by ID
func (r *MeterReadRepository) FindByID(ctx context.Context, id uuid.UUID) (*metering.MeterRead, error) {
	var model MeterReadModel
	if err := dbFromContext(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Latest returns the most recent read by (readAt, seq)
func (r *MeterReadRepository) Latest(ctx context.Context, meterID uuid.UUID) (*metering.MeterRead, error) {
	var model MeterReadModel
	err := dbFromContext(ctx, r.db).
		Where("meter_id = ?", meterID).
		Order("read_at DESC, seq DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// LatestTwo returns the two most recent reads, newest first
func (r *MeterReadRepository) LatestTwo(ctx context.Context, meterID uuid.UUID) ([]metering.MeterRead, error) {
	var models []MeterReadModel
	err := dbFromContext(ctx, r.db).
		Where("meter_id = ?", meterID).
		Order("read_at DESC, seq DESC").
		Limit(2).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	reads := make([]metering.MeterRead, len(models))
	for i := range models {
		reads[i] = *models[i].ToDomain()
	}
	return reads, nil
}

// Previous returns the read immediately preceding the given one
func (r *MeterReadRepository) Previous(ctx context.Context, meterID uuid.UUID, before *metering.MeterRead) (*metering.MeterRead, error) {
	var model MeterReadModel
	err := dbFromContext(ctx, r.db).
		Where("meter_id = ?", meterID).
		Where("read_at < ? OR (read_at = ? AND seq < ?)", before.ReadAt, before.ReadAt, before.Seq).
		Order("read_at DESC, seq DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns reads within the range in ascending (readAt, seq) order
func (r *MeterReadRepository) List(ctx context.Context, meterID uuid.UUID, rng metering.ReadRange) ([]metering.MeterRead, error) {
	query := dbFromContext(ctx, r.db).Where("meter_id = ?", meterID)
	if rng.From != nil {
		query = query.Where("read_at >= ?", *rng.From)
	}
	if rng.To != nil {
		query = query.Where("read_at < ?", *rng.To)
	}

	var models []MeterReadModel
	if err := query.Order("read_at, seq").Find(&models).Error; err != nil {
		return nil, err
	}

	reads := make([]metering.MeterRead, len(models))
	for i := range models {
		reads[i] = *models[i].ToDomain()
	}
	return reads, nil
}

// Count returns the number of reads in the meter's ledger
func (r *MeterReadRepository) Count(ctx context.Context, meterID uuid.UUID) (int64, error) {
	var count int64
	err := dbFromContext(ctx, r.db).
		Model(&MeterReadModel{}).
		Where("meter_id = ?", meterID).
		Count(&count).Error
	return count, err
}
