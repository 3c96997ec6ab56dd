package persistence

import (
	"context"
	"time"

	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OutboxEntryModel is the GORM model for the transactional outbox
type OutboxEntryModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	EventType   string     `gorm:"type:varchar(255);not null"`
	AggregateID uuid.UUID  `gorm:"type:uuid;not null"`
	Payload     []byte     `gorm:"type:jsonb;not null"`
	Status      string     `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_outbox_status_created,priority:1"`
	RetryCount  int        `gorm:"not null;default:0"`
	MaxRetries  int        `gorm:"not null;default:5"`
	LastError   string     `gorm:"type:text"`
	NextRetryAt *time.Time `gorm:"index"`
	ProcessedAt *time.Time
	CreatedAt   time.Time `gorm:"not null;index:idx_outbox_status_created,priority:2"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OutboxEntryModel) TableName() string {
	return "outbox_entries"
}

// ToDomain converts the persistence model to a domain OutboxEntry
func (m *OutboxEntryModel) ToDomain() *shared.OutboxEntry {
	return &shared.OutboxEntry{
		ID:          m.ID,
		EventType:   m.EventType,
		AggregateID: m.AggregateID,
		Payload:     m.Payload,
		Status:      shared.OutboxStatus(m.Status),
		RetryCount:  m.RetryCount,
		MaxRetries:  m.MaxRetries,
		LastError:   m.LastError,
		NextRetryAt: m.NextRetryAt,
		ProcessedAt: m.ProcessedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// OutboxEntryModelFromDomain creates a model from a domain OutboxEntry
func OutboxEntryModelFromDomain(entry *shared.OutboxEntry) *OutboxEntryModel {
	return &OutboxEntryModel{
		ID:          entry.ID,
		EventType:   entry.EventType,
		AggregateID: entry.AggregateID,
		Payload:     entry.Payload,
		Status:      string(entry.Status),
		RetryCount:  entry.RetryCount,
		MaxRetries:  entry.MaxRetries,
		LastError:   entry.LastError,
		NextRetryAt: entry.NextRetryAt,
		ProcessedAt: entry.ProcessedAt,
		CreatedAt:   entry.CreatedAt,
		UpdatedAt:   entry.UpdatedAt,
	}
}

// OutboxRepository implements shared.OutboxRepository using GORM
type OutboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Save persists an outbox entry, joining the caller's transaction when one is
// open in ctx
func (r *OutboxRepository) Save(ctx context.Context, entry *shared.OutboxEntry) error {
	return dbFromContext(ctx, r.db).Create(OutboxEntryModelFromDomain(entry)).Error
}

// FindDue returns entries ready for delivery, oldest first
func (r *OutboxRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]shared.OutboxEntry, error) {
	var models []OutboxEntryModel
	err := dbFromContext(ctx, r.db).
		Where("status = ?", string(shared.OutboxStatusPending)).
		Or("status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)", string(shared.OutboxStatusFailed), now).
		Order("created_at").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]shared.OutboxEntry, len(models))
	for i := range models {
		entries[i] = *models[i].ToDomain()
	}
	return entries, nil
}

// Update persists delivery state changes for an entry
func (r *OutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	return dbFromContext(ctx, r.db).Save(OutboxEntryModelFromDomain(entry)).Error
}
