package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the status of an outbox entry
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

// Default retry configuration
const (
	DefaultMaxRetries  = 5
	DefaultBaseBackoff = time.Second
)

// OutboxEntry is a message persisted in the same transaction as the state
// change that produced it, picked up later by a dispatcher for delivery to
// the message broker.
type OutboxEntry struct {
	ID          uuid.UUID
	EventType   string
	AggregateID uuid.UUID
	Payload     []byte
	Status      OutboxStatus
	RetryCount  int
	MaxRetries  int
	LastError   string
	NextRetryAt *time.Time
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewOutboxEntry creates a pending outbox entry
func NewOutboxEntry(eventType string, aggregateID uuid.UUID, payload []byte) *OutboxEntry {
	now := time.Now()
	return &OutboxEntry{
		ID:          uuid.New(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     payload,
		Status:      OutboxStatusPending,
		MaxRetries:  DefaultMaxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkSent marks the entry as successfully delivered
func (e *OutboxEntry) MarkSent() {
	now := time.Now()
	e.Status = OutboxStatusSent
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkFailed records a delivery failure and schedules the next retry with
// exponential backoff. Once retries are exhausted the entry goes dead and is
// left for operator inspection.
func (e *OutboxEntry) MarkFailed(reason string) {
	now := time.Now()
	e.RetryCount++
	e.LastError = reason
	e.UpdatedAt = now

	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		return
	}

	backoff := DefaultBaseBackoff * time.Duration(1<<uint(e.RetryCount-1))
	next := now.Add(backoff)
	e.Status = OutboxStatusFailed
	e.NextRetryAt = &next
}

// OutboxRepository persists outbox entries. Save must participate in the
// caller's transaction so the entry and the state change commit atomically.
type OutboxRepository interface {
	Save(ctx context.Context, entry *OutboxEntry) error
	// FindDue returns at most limit entries ready for delivery, oldest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
}

// IsDue reports whether the entry should be attempted now
func (e *OutboxEntry) IsDue(now time.Time) bool {
	switch e.Status {
	case OutboxStatusPending:
		return true
	case OutboxStatusFailed:
		return e.NextRetryAt == nil || !now.Before(*e.NextRetryAt)
	default:
		return false
	}
}
