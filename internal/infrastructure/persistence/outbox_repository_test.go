package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(&OutboxEntryModel{})
	require.NoError(t, err)

	return db
}

func TestOutboxRepository_FindDue(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewOutboxRepository(db)
	ctx := context.Background()
	now := time.Now()

	newEntry := func(created time.Time) *shared.OutboxEntry {
		entry := shared.NewOutboxEntry("metering.invoice.issued", uuid.New(), []byte(`{}`))
		entry.CreatedAt = created
		entry.UpdatedAt = created
		return entry
	}

	pending := newEntry(now.Add(-3 * time.Hour))
	require.NoError(t, repo.Save(ctx, pending))

	sent := newEntry(now.Add(-2 * time.Hour))
	sent.MarkSent()
	require.NoError(t, repo.Save(ctx, sent))

	retryDue := newEntry(now.Add(-1 * time.Hour))
	retryDue.Status = shared.OutboxStatusFailed
	retryDue.RetryCount = 1
	past := now.Add(-time.Minute)
	retryDue.NextRetryAt = &past
	require.NoError(t, repo.Save(ctx, retryDue))

	retryLater := newEntry(now.Add(-30 * time.Minute))
	retryLater.Status = shared.OutboxStatusFailed
	retryLater.RetryCount = 1
	future := now.Add(time.Hour)
	retryLater.NextRetryAt = &future
	require.NoError(t, repo.Save(ctx, retryLater))

	dead := newEntry(now.Add(-15 * time.Minute))
	dead.Status = shared.OutboxStatusDead
	require.NoError(t, repo.Save(ctx, dead))

	t.Run("returns pending and due-failed entries oldest first", func(t *testing.T) {
		due, err := repo.FindDue(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, pending.ID, due[0].ID)
		assert.Equal(t, retryDue.ID, due[1].ID)
	})

	t.Run("respects the batch limit", func(t *testing.T) {
		due, err := repo.FindDue(ctx, now, 1)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, pending.ID, due[0].ID)
	})
}

func TestOutboxRepository_Update(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewOutboxRepository(db)
	ctx := context.Background()

	entry := shared.NewOutboxEntry("metering.invoice.issued", uuid.New(), []byte(`{"amount_cents":750}`))
	require.NoError(t, repo.Save(ctx, entry))

	t.Run("persists a delivery failure with its retry schedule", func(t *testing.T) {
		entry.MarkFailed("connection refused")
		require.NoError(t, repo.Update(ctx, entry))

		due, err := repo.FindDue(ctx, time.Now().Add(2*time.Second), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, shared.OutboxStatusFailed, due[0].Status)
		assert.Equal(t, 1, due[0].RetryCount)
		assert.Equal(t, "connection refused", due[0].LastError)
		require.NotNil(t, due[0].NextRetryAt)
	})

	t.Run("sent entries leave the due set", func(t *testing.T) {
		entry.MarkSent()
		require.NoError(t, repo.Update(ctx, entry))

		due, err := repo.FindDue(ctx, time.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, due)
	})
}
