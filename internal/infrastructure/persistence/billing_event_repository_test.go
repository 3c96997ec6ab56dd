package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupBillingEventTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(&BillingEventModel{})
	require.NoError(t, err)

	return db
}

func newTestBillingEvent(meterID, readID uuid.UUID) *metering.BillingEvent {
	usage := metering.UsageResult{
		Usage:       decimal.RequireFromString("50"),
		BilledUsage: decimal.RequireFromString("50"),
	}
	charge := metering.ChargeResult{AmountCents: 750, AppliedRateCents: 15}
	return metering.NewBillingEvent(meterID, readID, uuid.New(), usage, charge, uuid.New())
}

func TestBillingEventRepository_Save(t *testing.T) {
	db := setupBillingEventTestDB(t)
	repo := NewBillingEventRepository(db)
	ctx := context.Background()

	t.Run("persists and round-trips an event", func(t *testing.T) {
		event := newTestBillingEvent(uuid.New(), uuid.New())
		require.NoError(t, repo.Save(ctx, event))

		found, err := repo.FindByMeterAndRead(ctx, event.MeterID, event.ReadID)
		require.NoError(t, err)
		assert.Equal(t, event.GetID(), found.GetID())
		assert.Equal(t, event.PreviousReadID, found.PreviousReadID)
		assert.True(t, event.Usage.Equal(found.Usage))
		assert.True(t, event.BilledUsage.Equal(found.BilledUsage))
		assert.Equal(t, int64(750), found.AmountCents)
		assert.Equal(t, event.RatePlanID, found.RatePlanID)
	})

	t.Run("second event for the same reading hits the unique constraint", func(t *testing.T) {
		meterID := uuid.New()
		readID := uuid.New()
		require.NoError(t, repo.Save(ctx, newTestBillingEvent(meterID, readID)))

		err := repo.Save(ctx, newTestBillingEvent(meterID, readID))
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("same read id under a different meter is allowed", func(t *testing.T) {
		readID := uuid.New()
		require.NoError(t, repo.Save(ctx, newTestBillingEvent(uuid.New(), readID)))
		require.NoError(t, repo.Save(ctx, newTestBillingEvent(uuid.New(), readID)))
	})
}

func TestBillingEventRepository_FindByMeterAndRead(t *testing.T) {
	db := setupBillingEventTestDB(t)
	repo := NewBillingEventRepository(db)
	ctx := context.Background()

	_, err := repo.FindByMeterAndRead(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestBillingEventRepository_FindByMeter(t *testing.T) {
	db := setupBillingEventTestDB(t)
	repo := NewBillingEventRepository(db)
	ctx := context.Background()
	meterID := uuid.New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var events []*metering.BillingEvent
	for i := 0; i < 3; i++ {
		event := newTestBillingEvent(meterID, uuid.New())
		event.CreatedAt = base.AddDate(0, 0, i)
		event.UpdatedAt = event.CreatedAt
		require.NoError(t, repo.Save(ctx, event))
		events = append(events, event)
	}
	require.NoError(t, repo.Save(ctx, newTestBillingEvent(uuid.New(), uuid.New())))

	t.Run("returns the meter's history newest first", func(t *testing.T) {
		history, err := repo.FindByMeter(ctx, meterID)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, events[2].GetID(), history[0].GetID())
		assert.Equal(t, events[1].GetID(), history[1].GetID())
		assert.Equal(t, events[0].GetID(), history[2].GetID())
	})

	t.Run("empty history for an unbilled meter", func(t *testing.T) {
		history, err := repo.FindByMeter(ctx, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}
