package metering

import (
	"context"
	"testing"

	"github.com/campreserve/backend/internal/domain/directory"
	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type meterFixture struct {
	meterRepo *mockMeterRepository
	siteDir   *mockSiteDirectory
	service   *MeterService
}

func newMeterFixture() *meterFixture {
	f := &meterFixture{
		meterRepo: &mockMeterRepository{},
		siteDir:   &mockSiteDirectory{},
	}
	f.service = NewMeterService(
		f.meterRepo, f.siteDir, NewConfigResolver(f.siteDir), stubTxManager{}, zap.NewNop(),
	)
	return f
}

func TestMeterService_CreateMeter(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a meter on an unmetered site", func(t *testing.T) {
		f := newMeterFixture()
		siteID := uuid.New()
		site := &directory.Site{ID: siteID, SiteClassID: uuid.New(), Name: "A-12"}

		f.siteDir.On("FindSite", mock.Anything, siteID).Return(site, nil)
		f.meterRepo.On("FindActiveBySiteAndType", mock.Anything, siteID, metering.MeterTypePower).
			Return(nil, shared.ErrNotFound)
		f.meterRepo.On("Save", mock.Anything, mock.AnythingOfType("*metering.Meter")).Return(nil)

		meter, err := f.service.CreateMeter(ctx, CreateMeterInput{
			SiteID: siteID,
			Type:   metering.MeterTypePower,
		})

		require.NoError(t, err)
		assert.Equal(t, siteID, meter.SiteID)
		assert.True(t, meter.Active)
	})

	t.Run("rejects a second active meter of the same type", func(t *testing.T) {
		f := newMeterFixture()
		siteID := uuid.New()
		site := &directory.Site{ID: siteID, SiteClassID: uuid.New(), Name: "A-12"}
		existing, err := metering.NewMeter(siteID, metering.MeterTypePower, metering.MeterConfig{})
		require.NoError(t, err)

		f.siteDir.On("FindSite", mock.Anything, siteID).Return(site, nil)
		f.meterRepo.On("FindActiveBySiteAndType", mock.Anything, siteID, metering.MeterTypePower).
			Return(existing, nil)

		_, err = f.service.CreateMeter(ctx, CreateMeterInput{
			SiteID: siteID,
			Type:   metering.MeterTypePower,
		})

		assert.ErrorIs(t, err, shared.ErrDuplicateActiveMeter)
		f.meterRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("fails for an unknown site", func(t *testing.T) {
		f := newMeterFixture()
		siteID := uuid.New()

		f.siteDir.On("FindSite", mock.Anything, siteID).Return(nil, shared.ErrNotFound)

		_, err := f.service.CreateMeter(ctx, CreateMeterInput{
			SiteID: siteID,
			Type:   metering.MeterTypeWater,
		})

		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("validates configuration before touching the store", func(t *testing.T) {
		f := newMeterFixture()
		siteID := uuid.New()
		site := &directory.Site{ID: siteID, SiteClassID: uuid.New()}
		bad := decimal.NewFromInt(-2)

		f.siteDir.On("FindSite", mock.Anything, siteID).Return(site, nil)

		_, err := f.service.CreateMeter(ctx, CreateMeterInput{
			SiteID:     siteID,
			Type:       metering.MeterTypePower,
			Multiplier: &bad,
		})

		assert.Error(t, err)
		f.meterRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestMeterService_UpdateMeter(t *testing.T) {
	ctx := context.Background()

	t.Run("applies a patch and persists with version check", func(t *testing.T) {
		f := newMeterFixture()
		meter, err := metering.NewMeter(uuid.New(), metering.MeterTypePower, metering.MeterConfig{})
		require.NoError(t, err)
		mode := metering.BillingModeCycle

		f.meterRepo.On("FindByID", mock.Anything, meter.GetID()).Return(meter, nil)
		f.meterRepo.On("UpdateWithVersion", mock.Anything, meter).Return(nil)

		updated, err := f.service.UpdateMeter(ctx, meter.GetID(), UpdateMeterInput{BillingMode: &mode})

		require.NoError(t, err)
		require.NotNil(t, updated.BillingMode)
		assert.Equal(t, metering.BillingModeCycle, *updated.BillingMode)
	})

	t.Run("retries against fresh state after a lost version race", func(t *testing.T) {
		f := newMeterFixture()
		meter, err := metering.NewMeter(uuid.New(), metering.MeterTypePower, metering.MeterConfig{})
		require.NoError(t, err)
		mode := metering.BillingModeAnnual

		f.meterRepo.On("FindByID", mock.Anything, meter.GetID()).Return(meter, nil)
		f.meterRepo.On("UpdateWithVersion", mock.Anything, meter).Return(shared.ErrConcurrencyConflict).Once()
		f.meterRepo.On("UpdateWithVersion", mock.Anything, meter).Return(nil)

		_, err = f.service.UpdateMeter(ctx, meter.GetID(), UpdateMeterInput{BillingMode: &mode})

		require.NoError(t, err)
		f.meterRepo.AssertNumberOfCalls(t, "UpdateWithVersion", 2)
	})

	t.Run("gives up after exhausting retries", func(t *testing.T) {
		f := newMeterFixture()
		meter, err := metering.NewMeter(uuid.New(), metering.MeterTypePower, metering.MeterConfig{})
		require.NoError(t, err)
		mode := metering.BillingModeAnnual

		f.meterRepo.On("FindByID", mock.Anything, meter.GetID()).Return(meter, nil)
		f.meterRepo.On("UpdateWithVersion", mock.Anything, meter).Return(shared.ErrConcurrencyConflict)

		_, err = f.service.UpdateMeter(ctx, meter.GetID(), UpdateMeterInput{BillingMode: &mode})

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		f.meterRepo.AssertNumberOfCalls(t, "UpdateWithVersion", conflictRetryAttempts)
	})
}

func TestMeterService_SetMeterActive(t *testing.T) {
	ctx := context.Background()

	t.Run("deactivates a meter", func(t *testing.T) {
		f := newMeterFixture()
		meter, err := metering.NewMeter(uuid.New(), metering.MeterTypePower, metering.MeterConfig{})
		require.NoError(t, err)

		f.meterRepo.On("FindByIDForUpdate", mock.Anything, meter.GetID()).Return(meter, nil)
		f.meterRepo.On("UpdateWithVersion", mock.Anything, meter).Return(nil)

		updated, err := f.service.SetMeterActive(ctx, meter.GetID(), false)

		require.NoError(t, err)
		assert.False(t, updated.Active)
	})

	t.Run("reactivation re-checks the duplicate rule", func(t *testing.T) {
		f := newMeterFixture()
		meter, err := metering.NewMeter(uuid.New(), metering.MeterTypePower, metering.MeterConfig{})
		require.NoError(t, err)
		meter.SetActive(false)
		replacement, err := metering.NewMeter(meter.SiteID, metering.MeterTypePower, metering.MeterConfig{})
		require.NoError(t, err)

		f.meterRepo.On("FindByIDForUpdate", mock.Anything, meter.GetID()).Return(meter, nil)
		f.meterRepo.On("FindActiveBySiteAndType", mock.Anything, meter.SiteID, metering.MeterTypePower).
			Return(replacement, nil)

		_, err = f.service.SetMeterActive(ctx, meter.GetID(), true)

		assert.ErrorIs(t, err, shared.ErrDuplicateActiveMeter)
	})

	t.Run("no-op when the state already matches", func(t *testing.T) {
		f := newMeterFixture()
		meter, err := metering.NewMeter(uuid.New(), metering.MeterTypePower, metering.MeterConfig{})
		require.NoError(t, err)

		f.meterRepo.On("FindByIDForUpdate", mock.Anything, meter.GetID()).Return(meter, nil)

		updated, err := f.service.SetMeterActive(ctx, meter.GetID(), true)

		require.NoError(t, err)
		assert.True(t, updated.Active)
		f.meterRepo.AssertNotCalled(t, "UpdateWithVersion", mock.Anything, mock.Anything)
	})
}

func TestMeterService_EffectiveConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves through the class defaults", func(t *testing.T) {
		f := newMeterFixture()
		classID := uuid.New()
		siteID := uuid.New()
		meter, err := metering.NewMeter(siteID, metering.MeterTypePower, metering.MeterConfig{})
		require.NoError(t, err)

		mode := metering.BillingModeCycle
		email := true
		class := &directory.SiteClass{
			ID:   classID,
			Name: "full-hookup",
			Metering: &metering.ClassDefaults{
				MeteredEnabled: true,
				MeteredType:    metering.MeterTypePower,
				BillingMode:    &mode,
				AutoEmail:      &email,
			},
		}

		f.meterRepo.On("FindByID", mock.Anything, meter.GetID()).Return(meter, nil)
		f.siteDir.On("FindSite", mock.Anything, siteID).
			Return(&directory.Site{ID: siteID, SiteClassID: classID}, nil)
		f.siteDir.On("FindSiteClass", mock.Anything, classID).Return(class, nil)

		cfg, err := f.service.EffectiveConfig(ctx, meter.GetID())

		require.NoError(t, err)
		assert.Equal(t, metering.BillingModeCycle, cfg.BillingMode)
		assert.True(t, cfg.AutoEmail)
		assert.Equal(t, metering.BillToReservation, cfg.BillTo)
	})

	t.Run("falls back to system defaults without a class", func(t *testing.T) {
		f := newMeterFixture()
		meter, err := metering.NewMeter(uuid.New(), metering.MeterTypeSewer, metering.MeterConfig{})
		require.NoError(t, err)

		f.meterRepo.On("FindByID", mock.Anything, meter.GetID()).Return(meter, nil)
		f.siteDir.On("FindSite", mock.Anything, meter.SiteID).Return(nil, shared.ErrNotFound)

		cfg, err := f.service.EffectiveConfig(ctx, meter.GetID())

		require.NoError(t, err)
		assert.Equal(t, metering.BillingModeManual, cfg.BillingMode)
		assert.False(t, cfg.AutoEmail)
		assert.True(t, cfg.Multiplier.Equal(decimal.NewFromInt(1)))
	})
}
