package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/campreserve/backend/internal/domain/directory"
	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/campreserve/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// envelope mirrors dto.Response with raw data for per-test decoding
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *dto.ErrorInfo  `json:"error"`
	Meta    *dto.Meta       `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type mockMeterRepository struct {
	mock.Mock
}

func (m *mockMeterRepository) Save(ctx context.Context, meter *metering.Meter) error {
	args := m.Called(ctx, meter)
	return args.Error(0)
}

func (m *mockMeterRepository) FindByID(ctx context.Context, id uuid.UUID) (*metering.Meter, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.Meter), args.Error(1)
}

func (m *mockMeterRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*metering.Meter, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.Meter), args.Error(1)
}

func (m *mockMeterRepository) FindActiveBySiteAndType(ctx context.Context, siteID uuid.UUID, meterType metering.MeterType) (*metering.Meter, error) {
	args := m.Called(ctx, siteID, meterType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.Meter), args.Error(1)
}

func (m *mockMeterRepository) FindAll(ctx context.Context, filter metering.MeterFilter) ([]metering.Meter, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]metering.Meter), args.Error(1)
}

func (m *mockMeterRepository) FindActiveByBillingModes(ctx context.Context, modes []metering.BillingMode) ([]metering.Meter, error) {
	args := m.Called(ctx, modes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]metering.Meter), args.Error(1)
}

func (m *mockMeterRepository) UpdateWithVersion(ctx context.Context, meter *metering.Meter) error {
	args := m.Called(ctx, meter)
	return args.Error(0)
}

type mockSiteDirectory struct {
	mock.Mock
}

func (m *mockSiteDirectory) FindSite(ctx context.Context, id uuid.UUID) (*directory.Site, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*directory.Site), args.Error(1)
}

func (m *mockSiteDirectory) FindSiteClass(ctx context.Context, id uuid.UUID) (*directory.SiteClass, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*directory.SiteClass), args.Error(1)
}

func (m *mockSiteDirectory) ListSitesByClass(ctx context.Context, siteClassID uuid.UUID) ([]directory.Site, error) {
	args := m.Called(ctx, siteClassID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]directory.Site), args.Error(1)
}

// stubTxManager runs the function directly; handler tests assert HTTP
// behavior, not transaction plumbing.
type stubTxManager struct{}

func (stubTxManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
