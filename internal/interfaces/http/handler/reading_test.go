package handler

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendReadRequest_Binding(t *testing.T) {
	t.Run("rejects a payload without a value", func(t *testing.T) {
		var req AppendReadRequest
		err := binding.JSON.BindBody([]byte(`{"read_at":"2026-08-01T00:00:00Z"}`), &req)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "required")
	})

	t.Run("keeps full precision on large counter values", func(t *testing.T) {
		var req AppendReadRequest
		err := binding.JSON.BindBody([]byte(`{"value":123456789012.123456,"read_at":"2026-08-01T00:00:00Z"}`), &req)
		require.NoError(t, err)
		require.NotNil(t, req.Value)
		assert.True(t, decimal.RequireFromString("123456789012.123456").Equal(*req.Value))
	})

	t.Run("accepts a quoted decimal value", func(t *testing.T) {
		var req AppendReadRequest
		err := binding.JSON.BindBody([]byte(`{"value":"42.5","read_at":"2026-08-01T00:00:00Z"}`), &req)
		require.NoError(t, err)
		require.NotNil(t, req.Value)
		assert.True(t, decimal.RequireFromString("42.5").Equal(*req.Value))
	})

	t.Run("zero is a valid reading", func(t *testing.T) {
		var req AppendReadRequest
		err := binding.JSON.BindBody([]byte(`{"value":0,"read_at":"2026-08-01T00:00:00Z"}`), &req)
		require.NoError(t, err)
		require.NotNil(t, req.Value)
		assert.True(t, req.Value.IsZero())
	})
}
