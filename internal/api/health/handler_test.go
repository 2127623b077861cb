package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chronos/internal/domain/regime"
	"chronos/pkg/logger"
)

func newTestRegistry(t *testing.T) *regime.Service {
	t.Helper()
	svc, err := regime.NewService(regime.DefaultConfig(), nil, zap.NewNop().Sugar(), nil)
	require.NoError(t, err)
	return svc
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) HealthStatus {
	t.Helper()
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	return status
}

func TestHandleLiveness(t *testing.T) {
	h := New(logger.Get(), nil, nil, nil, 15*time.Minute, "chronos", "test")

	rec := httptest.NewRecorder()
	h.HandleLiveness(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}

func TestHandleHealthRegistryOnly(t *testing.T) {
	svc := newTestRegistry(t)
	_, err := svc.UpdateRegime("BTCUSDT", regime.Bar{
		Timestamp: time.Unix(1700000000, 0), Open: 100, High: 101, Low: 99, Close: 100, Volume: 1000,
	})
	require.NoError(t, err)

	h := New(logger.Get(), nil, nil, svc, time.Hour, "chronos", "test")

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	status := decodeStatus(t, rec)
	assert.Equal(t, "healthy", status.Status)
	require.Contains(t, status.Checks, "registry")
	assert.Equal(t, "healthy", status.Checks["registry"].Status)
	assert.Equal(t, "1 symbols, 0 stale", status.Checks["registry"].Detail)
}

func TestHandleHealthDegradedOnStaleSymbols(t *testing.T) {
	svc := newTestRegistry(t)
	require.NoError(t, svc.RegisterSymbol("ETHUSDT"))

	h := New(logger.Get(), nil, nil, svc, 15*time.Minute, "chronos", "test")

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	// Degraded still serves traffic.
	assert.Equal(t, http.StatusOK, rec.Code)
	status := decodeStatus(t, rec)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "degraded", status.Checks["registry"].Status)
}

func TestHandleReadinessNoBackends(t *testing.T) {
	h := New(logger.Get(), nil, nil, nil, 15*time.Minute, "chronos", "test")

	rec := httptest.NewRecorder()
	h.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	status := decodeStatus(t, rec)
	assert.Equal(t, "healthy", status.Status)
	assert.Empty(t, status.Checks)
}
