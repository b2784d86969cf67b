package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanscope/urbanscope/internal/api/handler"
	"github.com/urbanscope/urbanscope/internal/api/models"
	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/internal/provider/resilience"
)

type fixedStatus dataset.CacheStatus

func (s fixedStatus) CacheStatus() dataset.CacheStatus { return dataset.CacheStatus(s) }

type fixedCount int

func (c fixedCount) Len() int { return int(c) }

func serveStatus(t *testing.T, h *handler.OpsHandler) models.SystemStatus {
	t.Helper()
	rec := httptest.NewRecorder()
	h.SystemStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.SystemStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	return status
}

func TestOpsHandler_ReadinessCheck(t *testing.T) {
	tests := []struct {
		name   string
		cache  dataset.CacheStatus
		status int
	}{
		{name: "no snapshot", cache: dataset.CacheStatus{}, status: http.StatusServiceUnavailable},
		{name: "snapshot loaded", cache: dataset.CacheStatus{HasData: true, CellCount: 12}, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewOpsHandler(handler.OpsConfig{Dataset: fixedStatus(tt.cache)})
			rec := httptest.NewRecorder()

			h.ReadinessCheck(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody))

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestOpsHandler_SystemStatus(t *testing.T) {
	fresh := dataset.CacheStatus{HasData: true, FetchedAt: time.Now(), CellCount: 12, Provider: "bundled"}

	t.Run("healthy", func(t *testing.T) {
		status := serveStatus(t, handler.NewOpsHandler(handler.OpsConfig{
			Dataset:  fixedStatus(fresh),
			Sessions: fixedCount(3),
		}))

		assert.Equal(t, models.HealthStatusOK, status.Status)
		assert.Equal(t, 3, status.Sessions.Open)
		require.Len(t, status.Subsystems, 1)
		assert.Equal(t, "dataset", status.Subsystems[0].Name)
		assert.Empty(t, status.Providers)
	})

	t.Run("no dataset fails", func(t *testing.T) {
		status := serveStatus(t, handler.NewOpsHandler(handler.OpsConfig{Dataset: fixedStatus(dataset.CacheStatus{})}))

		assert.Equal(t, models.HealthStatusFail, status.Status)
		require.NotNil(t, status.Subsystems[0].Detail)
	})

	t.Run("stale dataset degrades", func(t *testing.T) {
		stale := fresh
		stale.IsStale = true
		status := serveStatus(t, handler.NewOpsHandler(handler.OpsConfig{Dataset: fixedStatus(stale)}))

		assert.Equal(t, models.HealthStatusDegraded, status.Status)
	})

	t.Run("provider failures are reported", func(t *testing.T) {
		registry := resilience.NewRegistry()
		cfg := resilience.DefaultClientConfig("urban-api")
		cfg.Registry = registry
		resilience.NewClient(cfg)
		registry.RecordFailure("urban-api", errors.New("connection refused"))

		status := serveStatus(t, handler.NewOpsHandler(handler.OpsConfig{
			Dataset:  fixedStatus(fresh),
			Registry: registry,
		}))

		require.Len(t, status.Providers, 1)
		p := status.Providers[0]
		assert.Equal(t, "urban-api", p.Provider)
		assert.Equal(t, models.HealthStatusOK, p.Status)
		assert.Equal(t, "closed", p.CircuitState)
		require.NotNil(t, p.LastFailureAt)
		require.NotNil(t, p.Message)
		assert.Equal(t, "connection refused", *p.Message)
	})
}
