package resilience_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanscope/urbanscope/internal/provider/resilience"
)

func register(registry *resilience.Registry, name string) *resilience.Client {
	cfg := fastConfig(name)
	cfg.Registry = registry
	return resilience.NewClient(cfg)
}

func TestRegistry_RegisterOnCreate(t *testing.T) {
	registry := resilience.NewRegistry()
	register(registry, "urban-api")

	assert.Equal(t, 1, registry.ProviderCount())
	health := registry.GetHealth("urban-api")
	require.NotNil(t, health)
	assert.Equal(t, resilience.StatusHealthy, health.Status)
	assert.Equal(t, "closed", health.CircuitState)
	assert.True(t, health.IsHealthy())
	assert.Nil(t, health.LastSuccessAt)
}

func TestRegistry_ClientRecordsOutcomes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	client := register(registry, "urban-api")

	resp, err := get(t, client, server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	health := registry.GetHealth("urban-api")
	require.NotNil(t, health.LastSuccessAt)
	assert.WithinDuration(t, time.Now(), *health.LastSuccessAt, time.Second)
	assert.Equal(t, uint32(1), health.Requests)
}

func TestRegistry_RecordFailure(t *testing.T) {
	registry := resilience.NewRegistry()
	register(registry, "urban-api")

	registry.RecordFailure("urban-api", assert.AnError)

	health := registry.GetHealth("urban-api")
	require.NotNil(t, health.LastFailureAt)
	assert.Equal(t, assert.AnError.Error(), health.LastError)
}

func TestRegistry_GetAllHealthSorted(t *testing.T) {
	registry := resilience.NewRegistry()
	for _, name := range []string{"tiles", "detail", "urban-api"} {
		register(registry, name)
	}

	var names []string
	for _, h := range registry.GetAllHealth() {
		names = append(names, h.Name)
	}
	assert.Equal(t, []string{"detail", "tiles", "urban-api"}, names)
}

func TestRegistry_Unknown(t *testing.T) {
	registry := resilience.NewRegistry()
	assert.Nil(t, registry.GetHealth("nonexistent"))

	registry.RecordSuccess("nonexistent")
	registry.RecordFailure("nonexistent", assert.AnError)

	register(registry, "urban-api")
	registry.Unregister("urban-api")
	assert.Zero(t, registry.ProviderCount())
}

func TestProviderHealth_States(t *testing.T) {
	tests := []struct {
		status    string
		healthy   bool
		degraded  bool
		unhealthy bool
	}{
		{resilience.StatusHealthy, true, false, false},
		{resilience.StatusDegraded, false, true, false},
		{resilience.StatusUnhealthy, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			h := &resilience.ProviderHealth{Status: tt.status}
			assert.Equal(t, tt.healthy, h.IsHealthy())
			assert.Equal(t, tt.degraded, h.IsDegraded())
			assert.Equal(t, tt.unhealthy, h.IsUnhealthy())
		})
	}
}
