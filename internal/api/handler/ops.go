// Package handler provides the HTTP handlers of the scene API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/urbanscope/urbanscope/internal/api/models"
	"github.com/urbanscope/urbanscope/internal/api/response"
	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/internal/featureflags"
	"github.com/urbanscope/urbanscope/internal/provider/resilience"
)

// DatasetStatus reports the dataset cache state.
type DatasetStatus interface {
	CacheStatus() dataset.CacheStatus
}

// SessionCounter reports how many view sessions are open.
type SessionCounter interface {
	Len() int
}

// RefreshReporter exposes background refresh counters.
type RefreshReporter interface {
	MetricsSnapshot() map[string]interface{}
}

// degradationFlags are the kill switches reported on the status endpoint.
var degradationFlags = []string{
	featureflags.FlagDisablePollutionField,
	featureflags.FlagDisableForecast,
	featureflags.FlagDisableWaterMode,
	featureflags.FlagCachedOnlyDataset,
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	dataset   DatasetStatus
	sessions  SessionCounter
	registry  *resilience.Registry
	refresh   RefreshReporter
	flags     *featureflags.Service
}

// OpsConfig holds the dependencies of the ops endpoints. Nil fields are
// left out of the status report.
type OpsConfig struct {
	Version   string
	BuildTime string
	Dataset   DatasetStatus
	Sessions  SessionCounter
	Registry  *resilience.Registry
	Refresh   RefreshReporter
	Flags     *featureflags.Service
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		dataset:   cfg.Dataset,
		sessions:  cfg.Sessions,
		registry:  cfg.Registry,
		refresh:   cfg.Refresh,
		flags:     cfg.Flags,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. The service is ready once a
// dataset snapshot is cached, since sessions cannot be built without one.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	if h.dataset != nil {
		cache := h.dataset.CacheStatus()
		health.Details = map[string]interface{}{"dataset": cache}
		if !cache.HasData {
			health.Status = models.HealthStatusFail
			response.JSON(w, r, http.StatusServiceUnavailable, health)
			return
		}
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - dataset, session and provider status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: []models.SubsystemStatus{},
		Providers:  []models.ProviderStatus{},
	}

	if h.dataset != nil {
		status.Dataset = h.dataset.CacheStatus()
		status.Subsystems = append(status.Subsystems, datasetSubsystem(status.Dataset))
	}

	if h.sessions != nil {
		status.Sessions.Open = h.sessions.Len()
	}
	if h.flags != nil {
		status.Sessions.Limit = h.flags.MaxSessions(ctx)
		status.ActiveDegradationFlags = h.activeDegradationFlags(ctx)
	}

	if h.registry != nil {
		for _, health := range h.registry.GetAllHealth() {
			status.Providers = append(status.Providers, providerStatus(health))
		}
	}

	if h.refresh != nil {
		status.Refresh = h.refresh.MetricsSnapshot()
	}

	status.Status = overallStatus(status)
	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) activeDegradationFlags(ctx context.Context) []string {
	var active []string
	for _, key := range degradationFlags {
		if h.flags.IsEnabled(ctx, key) {
			active = append(active, key)
		}
	}
	return active
}

func datasetSubsystem(cache dataset.CacheStatus) models.SubsystemStatus {
	sub := models.SubsystemStatus{Name: "dataset", Status: models.HealthStatusOK}
	switch {
	case !cache.HasData:
		detail := "no snapshot loaded"
		sub.Status, sub.Detail = models.HealthStatusFail, &detail
	case cache.IsStale:
		detail := "serving stale snapshot"
		sub.Status, sub.Detail = models.HealthStatusDegraded, &detail
	}
	return sub
}

func providerStatus(health *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:     health.Name,
		Status:       models.HealthStatusOK,
		CircuitState: health.CircuitState,
		Requests:     health.Requests,
		Failures:     health.Failures,
	}
	switch {
	case health.IsUnhealthy():
		ps.Status = models.HealthStatusFail
	case health.IsDegraded():
		ps.Status = models.HealthStatusDegraded
	}
	if health.LastSuccessAt != nil {
		ps.LastSuccessAt = models.TimestampPtr(*health.LastSuccessAt)
	}
	if health.LastFailureAt != nil {
		ps.LastFailureAt = models.TimestampPtr(*health.LastFailureAt)
	}
	if health.LastError != "" {
		msg := health.LastError
		ps.Message = &msg
	}
	return ps
}

// overallStatus is FAIL without a dataset and DEGRADED when anything
// else is unhealthy or a kill switch is on.
func overallStatus(status models.SystemStatus) models.HealthStatus {
	result := models.HealthStatusOK
	for _, sub := range status.Subsystems {
		if sub.Status == models.HealthStatusFail {
			return models.HealthStatusFail
		}
		if sub.Status == models.HealthStatusDegraded {
			result = models.HealthStatusDegraded
		}
	}
	for _, p := range status.Providers {
		if p.Status != models.HealthStatusOK {
			result = models.HealthStatusDegraded
		}
	}
	if len(status.ActiveDegradationFlags) > 0 {
		result = models.HealthStatusDegraded
	}
	return result
}
