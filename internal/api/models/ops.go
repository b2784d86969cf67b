package models

import (
	"github.com/urbanscope/urbanscope/internal/dataset"
)

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus represents the overall system status.
type SystemStatus struct {
	Status                 HealthStatus           `json:"status"`
	Time                   Timestamp              `json:"time"`
	Dataset                dataset.CacheStatus    `json:"dataset"`
	Sessions               SessionStats           `json:"sessions"`
	Subsystems             []SubsystemStatus      `json:"subsystems"`
	Providers              []ProviderStatus       `json:"providers"`
	Refresh                map[string]interface{} `json:"refresh,omitempty"`
	ActiveDegradationFlags []string               `json:"activeDegradationFlags,omitempty"`
}

// SessionStats summarises open view sessions.
type SessionStats struct {
	Open  int `json:"open"`
	Limit int `json:"limit,omitempty"`
}

// SubsystemStatus represents the status of a subsystem.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// ProviderStatus represents the status of an external provider.
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	Requests      uint32       `json:"requests"`
	Failures      uint32       `json:"failures"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}

// DatasetRefreshResult is returned by the admin refresh endpoint.
type DatasetRefreshResult struct {
	Successful int                 `json:"successful"`
	Failed     int                 `json:"failed"`
	Skipped    []string            `json:"skipped,omitempty"`
	Errors     []string            `json:"errors,omitempty"`
	Dataset    dataset.CacheStatus `json:"dataset"`
}
