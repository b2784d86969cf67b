// Package worker runs the background refresh jobs that keep the scene's
// dataset and kill switches warm.
package worker

import (
	"context"
	"time"

	"github.com/urbanscope/urbanscope/internal/featureflags"
)

// Job types accepted over Pub/Sub.
const (
	JobDatasetRefresh = "dataset_refresh"
	JobHealthCheck    = "health_check"
)

// Target names.
const (
	DatasetTargetName = "dataset"
	FlagsTargetName   = "feature_flags"
)

// RefreshTarget is one cache to refresh.
type RefreshTarget struct {
	// Name identifies the target in logs and results.
	Name string

	// Priority determines refresh order (lower = higher priority).
	Priority int

	// Upstream marks targets that call the dataset provider. They are
	// skipped while the cached-only kill switch is on.
	Upstream bool

	// Refresh performs the refresh.
	Refresh func(ctx context.Context) error
}

// RefreshConfig holds configuration for the refresh job.
type RefreshConfig struct {
	// Concurrency is the number of targets refreshed in parallel.
	// Default: 2
	Concurrency int

	// Timeout bounds each target's refresh.
	// Default: 30 seconds
	Timeout time.Duration

	// Interval is the period of the background loop.
	// Default: 10 minutes
	Interval time.Duration
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Concurrency: 2,
		Timeout:     30 * time.Second,
		Interval:    10 * time.Minute,
	}
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	def := DefaultRefreshConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	return c
}

// DatasetRefresher is the part of the dataset service refreshed here.
type DatasetRefresher interface {
	RefreshSnapshot(ctx context.Context) error
}

// FlagCache is the part of the feature flag service refreshed here.
type FlagCache interface {
	InvalidateCache()
	GetAllFlags(ctx context.Context) map[string]*featureflags.Flag
}

// DatasetTarget refetches the scene snapshot from the provider.
func DatasetTarget(svc DatasetRefresher) RefreshTarget {
	return RefreshTarget{
		Name:     DatasetTargetName,
		Priority: 1,
		Upstream: true,
		Refresh:  svc.RefreshSnapshot,
	}
}

// FlagsTarget drops the cached kill switches and reloads them.
func FlagsTarget(flags FlagCache) RefreshTarget {
	return RefreshTarget{
		Name:     FlagsTargetName,
		Priority: 2,
		Refresh: func(ctx context.Context) error {
			flags.InvalidateCache()
			flags.GetAllFlags(ctx)
			return ctx.Err()
		},
	}
}
