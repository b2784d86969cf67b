package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/urbanscope/urbanscope/internal/telemetry"
)

const tracerName = "github.com/urbanscope/urbanscope/internal/worker"

// CachedOnlyChecker reports whether upstream refreshes are switched off.
type CachedOnlyChecker interface {
	IsCachedOnlyDataset(ctx context.Context) bool
}

// RefreshJob refreshes a fixed set of targets with a small worker pool.
type RefreshJob struct {
	config  RefreshConfig
	targets []RefreshTarget
	flags   CachedOnlyChecker
	logger  zerolog.Logger
	tracer  trace.Tracer

	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	TotalRuns         int64
	SuccessfulRefresh int64
	FailedRefreshes   int64
	SkippedRefreshes  int64

	LastRefreshAt       time.Time
	LastRefreshDuration time.Duration
	TotalDuration       time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config  RefreshConfig
	Targets []RefreshTarget
	Flags   CachedOnlyChecker
	Logger  zerolog.Logger
}

// NewRefreshJob creates a refresh job. Targets run in priority order.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	targets := append([]RefreshTarget(nil), cfg.Targets...)
	sort.SliceStable(targets, func(i, k int) bool {
		return targets[i].Priority < targets[k].Priority
	})

	return &RefreshJob{
		config:  cfg.Config.withDefaults(),
		targets: targets,
		flags:   cfg.Flags,
		logger:  cfg.Logger,
		tracer:  telemetry.Tracer(tracerName),
		metrics: &RefreshMetrics{},
	}
}

// RefreshResult contains the result of a refresh run.
type RefreshResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	Skipped    []string
	Errors     []RefreshError
}

// RefreshError records one failed target.
type RefreshError struct {
	Target string
	Error  string
}

// Run refreshes every target once.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	return j.run(ctx, func(RefreshTarget) bool { return true })
}

// RunTarget refreshes only the named target.
func (j *RefreshJob) RunTarget(ctx context.Context, name string) *RefreshResult {
	return j.run(ctx, func(t RefreshTarget) bool { return t.Name == name })
}

func (j *RefreshJob) run(ctx context.Context, include func(RefreshTarget) bool) *RefreshResult {
	ctx, span := j.tracer.Start(ctx, "worker.refresh")
	defer span.End()

	startTime := time.Now()
	result := &RefreshResult{StartTime: startTime}

	cachedOnly := j.flags != nil && j.flags.IsCachedOnlyDataset(ctx)

	var work []RefreshTarget
	for _, t := range j.targets {
		if !include(t) {
			continue
		}
		if t.Upstream && cachedOnly {
			result.Skipped = append(result.Skipped, t.Name)
			continue
		}
		work = append(work, t)
	}
	result.Total = len(work) + len(result.Skipped)

	j.logger.Info().
		Int("targets", len(work)).
		Strs("skipped", result.Skipped).
		Int("concurrency", j.config.Concurrency).
		Msg("starting refresh job")

	targetsChan := make(chan RefreshTarget, len(work))
	resultsChan := make(chan targetResult, len(work))

	var wg sync.WaitGroup
	for range min(j.config.Concurrency, len(work)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.refreshWorker(ctx, targetsChan, resultsChan)
		}()
	}

	for _, t := range work {
		targetsChan <- t
	}
	close(targetsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for tr := range resultsChan {
		if tr.err == nil {
			result.Successful++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, RefreshError{Target: tr.name, Error: tr.err.Error()})
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)
	j.updateMetrics(result)

	span.SetAttributes(
		attribute.Int("refresh.successful", result.Successful),
		attribute.Int("refresh.failed", result.Failed),
		attribute.Int("refresh.skipped", len(result.Skipped)),
	)
	if result.Failed > 0 {
		span.SetStatus(codes.Error, "refresh failures")
	}

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("refresh job completed")

	return result
}

type targetResult struct {
	name string
	err  error
}

func (j *RefreshJob) refreshWorker(ctx context.Context, targets <-chan RefreshTarget, results chan<- targetResult) {
	for t := range targets {
		if ctx.Err() != nil {
			results <- targetResult{name: t.Name, err: ctx.Err()}
			continue
		}
		results <- targetResult{name: t.Name, err: j.refreshTarget(ctx, t)}
	}
}

func (j *RefreshJob) refreshTarget(ctx context.Context, t RefreshTarget) error {
	ctx, span := j.tracer.Start(ctx, "worker.refresh."+t.Name)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	if err := t.Refresh(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		j.logger.Warn().Err(err).Str("target", t.Name).Msg("refresh failed")
		return err
	}
	return nil
}

// Loop runs the job once immediately and then every Interval until ctx
// is cancelled.
func (j *RefreshJob) Loop(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	j.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}

func (j *RefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.SuccessfulRefresh += int64(result.Successful)
	j.metrics.FailedRefreshes += int64(result.Failed)
	j.metrics.SkippedRefreshes += int64(len(result.Skipped))
	j.metrics.LastRefreshAt = result.EndTime
	j.metrics.LastRefreshDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRuns:           j.metrics.TotalRuns,
		SuccessfulRefresh:   j.metrics.SuccessfulRefresh,
		FailedRefreshes:     j.metrics.FailedRefreshes,
		SkippedRefreshes:    j.metrics.SkippedRefreshes,
		LastRefreshAt:       j.metrics.LastRefreshAt,
		LastRefreshDuration: j.metrics.LastRefreshDuration,
		TotalDuration:       j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns the current metrics as a map for the status endpoint.
func (j *RefreshJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":            m.TotalRuns,
		"successful_refreshes":  m.SuccessfulRefresh,
		"failed_refreshes":      m.FailedRefreshes,
		"skipped_refreshes":     m.SkippedRefreshes,
		"last_refresh_at":       m.LastRefreshAt,
		"last_refresh_duration": m.LastRefreshDuration.String(),
		"total_duration":        m.TotalDuration.String(),
	}
}
