package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/urbanscope/urbanscope/internal/engine"

// Metrics holds the frame loop instruments. A nil *Metrics records nothing.
type Metrics struct {
	frameDuration  metric.Float64Histogram
	primitives     metric.Int64Histogram
	droppedFrames  metric.Int64Counter
	activeSessions metric.Int64UpDownCounter
}

// NewMetrics creates the frame loop instruments on the global meter.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	frameDuration, err := meter.Float64Histogram(
		"scene.frame.duration",
		metric.WithDescription("Time to build one frame"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	primitives, err := meter.Int64Histogram(
		"scene.frame.primitives",
		metric.WithDescription("Primitives emitted per frame"),
		metric.WithUnit("{primitive}"),
	)
	if err != nil {
		return nil, err
	}

	droppedFrames, err := meter.Int64Counter(
		"scene.frame.dropped",
		metric.WithDescription("Frames not delivered to a slow subscriber"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return nil, err
	}

	activeSessions, err := meter.Int64UpDownCounter(
		"scene.sessions.active",
		metric.WithDescription("Open view sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		frameDuration:  frameDuration,
		primitives:     primitives,
		droppedFrames:  droppedFrames,
		activeSessions: activeSessions,
	}, nil
}

func (m *Metrics) recordFrame(status FrameStatus, d time.Duration, primitives int) {
	if m == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	m.frameDuration.Record(ctx, d.Seconds(), attrs)
	m.primitives.Record(ctx, int64(primitives), attrs)
}

func (m *Metrics) recordDropped() {
	if m == nil {
		return
	}
	m.droppedFrames.Add(context.Background(), 1)
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Add(context.Background(), 1)
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Add(context.Background(), -1)
}
