package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the HTTP and frame stream instruments.
type Metrics struct {
	requestDuration  metric.Float64Histogram
	requestTotal     metric.Int64Counter
	requestsInFlight metric.Int64UpDownCounter
	responseSize     metric.Int64Histogram
	streamsOpen      metric.Int64UpDownCounter
	streamFrames     metric.Int64Counter
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	if m.requestDuration, err = meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("Duration of HTTP server requests in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.requestTotal, err = meter.Int64Counter(
		"http.server.request.total",
		metric.WithDescription("Total number of HTTP server requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.requestsInFlight, err = meter.Int64UpDownCounter(
		"http.server.requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.responseSize, err = meter.Int64Histogram(
		"http.server.response.size",
		metric.WithDescription("Size of HTTP server responses in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if m.streamsOpen, err = meter.Int64UpDownCounter(
		"scene.stream.open",
		metric.WithDescription("Number of open websocket frame streams"),
		metric.WithUnit("{stream}"),
	); err != nil {
		return nil, err
	}
	if m.streamFrames, err = meter.Int64Counter(
		"scene.stream.frames",
		metric.WithDescription("Frames written to websocket streams"),
		metric.WithUnit("{frame}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// Middleware returns an HTTP middleware that records metrics for each
// request. Upgraded websocket requests are counted but their duration is
// left out of the request histogram.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			method := attribute.String("http.request.method", r.Method)
			m.requestsInFlight.Add(ctx, 1, metric.WithAttributes(method))
			defer m.requestsInFlight.Add(ctx, -1, metric.WithAttributes(method))

			wrapped := newRecorder(w)
			next.ServeHTTP(wrapped, r)

			attrs := metric.WithAttributes(
				method,
				attribute.String("http.route", routePattern(r)),
				attribute.String("http.response.status_code", strconv.Itoa(wrapped.statusCode)),
				attribute.Bool("error", wrapped.statusCode >= http.StatusBadRequest),
			)

			m.requestTotal.Add(ctx, 1, attrs)
			if wrapped.hijacked {
				return
			}
			m.requestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
			m.responseSize.Record(ctx, wrapped.written, attrs)
		})
	}
}

// StreamOpened records a new frame stream. Safe on a nil receiver.
func (m *Metrics) StreamOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.streamsOpen.Add(ctx, 1)
}

// StreamClosed records a closed frame stream. Safe on a nil receiver.
func (m *Metrics) StreamClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.streamsOpen.Add(ctx, -1)
}

// FrameSent counts one frame written to a stream. Safe on a nil receiver.
func (m *Metrics) FrameSent(ctx context.Context) {
	if m == nil {
		return
	}
	m.streamFrames.Add(ctx, 1)
}
