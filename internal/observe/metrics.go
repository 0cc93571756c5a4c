// Package observe provides application-wide observability primitives for
// voxchat: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the local status server's /metrics endpoint. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxchat metrics.
const meterName = "github.com/MrWong99/voxchat"

// Reasons for dropping a captured frame.
const (
	DropPlayback     = "playback"
	DropDisconnected = "disconnected"
	DropSendError    = "send_error"
)

// Stages at which a speech segment can fail.
const (
	StageDecode = "decode"
	StagePlay   = "play"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// BootstrapDuration tracks the set_username round trip.
	BootstrapDuration metric.Float64Histogram

	// ConnectDuration tracks how long the streaming connection takes to open.
	ConnectDuration metric.Float64Histogram

	// PlaybackDuration tracks the rendered length of each speech segment.
	PlaybackDuration metric.Float64Histogram

	// --- Counters ---

	// FramesSent counts microphone frames handed to the session.
	FramesSent metric.Int64Counter

	// FramesDropped counts captured frames that were not transmitted. Use with
	// attribute:
	//   attribute.String("reason", ...)
	FramesDropped metric.Int64Counter

	// InboundEvents counts decoded server events. Use with attribute:
	//   attribute.String("kind", ...)
	InboundEvents metric.Int64Counter

	// SegmentsPlayed counts speech segments rendered to the output.
	SegmentsPlayed metric.Int64Counter

	// --- Error counters ---

	// SegmentErrors counts speech segments that failed. Use with attribute:
	//   attribute.String("stage", ...)
	SegmentErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of open streaming sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...),
	//   attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for network
// round trips and segment lengths.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.BootstrapDuration, err = m.Float64Histogram("voxchat.bootstrap.duration",
		metric.WithDescription("Latency of the session bootstrap request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ConnectDuration, err = m.Float64Histogram("voxchat.session.connect.duration",
		metric.WithDescription("Time to open the streaming connection."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("voxchat.playback.duration",
		metric.WithDescription("Rendered length of synthesized speech segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesSent, err = m.Int64Counter("voxchat.capture.frames_sent",
		metric.WithDescription("Total microphone frames sent."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voxchat.capture.frames_dropped",
		metric.WithDescription("Total microphone frames dropped by reason."),
	); err != nil {
		return nil, err
	}
	if met.InboundEvents, err = m.Int64Counter("voxchat.session.inbound_events",
		metric.WithDescription("Total inbound server events by kind."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsPlayed, err = m.Int64Counter("voxchat.playback.segments",
		metric.WithDescription("Total speech segments played."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.SegmentErrors, err = m.Int64Counter("voxchat.playback.errors",
		metric.WithDescription("Total speech segments that failed by stage."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxchat.active_sessions",
		metric.WithDescription("Number of open streaming sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxchat.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrameSent records one transmitted microphone frame.
func (m *Metrics) RecordFrameSent(ctx context.Context) {
	m.FramesSent.Add(ctx, 1)
}

// RecordFrameDropped records one captured frame that was not transmitted.
func (m *Metrics) RecordFrameDropped(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordInboundEvent records one decoded server event.
func (m *Metrics) RecordInboundEvent(ctx context.Context, kind string) {
	m.InboundEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordSegmentPlayed records one rendered speech segment and its length.
func (m *Metrics) RecordSegmentPlayed(ctx context.Context, d time.Duration) {
	m.SegmentsPlayed.Add(ctx, 1)
	m.PlaybackDuration.Record(ctx, d.Seconds())
}

// RecordSegmentError records a speech segment that failed at stage.
func (m *Metrics) RecordSegmentError(ctx context.Context, stage string) {
	m.SegmentErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}
