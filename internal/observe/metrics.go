// Package observe provides application-wide observability primitives for
// Mise: OpenTelemetry metrics, distributed tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Mise metrics.
const meterName = "github.com/mise-kitchen/mise"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ConnLatency tracks transcription transport round-trip latency as
	// measured by heartbeat pings. Use with attribute:
	//   attribute.String("conn_key", ...)
	ConnLatency metric.Float64Histogram

	// EnrichmentDuration tracks AI enrichment call latency. Use with attribute:
	//   attribute.String("stage", ...) // tag, translate, image, embed
	EnrichmentDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// AudioBytesSent counts audio payload bytes forwarded to the speech
	// service. Use with attribute:
	//   attribute.String("conn_key", ...)
	AudioBytesSent metric.Int64Counter

	// TranscriptMessages counts transcription results received. Use with attributes:
	//   attribute.String("conn_key", ...), attribute.String("final", "true"|"false")
	TranscriptMessages metric.Int64Counter

	// Reconnects counts reconnection attempts. Use with attributes:
	//   attribute.String("conn_key", ...), attribute.String("outcome", "success"|"retry"|"exhausted")
	Reconnects metric.Int64Counter

	// Suggestions counts enrichment suggestions by lifecycle outcome. Use with attribute:
	//   attribute.String("outcome", "auto_applied"|"queued"|"accepted"|"rejected")
	Suggestions metric.Int64Counter

	// --- Error counters ---

	// ConnErrors counts transport errors. Use with attributes:
	//   attribute.String("conn_key", ...), attribute.String("kind", "send"|"heartbeat"|"transport")
	ConnErrors metric.Int64Counter

	// --- Gauges ---

	// PoolConnections tracks the number of pooled transcription connections.
	PoolConnections metric.Int64UpDownCounter

	// DictationSessions tracks the number of live dictation sessions.
	DictationSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for transport pings and AI enrichment calls.
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
	if met.ConnLatency, err = m.Float64Histogram("mise.conn.latency",
		metric.WithDescription("Transcription transport heartbeat round-trip latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EnrichmentDuration, err = m.Float64Histogram("mise.enrichment.duration",
		metric.WithDescription("Latency of AI enrichment calls by stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("mise.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.AudioBytesSent, err = m.Int64Counter("mise.audio.bytes_sent",
		metric.WithDescription("Audio payload bytes forwarded to the speech service."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.TranscriptMessages, err = m.Int64Counter("mise.transcript.messages",
		metric.WithDescription("Transcription results received by connection and finality."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("mise.conn.reconnects",
		metric.WithDescription("Reconnection attempts by connection and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Suggestions, err = m.Int64Counter("mise.enrichment.suggestions",
		metric.WithDescription("Enrichment suggestions by lifecycle outcome."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ConnErrors, err = m.Int64Counter("mise.conn.errors",
		metric.WithDescription("Transcription transport errors by connection and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.PoolConnections, err = m.Int64UpDownCounter("mise.pool.connections",
		metric.WithDescription("Number of pooled transcription connections."),
	); err != nil {
		return nil, err
	}
	if met.DictationSessions, err = m.Int64UpDownCounter("mise.dictation.sessions",
		metric.WithDescription("Number of live dictation sessions."),
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

// RecordConnError is a convenience method that records a transport error
// counter increment with the standard attribute set.
func (m *Metrics) RecordConnError(ctx context.Context, connKey, kind string) {
	m.ConnErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("conn_key", connKey),
			attribute.String("kind", kind),
		),
	)
}

// RecordReconnect is a convenience method that records a reconnection attempt
// counter increment.
func (m *Metrics) RecordReconnect(ctx context.Context, connKey, outcome string) {
	m.Reconnects.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("conn_key", connKey),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordSuggestion is a convenience method that records one enrichment
// suggestion outcome.
func (m *Metrics) RecordSuggestion(ctx context.Context, outcome string) {
	m.Suggestions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordTranscript is a convenience method that records one received
// transcription result.
func (m *Metrics) RecordTranscript(ctx context.Context, connKey string, final bool) {
	f := "false"
	if final {
		f = "true"
	}
	m.TranscriptMessages.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("conn_key", connKey),
			attribute.String("final", f),
		),
	)
}
