// Package observe provides application-wide observability primitives for
// kaigi: OpenTelemetry metrics with a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all kaigi metrics.
const meterName = "github.com/kaigi-app/kaigi"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks chunk transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// SummaryDuration tracks summary generation latency.
	SummaryDuration metric.Float64Histogram

	// SuggestionDuration tracks suggestion refresh latency, both stages
	// combined.
	SuggestionDuration metric.Float64Histogram

	// --- Counters ---

	// Chunks counts processed audio chunks. Use with attribute:
	//   attribute.String("status", "transcribed"|"filler"|"skipped"|"error")
	Chunks metric.Int64Counter

	// SummaryCycles counts summary scheduler ticks. Use with attribute:
	//   attribute.String("status", "updated"|"skipped"|"error")
	SummaryCycles metric.Int64Counter

	// SuggestionRefreshes counts suggestion refreshes. Use with attribute:
	//   attribute.String("outcome", "generated"|"short_circuit"|"superseded"|"error")
	SuggestionRefreshes metric.Int64Counter

	// --- Gauges ---

	// ActiveRecordings tracks the number of live recording sessions.
	ActiveRecordings metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// network round-trips to transcription and completion APIs.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscriptionDuration, err = m.Float64Histogram("kaigi.transcription.duration",
		metric.WithDescription("Latency of audio chunk transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SummaryDuration, err = m.Float64Histogram("kaigi.summary.duration",
		metric.WithDescription("Latency of summary generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SuggestionDuration, err = m.Float64Histogram("kaigi.suggestion.duration",
		metric.WithDescription("Latency of suggestion refreshes."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Chunks, err = m.Int64Counter("kaigi.chunks",
		metric.WithDescription("Total processed audio chunks by status."),
	); err != nil {
		return nil, err
	}
	if met.SummaryCycles, err = m.Int64Counter("kaigi.summary.cycles",
		metric.WithDescription("Total summary scheduler ticks by status."),
	); err != nil {
		return nil, err
	}
	if met.SuggestionRefreshes, err = m.Int64Counter("kaigi.suggestion.refreshes",
		metric.WithDescription("Total suggestion refreshes by outcome."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRecordings, err = m.Int64UpDownCounter("kaigi.active_recordings",
		metric.WithDescription("Number of live recording sessions."),
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

// RecordChunk records one processed audio chunk with the given status.
func (m *Metrics) RecordChunk(ctx context.Context, status string) {
	m.Chunks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordSummaryCycle records one summary scheduler tick with the given
// status.
func (m *Metrics) RecordSummaryCycle(ctx context.Context, status string) {
	m.SummaryCycles.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordSuggestionRefresh records one suggestion refresh with the given
// outcome.
func (m *Metrics) RecordSuggestionRefresh(ctx context.Context, outcome string) {
	m.SuggestionRefreshes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}
