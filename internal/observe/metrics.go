// Package observe provides application-wide observability primitives for
// VoxAlign: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all VoxAlign metrics.
const meterName = "github.com/nocturneflow/voxalign"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// StageDuration tracks per-stage pipeline latency. Use with attribute:
	//   attribute.String("stage", "diarize"|"transcribe"|"polish"|"emotion"|"assemble")
	StageDuration metric.Float64Histogram

	// PipelineRuns counts completed pipeline runs. Use with attributes:
	//   attribute.String("path", ...), attribute.String("status", ...)
	PipelineRuns metric.Int64Counter

	// DiarizationFallbacks counts diarization failures downgraded to
	// whole-file transcription.
	DiarizationFallbacks metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ActiveRequests tracks the number of transcription requests currently
	// inside the pipeline.
	ActiveRequests metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Batch
// transcription stages run from sub-second (short clips, cached models) to
// minutes (long recordings through a diarizer).
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("voxalign.stage.duration",
		metric.WithDescription("Latency of individual pipeline stages."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PipelineRuns, err = m.Int64Counter("voxalign.pipeline.runs",
		metric.WithDescription("Total pipeline runs by path and status."),
	); err != nil {
		return nil, err
	}
	if met.DiarizationFallbacks, err = m.Int64Counter("voxalign.diarization.fallbacks",
		metric.WithDescription("Diarization failures downgraded to whole-file transcription."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("voxalign.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveRequests, err = m.Int64UpDownCounter("voxalign.active_requests",
		metric.WithDescription("Transcription requests currently being processed."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxalign.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordStage records a stage-latency observation.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(Attr("stage", stage)),
	)
}

// RecordRun records a completed pipeline run.
func (m *Metrics) RecordRun(ctx context.Context, path, status string) {
	m.PipelineRuns.Add(ctx, 1,
		metric.WithAttributes(
			Attr("path", path),
			Attr("status", status),
		),
	)
}

// RecordFallback records a diarization→whole-file downgrade.
func (m *Metrics) RecordFallback(ctx context.Context) {
	m.DiarizationFallbacks.Add(ctx, 1)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			Attr("provider", provider),
			Attr("kind", kind),
		),
	)
}
