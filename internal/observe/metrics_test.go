package observe

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, "transcribe", 2*time.Second)

	rm := collect(t, reader)
	md := findMetric(rm, "voxalign.stage.duration")
	if md == nil {
		t.Fatal("voxalign.stage.duration not found")
	}
	hist, ok := md.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1", len(hist.DataPoints))
	}
	if got := hist.DataPoints[0].Sum; got != 2.0 {
		t.Errorf("sum = %v, want 2.0", got)
	}
}

func TestRecordRunAndFallback(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRun(ctx, "whole", "ok")
	m.RecordRun(ctx, "whole", "ok")
	m.RecordFallback(ctx)

	rm := collect(t, reader)

	runs := findMetric(rm, "voxalign.pipeline.runs")
	if runs == nil {
		t.Fatal("voxalign.pipeline.runs not found")
	}
	sum, ok := runs.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", runs.Data)
	}
	if got := sum.DataPoints[0].Value; got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}

	if findMetric(rm, "voxalign.diarization.fallbacks") == nil {
		t.Fatal("voxalign.diarization.fallbacks not found")
	}
}
