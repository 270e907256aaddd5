package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

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

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

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

func TestInferenceDurationHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.InferenceDuration.Record(ctx, 0.2)
	m.InferenceDuration.Record(ctx, 1.4)

	met := findMetric(collect(t, reader), "whisperstream.inference.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 2 {
		t.Errorf("data points = %+v", hist.DataPoints)
	}
}

func TestRecordMessage_ByPartialFlag(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.RecordMessage(ctx, true)
	m.RecordMessage(ctx, true)
	m.RecordMessage(ctx, false)

	met := findMetric(collect(t, reader), "whisperstream.messages")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	got := map[bool]int64{}
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == "partial" {
				got[kv.Value.AsBool()] = dp.Value
			}
		}
	}
	if got[true] != 2 || got[false] != 1 {
		t.Errorf("counts = %v, want partial=2 final=1", got)
	}
}

func TestRecordDroppedFrame(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordDroppedFrame(context.Background(), "silence")

	met := findMetric(collect(t, reader), "whisperstream.dropped_frames")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum := met.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("data points = %+v", sum.DataPoints)
	}
	reason, ok := sum.DataPoints[0].Attributes.Value("reason")
	if !ok || reason.AsString() != "silence" {
		t.Errorf("reason = %v", reason)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
