// Package observe provides the OpenTelemetry metrics and tracing used by the
// streaming transcriber. Metrics are scraped through the Prometheus exporter
// bridge installed by InitProvider. Tests should build their own Metrics with
// NewMetrics and a ManualReader backed provider.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all whisperstream metrics.
const meterName = "github.com/obiente/translate/whisperstream"

// Metrics holds the instruments recorded by sessions.
type Metrics struct {
	// InferenceDuration tracks wall-clock time of each model call, in seconds.
	InferenceDuration metric.Float64Histogram

	// Iterations counts loop iterations that ran inference.
	Iterations metric.Int64Counter

	// Messages counts emitted transcription messages. Attribute "partial".
	Messages metric.Int64Counter

	// DroppedFrames counts producer frames discarded before ingestion.
	// Attribute "reason": "resample" or "silence".
	DroppedFrames metric.Int64Counter

	// Overloads counts iterations whose backlog exceeded twice the
	// iteration threshold.
	Overloads metric.Int64Counter

	// InferenceErrors counts failed or skipped inference calls.
	// Attribute "kind": "not_loaded" or "failed".
	InferenceErrors metric.Int64Counter

	// ActiveSessions tracks listening sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets are histogram boundaries in seconds sized for batch inference.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.InferenceDuration, err = m.Float64Histogram("whisperstream.inference.duration",
		metric.WithDescription("Latency of a whisper inference call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Iterations, err = m.Int64Counter("whisperstream.iterations",
		metric.WithDescription("Segmentation loop iterations that ran inference."),
	); err != nil {
		return nil, err
	}
	if met.Messages, err = m.Int64Counter("whisperstream.messages",
		metric.WithDescription("Transcription messages emitted, by partial flag."),
	); err != nil {
		return nil, err
	}
	if met.DroppedFrames, err = m.Int64Counter("whisperstream.dropped_frames",
		metric.WithDescription("Audio frames dropped before ingestion, by reason."),
	); err != nil {
		return nil, err
	}
	if met.Overloads, err = m.Int64Counter("whisperstream.overloads",
		metric.WithDescription("Iterations whose pending audio exceeded twice the iteration threshold."),
	); err != nil {
		return nil, err
	}
	if met.InferenceErrors, err = m.Int64Counter("whisperstream.inference.errors",
		metric.WithDescription("Skipped or failed inference calls, by kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("whisperstream.active_sessions",
		metric.WithDescription("Number of listening sessions."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level Metrics built on the global
// meter provider. Panics if instrument creation fails.
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

// RecordMessage counts one emitted message.
func (m *Metrics) RecordMessage(ctx context.Context, partial bool) {
	m.Messages.Add(ctx, 1, metric.WithAttributes(attribute.Bool("partial", partial)))
}

// RecordDroppedFrame counts one frame discarded for reason.
func (m *Metrics) RecordDroppedFrame(ctx context.Context, reason string) {
	m.DroppedFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordInferenceError counts one skipped or failed inference.
func (m *Metrics) RecordInferenceError(ctx context.Context, kind string) {
	m.InferenceErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
