package observe

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the satellite's instruments. All additive instrumentation:
// no testable property depends on it, and every method below is safe to
// call on a nil *Metrics or on one whose instruments failed to register.
type Metrics struct {
	provider *sdkmetric.MeterProvider

	classifierScore  metric.Float64Histogram
	detections       metric.Int64Counter
	framesProcessed  metric.Int64Counter
	activeConns      metric.Int64UpDownCounter
	playbackDuration metric.Float64Histogram
}

// NewMetrics builds a Prometheus-backed MeterProvider and registers the
// satellite's instruments: wake.classifier.score, wake.detections.total,
// wake.frames.processed, satellite.connections.active, and
// satellite.playback.duration.
func NewMetrics() (*Metrics, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return &Metrics{}, fmt.Errorf("observe: new prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("wake-satellite")

	m := &Metrics{provider: provider}
	m.classifierScore, _ = meter.Float64Histogram("wake.classifier.score")
	m.detections, _ = meter.Int64Counter("wake.detections.total")
	m.framesProcessed, _ = meter.Int64Counter("wake.frames.processed")
	m.activeConns, _ = meter.Int64UpDownCounter("satellite.connections.active")
	m.playbackDuration, _ = meter.Float64Histogram("satellite.playback.duration")
	return m, nil
}

func (m *Metrics) ObserveScore(ctx context.Context, score float64) {
	if m == nil || m.classifierScore == nil {
		return
	}
	m.classifierScore.Record(ctx, score)
}

func (m *Metrics) RecordDetection(ctx context.Context) {
	if m == nil || m.detections == nil {
		return
	}
	m.detections.Add(ctx, 1)
}

func (m *Metrics) RecordFrameProcessed(ctx context.Context) {
	if m == nil || m.framesProcessed == nil {
		return
	}
	m.framesProcessed.Add(ctx, 1)
}

func (m *Metrics) ConnectionOpened(ctx context.Context) {
	if m == nil || m.activeConns == nil {
		return
	}
	m.activeConns.Add(ctx, 1)
}

func (m *Metrics) ConnectionClosed(ctx context.Context) {
	if m == nil || m.activeConns == nil {
		return
	}
	m.activeConns.Add(ctx, -1)
}

func (m *Metrics) ObservePlaybackDuration(ctx context.Context, seconds float64) {
	if m == nil || m.playbackDuration == nil {
		return
	}
	m.playbackDuration.Record(ctx, seconds)
}

// Shutdown flushes and releases the meter provider. Safe to call on a
// Metrics returned from a failed NewMetrics.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
