// Package observe provides the OpenTelemetry metrics of the detection loop
// and the HTTP server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped
// through a Prometheus exporter set up by [InitProvider]. Tests should use
// [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"time"

	"livedetect/internal/dto"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of all metrics.
const meterName = "livedetect"

// Metrics holds the metric instruments. Safe for concurrent use.
type Metrics struct {
	// CaptureDuration tracks the browser capture round trip.
	CaptureDuration metric.Float64Histogram

	// InferenceDuration tracks one model forward pass plus suppression.
	InferenceDuration metric.Float64Histogram

	// Frames counts capture attempts. Attribute: status=ok|failed.
	Frames metric.Int64Counter

	// Detections counts boxes shown on screen. Attribute: label.
	Detections metric.Int64Counter

	// EncodeFailures counts frames that could not be shown.
	EncodeFailures metric.Int64Counter

	// LoopOutcomes counts finished loops. Attribute: state.
	LoopOutcomes metric.Int64Counter

	// HTTPRequestDuration tracks HTTP handlers. Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are in seconds. Captures can wait on a permission prompt.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CaptureDuration, err = m.Float64Histogram("livedetect.capture.duration",
		metric.WithDescription("Latency of one browser webcam capture."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InferenceDuration, err = m.Float64Histogram("livedetect.inference.duration",
		metric.WithDescription("Latency of object detection on one frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Frames, err = m.Int64Counter("livedetect.frames",
		metric.WithDescription("Capture attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("livedetect.detections",
		metric.WithDescription("Detected objects by label."),
	); err != nil {
		return nil, err
	}
	if met.EncodeFailures, err = m.Int64Counter("livedetect.encode.failures",
		metric.WithDescription("Frames dropped because encoding failed."),
	); err != nil {
		return nil, err
	}
	if met.LoopOutcomes, err = m.Int64Counter("livedetect.loop.outcomes",
		metric.WithDescription("Finished detection loops by final state."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("livedetect.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func (m *Metrics) RecordCapture(ctx context.Context, d time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.CaptureDuration.Record(ctx, d.Seconds())
	m.Frames.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) RecordInference(ctx context.Context, d time.Duration, detections []dto.DetectionResult) {
	m.InferenceDuration.Record(ctx, d.Seconds())
	for _, detection := range detections {
		m.Detections.Add(ctx, 1, metric.WithAttributes(attribute.String("label", detection.Label)))
	}
}

func (m *Metrics) RecordEncodeFailure(ctx context.Context) {
	m.EncodeFailures.Add(ctx, 1)
}

func (m *Metrics) RecordOutcome(ctx context.Context, state string) {
	m.LoopOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}
