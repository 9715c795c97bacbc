package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/trusttai/api/internal/sse"
)

// StreamMetrics records event stream activity. It satisfies sse.Metrics.
type StreamMetrics struct {
	active  metric.Int64UpDownCounter
	opened  metric.Int64Counter
	written metric.Int64Counter
	dropped metric.Int64Counter
}

var _ sse.Metrics = (*StreamMetrics)(nil)

func NewStreamMetrics(mp metric.MeterProvider) (*StreamMetrics, error) {
	meter := mp.Meter(instrumentationName)

	active, err := meter.Int64UpDownCounter("trusttai.sse.streams.active",
		metric.WithDescription("Open admin event streams"))
	if err != nil {
		return nil, fmt.Errorf("creating active streams counter: %w", err)
	}
	opened, err := meter.Int64Counter("trusttai.sse.streams.opened",
		metric.WithDescription("Admin event streams opened"))
	if err != nil {
		return nil, fmt.Errorf("creating opened streams counter: %w", err)
	}
	written, err := meter.Int64Counter("trusttai.sse.frames.written",
		metric.WithDescription("Frames written to admin event streams"))
	if err != nil {
		return nil, fmt.Errorf("creating frames counter: %w", err)
	}
	dropped, err := meter.Int64Counter("trusttai.sse.events.dropped",
		metric.WithDescription("Events not delivered because a stream buffer was full"))
	if err != nil {
		return nil, fmt.Errorf("creating dropped events counter: %w", err)
	}

	return &StreamMetrics{active: active, opened: opened, written: written, dropped: dropped}, nil
}

func (m *StreamMetrics) StreamOpened() {
	m.active.Add(context.Background(), 1)
	m.opened.Add(context.Background(), 1)
}

func (m *StreamMetrics) StreamClosed() {
	m.active.Add(context.Background(), -1)
}

func (m *StreamMetrics) FrameWritten(kind sse.Kind) {
	m.written.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", string(kind))))
}

func (m *StreamMetrics) EventDropped(kind sse.Kind) {
	m.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", string(kind))))
}
