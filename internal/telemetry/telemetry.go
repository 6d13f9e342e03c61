// Package telemetry instruments the pipeline with OpenTelemetry counters
// and histograms, exposing a plain-struct snapshot so callers never need to
// import the metric SDK themselves.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/mlidstrom/castellan/internal/pipeline"

// Snapshot is a point-in-time read of the pipeline's operational counters,
// matching the fields surfaced by a metrics_snapshot call.
type Snapshot struct {
	EventsIn              int64
	EventsPersisted       int64
	EventsDropped         map[string]int64
	SemaphoreAcquires     int64
	SemaphoreTimeouts     int64
	BatchFlushes          int64
	LLMFailures           int64
	AvgStageLatencyMillis float64
	EventsPerSecond       float64
}

// Meter owns the OpenTelemetry instruments backing a pipeline run. It wraps
// a manual reader so Snapshot can be computed on demand without standing up
// a push exporter.
type Meter struct {
	reader *sdkmetric.ManualReader

	eventsIn          metric.Int64Counter
	eventsPersisted   metric.Int64Counter
	eventsDropped     metric.Int64Counter
	semaphoreAcquires metric.Int64Counter
	semaphoreTimeouts metric.Int64Counter
	batchFlushes      metric.Int64Counter
	llmFailures       metric.Int64Counter
	stageLatency      metric.Float64Histogram
}

// NewMeter builds a Meter with its own manual reader and provider, isolated
// from any global OpenTelemetry registration.
func NewMeter() (*Meter, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter(meterName)

	m := &Meter{reader: reader}

	var err error

	if m.eventsIn, err = meter.Int64Counter("castellan.pipeline.events_in",
		metric.WithDescription("Events received from the collector stream")); err != nil {
		return nil, fmt.Errorf("telemetry: create events_in counter: %w", err)
	}

	if m.eventsPersisted, err = meter.Int64Counter("castellan.pipeline.events_persisted",
		metric.WithDescription("Events written to the event store")); err != nil {
		return nil, fmt.Errorf("telemetry: create events_persisted counter: %w", err)
	}

	if m.eventsDropped, err = meter.Int64Counter("castellan.pipeline.events_dropped",
		metric.WithDescription("Events dropped, labeled by reason")); err != nil {
		return nil, fmt.Errorf("telemetry: create events_dropped counter: %w", err)
	}

	if m.semaphoreAcquires, err = meter.Int64Counter("castellan.pipeline.semaphore_acquires",
		metric.WithDescription("Successful semaphore acquisitions")); err != nil {
		return nil, fmt.Errorf("telemetry: create semaphore_acquires counter: %w", err)
	}

	if m.semaphoreTimeouts, err = meter.Int64Counter("castellan.pipeline.semaphore_timeouts",
		metric.WithDescription("Semaphore acquisitions that timed out")); err != nil {
		return nil, fmt.Errorf("telemetry: create semaphore_timeouts counter: %w", err)
	}

	if m.batchFlushes, err = meter.Int64Counter("castellan.pipeline.batch_flushes",
		metric.WithDescription("Vector upsert batch flushes")); err != nil {
		return nil, fmt.Errorf("telemetry: create batch_flushes counter: %w", err)
	}

	if m.llmFailures, err = meter.Int64Counter("castellan.pipeline.llm_failures",
		metric.WithDescription("LLM analyze calls that failed (timeout, transport, malformed response)")); err != nil {
		return nil, fmt.Errorf("telemetry: create llm_failures counter: %w", err)
	}

	if m.stageLatency, err = meter.Float64Histogram("castellan.pipeline.stage_latency",
		metric.WithDescription("Per-stage processing latency"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("telemetry: create stage_latency histogram: %w", err)
	}

	m.trackStart()

	return m, nil
}

// RecordEventIn increments the events_in counter.
func (m *Meter) RecordEventIn(ctx context.Context) {
	m.eventsIn.Add(ctx, 1)
}

// RecordPersisted increments the events_persisted counter.
func (m *Meter) RecordPersisted(ctx context.Context) {
	m.eventsPersisted.Add(ctx, 1)
}

// RecordDropped increments events_dropped for the given reason.
func (m *Meter) RecordDropped(ctx context.Context, reason string) {
	m.eventsDropped.Add(ctx, 1, metric.WithAttributes(reasonAttr(reason)))
}

// RecordSemaphoreAcquire increments semaphore_acquires.
func (m *Meter) RecordSemaphoreAcquire(ctx context.Context) {
	m.semaphoreAcquires.Add(ctx, 1)
}

// RecordSemaphoreTimeout increments semaphore_timeouts.
func (m *Meter) RecordSemaphoreTimeout(ctx context.Context) {
	m.semaphoreTimeouts.Add(ctx, 1)
}

// RecordBatchFlush increments batch_flushes.
func (m *Meter) RecordBatchFlush(ctx context.Context) {
	m.batchFlushes.Add(ctx, 1)
}

// RecordLLMFailure increments llm_failures.
func (m *Meter) RecordLLMFailure(ctx context.Context) {
	m.llmFailures.Add(ctx, 1)
}

// RecordStageLatency records a stage's duration in milliseconds.
func (m *Meter) RecordStageLatency(ctx context.Context, stage string, millis float64) {
	m.stageLatency.Record(ctx, millis, metric.WithAttributes(stageAttr(stage)))
}
