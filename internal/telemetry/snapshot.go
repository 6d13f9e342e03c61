package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func reasonAttr(reason string) attribute.KeyValue { return attribute.String("reason", reason) }
func stageAttr(stage string) attribute.KeyValue   { return attribute.String("stage", stage) }

// startTimes tracks each Meter's creation time so Snapshot can derive a
// cumulative events_per_second rate without a second background goroutine.
var startTimes sync.Map // *Meter -> time.Time

func (m *Meter) trackStart() {
	startTimes.Store(m, time.Now())
}

// Snapshot collects the current state of every instrument into a plain
// struct. It is safe to call repeatedly; each call triggers a fresh collect
// against the manual reader.
func (m *Meter) Snapshot(ctx context.Context) (Snapshot, error) {
	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{EventsDropped: make(map[string]int64)}

	var latencySum float64

	var latencyCount int64

	for _, sm := range rm.ScopeMetrics {
		for _, metricData := range sm.Metrics {
			switch data := metricData.Data.(type) {
			case metricdata.Sum[int64]:
				total := sumInt64(data)

				switch metricData.Name {
				case "castellan.pipeline.events_in":
					snap.EventsIn = total
				case "castellan.pipeline.events_persisted":
					snap.EventsPersisted = total
				case "castellan.pipeline.semaphore_acquires":
					snap.SemaphoreAcquires = total
				case "castellan.pipeline.semaphore_timeouts":
					snap.SemaphoreTimeouts = total
				case "castellan.pipeline.batch_flushes":
					snap.BatchFlushes = total
				case "castellan.pipeline.llm_failures":
					snap.LLMFailures = total
				case "castellan.pipeline.events_dropped":
					for _, dp := range data.DataPoints {
						reason, _ := dp.Attributes.Value(attribute.Key("reason"))
						snap.EventsDropped[reason.AsString()] += dp.Value
					}
				}
			case metricdata.Histogram[float64]:
				if metricData.Name == "castellan.pipeline.stage_latency" {
					for _, dp := range data.DataPoints {
						latencySum += dp.Sum
						latencyCount += int64(dp.Count)
					}
				}
			}
		}
	}

	if latencyCount > 0 {
		snap.AvgStageLatencyMillis = latencySum / float64(latencyCount)
	}

	if start, ok := startTimes.Load(m); ok {
		elapsed := time.Since(start.(time.Time)).Seconds()
		if elapsed > 0 {
			snap.EventsPerSecond = float64(snap.EventsIn) / elapsed
		}
	}

	return snap, nil
}

func sumInt64(data metricdata.Sum[int64]) int64 {
	var total int64
	for _, dp := range data.DataPoints {
		total += dp.Value
	}

	return total
}
