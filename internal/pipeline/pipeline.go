// Package pipeline is the orchestrator that merges collector streams and
// drives every event through enrichment, detection, embedding, correlation,
// fusion, and persistence under a bounded concurrency budget.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mlidstrom/castellan/internal/collector"
	"github.com/mlidstrom/castellan/internal/config"
	"github.com/mlidstrom/castellan/internal/correlation"
	"github.com/mlidstrom/castellan/internal/embedding"
	"github.com/mlidstrom/castellan/internal/enrichment"
	"github.com/mlidstrom/castellan/internal/eventstore"
	"github.com/mlidstrom/castellan/internal/ignore"
	"github.com/mlidstrom/castellan/internal/llmclient"
	"github.com/mlidstrom/castellan/internal/telemetry"
	"github.com/mlidstrom/castellan/internal/vectorstore"
)

// State is the orchestrator's lifecycle position.
type State int

// Lifecycle states, matching the Idle -> Initializing -> Running ->
// Draining -> Stopped progression. Transitions driven by Start/Stop are
// idempotent: calling Start while Running, or Stop while Stopped, is a
// no-op.
const (
	StateIdle State = iota
	StateInitializing
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const retentionSweepInterval = time.Hour

const searchK = 8

// Dependencies bundles every component the orchestrator drives. All fields
// are required except Meter, which is optional (nil disables metrics).
type Dependencies struct {
	Embedder    embedding.Embedder
	VectorStore vectorstore.Store
	LLMClient   llmclient.Client
	Enricher    *enrichment.Enricher
	Correlation *correlation.Engine
	Ignore      *ignore.Service
	EventStore  eventstore.Store
	Meter       *telemetry.Meter
	Logger      *slog.Logger
}

// Orchestrator is the single instance driving the pipeline's main control
// flow (ensure collection, stream merge, per-event stages, retention,
// graceful shutdown).
type Orchestrator struct {
	cfg  *config.Snapshot
	deps Dependencies

	mu    sync.Mutex
	state State

	sem   *semaphore
	batch *vectorBatch

	cancel        context.CancelFunc
	wg            sync.WaitGroup
	retentionDone chan struct{}
}

// New constructs an Orchestrator. cfg is the live configuration snapshot;
// the orchestrator re-reads it at the start of every event, so a
// Reconfigure takes effect for the next event without a restart (with the
// exception of the semaphore's capacity and the vector batch's size and
// timeout, which are fixed at Start and rebuilt only when the orchestrator
// restarts).
func New(cfg *config.Snapshot, deps Dependencies) *Orchestrator {
	return &Orchestrator{cfg: cfg, deps: deps, state: StateIdle}
}

// State reports the orchestrator's current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state
}

// Start ensures the vector collection exists, begins the hourly retention
// sweep, and begins consuming cs via a merged stream. Start returns once
// the pipeline is accepting events; processing continues in background
// goroutines until Stop is called.
func (o *Orchestrator) Start(ctx context.Context, bufSize int, cs ...collector.Collector) error {
	o.mu.Lock()

	if o.state == StateRunning || o.state == StateInitializing {
		o.mu.Unlock()

		return nil
	}

	o.state = StateInitializing
	o.mu.Unlock()

	live := o.cfg.Current()

	if err := o.deps.VectorStore.EnsureCollection(ctx, o.deps.Embedder.Dimension()); err != nil {
		return err
	}

	covered, err := o.deps.VectorStore.Has24hCoverage(ctx)
	if err != nil {
		o.deps.Logger.Warn("24h coverage probe failed", "error", err)
	} else if !covered {
		o.deps.Logger.Info("vector store lacks 24h coverage, relying on historical collectors to backfill")
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.sem = newSemaphore(live.MaxConcurrentTasks)
	o.batch = newVectorBatch(o.deps.VectorStore, live.VectorBatchSize, live.VectorBatchTimeout, o.deps.Meter, o.deps.Logger)
	o.retentionDone = make(chan struct{})

	stream, err := collector.Merge(runCtx, bufSize, cs...)
	if err != nil {
		cancel()

		return err
	}

	o.mu.Lock()
	o.state = StateRunning
	o.mu.Unlock()

	o.wg.Add(1)

	go o.runRetentionSweep(runCtx)

	o.wg.Add(1)

	go o.consume(runCtx, stream)

	return nil
}

// Stop transitions the orchestrator through Draining to Stopped: it stops
// accepting new events, waits up to drainTimeout for in-flight event
// processing to finish, force-flushes the vector batch buffer under the
// configured BatchFlushCap, and tears down the retention sweep.
func (o *Orchestrator) Stop(drainTimeout time.Duration) {
	o.mu.Lock()

	if o.state == StateDraining || o.state == StateStopped || o.state == StateIdle {
		o.mu.Unlock()

		return
	}

	o.state = StateDraining
	cancel := o.cancel
	o.mu.Unlock()

	cancel()

	done := make(chan struct{})

	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		o.deps.Logger.Warn("drain timeout exceeded, flushing with in-flight work outstanding", "timeout", drainTimeout)
	}

	flushCap := o.cfg.Current().BatchFlushCap
	if flushCap <= 0 {
		flushCap = defaultBatchFlushCap
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), flushCap)
	o.batch.Flush(flushCtx)
	flushCancel()

	o.mu.Lock()
	o.state = StateStopped
	o.mu.Unlock()
}

// defaultBatchFlushCap backstops Stop's force-flush when config yields a
// non-positive BatchFlushCap.
const defaultBatchFlushCap = 5 * time.Second

// MetricsSnapshot returns the current telemetry snapshot, or a zero value
// if no Meter was configured.
func (o *Orchestrator) MetricsSnapshot(ctx context.Context) (telemetry.Snapshot, error) {
	if o.deps.Meter == nil {
		return telemetry.Snapshot{}, nil
	}

	return o.deps.Meter.Snapshot(ctx)
}

func (o *Orchestrator) runRetentionSweep(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := o.deps.VectorStore.DeleteOlderThan24h(ctx)
			if err != nil {
				o.deps.Logger.Warn("retention sweep failed", "error", err)

				continue
			}

			if n > 0 {
				o.deps.Logger.Info("retention sweep removed stale vector records", "count", n)
			}
		}
	}
}

func (o *Orchestrator) consume(ctx context.Context, stream <-chan collector.Record) {
	defer o.wg.Done()

	var processed int64

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-stream:
			if !ok {
				return
			}

			if rec.Err != nil {
				o.deps.Logger.Warn("collector record error, skipping", "error", rec.Err)

				continue
			}

			live := o.cfg.Current()

			if live.EnableSemaphoreThrottling {
				if !o.sem.acquire(ctx, live.SemaphoreTimeout) {
					if o.deps.Meter != nil {
						o.deps.Meter.RecordSemaphoreTimeout(ctx)
					}

					if live.SkipOnThrottleTimeout {
						o.deps.Logger.Debug("semaphore acquire timed out, skipping event", "unique_id", rec.Event.UniqueID)

						continue
					}

					o.deps.Logger.Warn("semaphore acquire timed out, dropping event", "unique_id", rec.Event.UniqueID)
					o.recordDrop(ctx, "throttle_timeout")

					continue
				}

				if o.deps.Meter != nil {
					o.deps.Meter.RecordSemaphoreAcquire(ctx)
				}
			}

			if o.deps.Meter != nil {
				o.deps.Meter.RecordEventIn(ctx)
			}

			o.wg.Add(1)

			go func(evt collector.Record) {
				defer o.wg.Done()

				if live.EnableSemaphoreThrottling {
					defer o.sem.release()
				}

				o.processEvent(ctx, evt.Event, live)
			}(rec)

			processed++

			if processed%10 == 0 {
				o.emitMetricsLog(ctx)
			}
		}
	}
}

func (o *Orchestrator) emitMetricsLog(ctx context.Context) {
	if o.deps.Meter == nil {
		return
	}

	snap, err := o.deps.Meter.Snapshot(ctx)
	if err != nil {
		return
	}

	o.deps.Logger.Info("pipeline metrics",
		"events_in", snap.EventsIn,
		"events_persisted", snap.EventsPersisted,
		"events_per_second", snap.EventsPerSecond,
	)
}

func (o *Orchestrator) recordDrop(ctx context.Context, reason string) {
	if o.deps.Meter != nil {
		o.deps.Meter.RecordDropped(ctx, reason)
	}
}
