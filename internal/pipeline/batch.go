package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mlidstrom/castellan/internal/telemetry"
	"github.com/mlidstrom/castellan/internal/vectorstore"
)

// vectorBatch accumulates UpsertItems and flushes them atomically via
// BatchUpsert, either when it reaches size or when timeout elapses since
// the first arrival in the current fill — the Empty -> Filling -> Flushing
// -> Empty cycle. A flush swaps the buffer out under lock and calls
// BatchUpsert outside the lock, so arrivals during a flush start a fresh
// Filling buffer rather than blocking on the in-flight write.
type vectorBatch struct {
	mu      sync.Mutex
	items   []vectorstore.UpsertItem
	timer   *time.Timer
	size    int
	timeout time.Duration

	store  vectorstore.Store
	meter  *telemetry.Meter
	logger *slog.Logger
}

func newVectorBatch(store vectorstore.Store, size int, timeout time.Duration, meter *telemetry.Meter, logger *slog.Logger) *vectorBatch {
	if size <= 0 {
		size = 1
	}

	return &vectorBatch{
		size:    size,
		timeout: timeout,
		store:   store,
		meter:   meter,
		logger:  logger,
	}
}

// Add appends item to the current fill, flushing immediately if it reaches
// size, and arming a flush timer on the first arrival otherwise.
func (b *vectorBatch) Add(ctx context.Context, item vectorstore.UpsertItem) {
	b.mu.Lock()
	b.items = append(b.items, item)
	full := len(b.items) >= b.size

	if len(b.items) == 1 && !full && b.timeout > 0 {
		b.timer = time.AfterFunc(b.timeout, func() { b.Flush(context.Background()) })
	}
	b.mu.Unlock()

	if full {
		b.Flush(ctx)
	}
}

// Flush swaps out the current fill and writes it via BatchUpsert. A flush
// of an empty buffer is a no-op, so shutdown can call Flush unconditionally.
func (b *vectorBatch) Flush(ctx context.Context) {
	b.mu.Lock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}

	items := b.items
	b.items = nil
	b.mu.Unlock()

	if len(items) == 0 {
		return
	}

	if err := b.store.BatchUpsert(ctx, items); err != nil {
		b.logger.Warn("vector batch upsert failed", "error", err, "count", len(items))

		return
	}

	if b.meter != nil {
		b.meter.RecordBatchFlush(ctx)
	}
}
