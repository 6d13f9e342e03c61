// Package eventstore is the append-only persistence and read API for
// accepted SecurityEvents.
package eventstore

import (
	"context"

	"github.com/mlidstrom/castellan/internal/event"
)

// StoreResult reports the outcome of a single Append, mirroring the
// distinction a batch API needs between "newly written" and "already
// present" so a caller can report partial-success accounting without
// treating idempotency hits as errors.
type StoreResult struct {
	Event     event.SecurityEvent
	Stored    bool
	Duplicate bool
	Error     error
}

// TimeRangeQuery filters Query results.
type TimeRangeQuery struct {
	From, To   int64 // unix nanoseconds; zero means unbounded on that side
	EventType  *event.EventType
	RiskLevel  *event.RiskLevel
	Limit      int
	Offset     int
}

// Store is append-only, keyed by SecurityEvent.ID. Duplicate writes are
// discarded (first writer wins). Writes are O(1) amortized; the interface
// is safe for concurrent readers and writers and makes no assumption about
// the caller's concurrency model (sync or async).
type Store interface {
	// Append writes se if its ID has not been seen before. Stored=false,
	// Duplicate=true signals an idempotency hit, not an error.
	Append(ctx context.Context, se event.SecurityEvent) StoreResult

	// AppendBatch applies Append per-event, reporting per-event results so
	// one bad event never blocks the rest of a batch.
	AppendBatch(ctx context.Context, events []event.SecurityEvent) []StoreResult

	// Get reads a single SecurityEvent by ID.
	Get(ctx context.Context, id string) (event.SecurityEvent, bool, error)

	// Query reads events by time range with optional event_type/risk_level
	// filters, paginated by Limit/Offset.
	Query(ctx context.Context, q TimeRangeQuery) ([]event.SecurityEvent, error)

	// Count returns the total number of stored events.
	Count(ctx context.Context) (int, error)
}
