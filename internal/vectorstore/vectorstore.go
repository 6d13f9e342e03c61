// Package vectorstore holds embedded LogEvent vectors for semantic neighbor
// search and backfill coverage probing.
package vectorstore

import (
	"context"
	"errors"
	"time"

	"github.com/mlidstrom/castellan/internal/event"
)

// ErrVectorStoreUnavailable is the transient-external error raised on
// transport failures. Callers decide whether to skip or retry.
var ErrVectorStoreUnavailable = errors.New("vectorstore: unavailable")

// Retention is the default window after which records are eligible for
// deletion by DeleteOlderThan24h.
const Retention = 24 * time.Hour

// Neighbor is one search hit: the stored LogEvent projection and its
// similarity score, monotone in cosine similarity.
type Neighbor struct {
	Event event.LogEvent
	Score float64
}

// Store is the vector store's operation set. Implementations own their
// records; callers receive copies, never references into internal state.
type Store interface {
	// EnsureCollection idempotently creates the collection with dimension D
	// and cosine distance. Safe to call repeatedly and concurrently.
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert inserts or overwrites the record keyed by evt.UniqueID.
	Upsert(ctx context.Context, evt event.LogEvent, vector []float32) error

	// BatchUpsert applies a set of upserts atomically from the caller's
	// perspective: either all are visible to a subsequent search or none
	// are, never a partial subset.
	BatchUpsert(ctx context.Context, items []UpsertItem) error

	// Search returns up to k nearest neighbors by descending cosine
	// similarity, ties broken by ascending UniqueID.
	Search(ctx context.Context, vector []float32, k int) ([]Neighbor, error)

	// Has24hCoverage reports whether the oldest stored record is at least
	// 24h old, i.e. backfill has covered a full day.
	Has24hCoverage(ctx context.Context) (bool, error)

	// DeleteOlderThan24h removes records older than now-24h. Safe to run
	// concurrently with Upsert/BatchUpsert.
	DeleteOlderThan24h(ctx context.Context) (int, error)
}

// UpsertItem pairs a LogEvent with its embedding for BatchUpsert.
type UpsertItem struct {
	Event  event.LogEvent
	Vector []float32
}
