package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mlidstrom/castellan/internal/event"
)

// record is the store's internal representation of one vector entry.
type record struct {
	evt    event.LogEvent
	vector []float32
}

// InMemoryStore is a cosine-similarity nearest-neighbor index guarded by a
// single RWMutex, with a copy-on-read discipline: callers always get copies,
// never references into records.
//
// The Store interface is abstract about its persistence medium; an
// in-memory index is a faithful, complete implementation of every
// operation it requires.
type InMemoryStore struct {
	mu        sync.RWMutex
	dimension int
	ensured   bool
	records   map[string]record // keyed by unique_id

	ensureGroup singleflight.Group

	// clock is overridable for deterministic retention tests.
	clock func() time.Time
}

// NewInMemoryStore returns an empty store. EnsureCollection must be called
// before Upsert/Search per the collection-lifecycle contract.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]record), clock: time.Now}
}

// SetClock overrides the store's notion of now, for deterministic retention
// and coverage tests. Not for production use.
func (s *InMemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clock = clock
}

// EnsureCollection is idempotent; concurrent callers collapse onto one
// underlying creation via singleflight, mirroring how the pipeline's
// startup path and any retrying caller can both invoke it safely.
func (s *InMemoryStore) EnsureCollection(ctx context.Context, dimension int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err, _ := s.ensureGroup.Do("ensure", func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.dimension = dimension
		s.ensured = true

		return nil, nil
	})

	return err
}

// Upsert implements Store.
func (s *InMemoryStore) Upsert(ctx context.Context, evt event.LogEvent, vector []float32) error {
	return s.BatchUpsert(ctx, []UpsertItem{{Event: evt, Vector: vector}})
}

// BatchUpsert implements Store. The lock is held for the whole batch so a
// search issued after BatchUpsert returns always observes every item in it:
// upsert linearizes strictly before any subsequent search.
func (s *InMemoryStore) BatchUpsert(ctx context.Context, items []UpsertItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		vecCopy := make([]float32, len(item.Vector))
		copy(vecCopy, item.Vector)

		s.records[item.Event.UniqueID] = record{evt: item.Event, vector: vecCopy}
	}

	return nil
}

// Search implements Store.
func (s *InMemoryStore) Search(ctx context.Context, vector []float32, k int) ([]Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	neighbors := make([]Neighbor, 0, len(s.records))

	for _, r := range s.records {
		neighbors = append(neighbors, Neighbor{Event: r.evt, Score: cosineSimilarity(vector, r.vector)})
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Score != neighbors[j].Score {
			return neighbors[i].Score > neighbors[j].Score
		}

		return neighbors[i].Event.UniqueID < neighbors[j].Event.UniqueID
	})

	if k >= 0 && len(neighbors) > k {
		neighbors = neighbors[:k]
	}

	return neighbors, nil
}

// Has24hCoverage implements Store.
func (s *InMemoryStore) Has24hCoverage(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return false, nil
	}

	oldest := s.oldestLocked()

	return s.clock().Sub(oldest) >= Retention, nil
}

// DeleteOlderThan24h implements Store.
func (s *InMemoryStore) DeleteOlderThan24h(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cutoff := s.clock().Add(-Retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0

	for key, r := range s.records {
		if r.evt.Timestamp.Before(cutoff) {
			delete(s.records, key)
			deleted++
		}
	}

	return deleted, nil
}

// oldestLocked returns the oldest record's timestamp. Caller must hold mu.
func (s *InMemoryStore) oldestLocked() (oldest time.Time) {
	first := true

	for _, r := range s.records {
		if first || r.evt.Timestamp.Before(oldest) {
			oldest = r.evt.Timestamp
			first = false
		}
	}

	return oldest
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
