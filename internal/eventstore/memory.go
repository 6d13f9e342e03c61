package eventstore

import (
	"context"
	"sort"
	"sync"

	"github.com/mlidstrom/castellan/internal/event"
)

// InMemoryStore is a RWMutex-guarded append log plus an ID index, in the
// same copy-on-read discipline as the vector store: readers get copies,
// never references into the store's backing slice.
type InMemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]int // ID -> index into events
	events []event.SecurityEvent
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[string]int)}
}

// Append implements Store.
func (s *InMemoryStore) Append(ctx context.Context, se event.SecurityEvent) StoreResult {
	if err := ctx.Err(); err != nil {
		return StoreResult{Event: se, Error: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[se.ID]; exists {
		return StoreResult{Event: se, Duplicate: true}
	}

	s.byID[se.ID] = len(s.events)
	s.events = append(s.events, se)

	return StoreResult{Event: se, Stored: true}
}

// AppendBatch implements Store.
func (s *InMemoryStore) AppendBatch(ctx context.Context, events []event.SecurityEvent) []StoreResult {
	results := make([]StoreResult, len(events))

	for i, se := range events {
		results[i] = s.Append(ctx, se)
	}

	return results
}

// Get implements Store.
func (s *InMemoryStore) Get(ctx context.Context, id string) (event.SecurityEvent, bool, error) {
	if err := ctx.Err(); err != nil {
		return event.SecurityEvent{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return event.SecurityEvent{}, false, nil
	}

	return s.events[idx], true, nil
}

// Query implements Store.
func (s *InMemoryStore) Query(ctx context.Context, q TimeRangeQuery) ([]event.SecurityEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]event.SecurityEvent, 0, len(s.events))

	for _, se := range s.events {
		ts := se.LogEvent.Timestamp.UnixNano()

		if q.From != 0 && ts < q.From {
			continue
		}

		if q.To != 0 && ts > q.To {
			continue
		}

		if q.EventType != nil && *q.EventType != se.EventType {
			continue
		}

		if q.RiskLevel != nil && *q.RiskLevel != se.RiskLevel {
			continue
		}

		matched = append(matched, se)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].LogEvent.Timestamp.Before(matched[j].LogEvent.Timestamp)
	})

	start := q.Offset
	if start > len(matched) {
		start = len(matched)
	}

	end := len(matched)

	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}

	return matched[start:end], nil
}

// Count implements Store.
func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.events), nil
}
