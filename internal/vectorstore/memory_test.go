package vectorstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlidstrom/castellan/internal/event"
	"github.com/mlidstrom/castellan/internal/vectorstore"
)

func TestEnsureCollection_IdempotentUnderConcurrency(t *testing.T) {
	t.Parallel()

	s := vectorstore.NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, s.EnsureCollection(context.Background(), 16))
		}()
	}

	wg.Wait()
}

func TestUpsertThenSearch_IsVisible(t *testing.T) {
	t.Parallel()

	s := vectorstore.NewInMemoryStore()
	require.NoError(t, s.EnsureCollection(context.Background(), 3))

	evt := event.LogEvent{UniqueID: "a", Timestamp: time.Now()}
	require.NoError(t, s.Upsert(context.Background(), evt, []float32{1, 0, 0}))

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, 8)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Event.UniqueID)
}

func TestSearch_OrdersBySimilarityThenUniqueID(t *testing.T) {
	t.Parallel()

	s := vectorstore.NewInMemoryStore()
	require.NoError(t, s.EnsureCollection(context.Background(), 2))

	now := time.Now()
	require.NoError(t, s.BatchUpsert(context.Background(), []vectorstore.UpsertItem{
		{Event: event.LogEvent{UniqueID: "b", Timestamp: now}, Vector: []float32{1, 0}},
		{Event: event.LogEvent{UniqueID: "a", Timestamp: now}, Vector: []float32{1, 0}},
		{Event: event.LogEvent{UniqueID: "c", Timestamp: now}, Vector: []float32{0, 1}},
	}))

	results, err := s.Search(context.Background(), []float32{1, 0}, 8)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "a", results[0].Event.UniqueID)
	assert.Equal(t, "b", results[1].Event.UniqueID)
	assert.Equal(t, "c", results[2].Event.UniqueID)
}

func TestSearch_RespectsK(t *testing.T) {
	t.Parallel()

	s := vectorstore.NewInMemoryStore()
	require.NoError(t, s.EnsureCollection(context.Background(), 1))

	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Upsert(context.Background(),
			event.LogEvent{UniqueID: string(rune('a' + i)), Timestamp: now}, []float32{1}))
	}

	results, err := s.Search(context.Background(), []float32{1}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestUpsert_OverwritesByUniqueID(t *testing.T) {
	t.Parallel()

	s := vectorstore.NewInMemoryStore()
	require.NoError(t, s.EnsureCollection(context.Background(), 2))

	now := time.Now()
	require.NoError(t, s.Upsert(context.Background(), event.LogEvent{UniqueID: "a", Timestamp: now, Message: "first"}, []float32{1, 0}))
	require.NoError(t, s.Upsert(context.Background(), event.LogEvent{UniqueID: "a", Timestamp: now, Message: "second"}, []float32{0, 1}))

	results, err := s.Search(context.Background(), []float32{0, 1}, 8)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "second", results[0].Event.Message)
}

func TestHas24hCoverage(t *testing.T) {
	t.Parallel()

	s := vectorstore.NewInMemoryStore()
	fixedNow := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixedNow })

	require.NoError(t, s.EnsureCollection(context.Background(), 1))

	ok, err := s.Has24hCoverage(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "empty store has no coverage")

	require.NoError(t, s.Upsert(context.Background(),
		event.LogEvent{UniqueID: "recent", Timestamp: fixedNow.Add(-time.Hour)}, []float32{1}))

	ok, err = s.Has24hCoverage(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Upsert(context.Background(),
		event.LogEvent{UniqueID: "old", Timestamp: fixedNow.Add(-25 * time.Hour)}, []float32{1}))

	ok, err = s.Has24hCoverage(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeleteOlderThan24h_RemovesOnlyStaleRecords(t *testing.T) {
	t.Parallel()

	s := vectorstore.NewInMemoryStore()
	fixedNow := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixedNow })

	require.NoError(t, s.EnsureCollection(context.Background(), 1))
	require.NoError(t, s.BatchUpsert(context.Background(), []vectorstore.UpsertItem{
		{Event: event.LogEvent{UniqueID: "old", Timestamp: fixedNow.Add(-25 * time.Hour)}, Vector: []float32{1}},
		{Event: event.LogEvent{UniqueID: "new", Timestamp: fixedNow.Add(-time.Hour)}, Vector: []float32{1}},
	}))

	deleted, err := s.DeleteOlderThan24h(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	results, err := s.Search(context.Background(), []float32{1}, 8)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].Event.UniqueID)
}

func TestDeleteOlderThan24h_IdempotentOverNonIngestingIntervals(t *testing.T) {
	t.Parallel()

	s := vectorstore.NewInMemoryStore()
	fixedNow := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixedNow })

	require.NoError(t, s.EnsureCollection(context.Background(), 1))
	require.NoError(t, s.Upsert(context.Background(),
		event.LogEvent{UniqueID: "old", Timestamp: fixedNow.Add(-25 * time.Hour)}, []float32{1}))

	first, err := s.DeleteOlderThan24h(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	second, err := s.DeleteOlderThan24h(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second)
}

func TestBatchUpsertAndSearch_ConcurrentSafe(t *testing.T) {
	t.Parallel()

	s := vectorstore.NewInMemoryStore()
	require.NoError(t, s.EnsureCollection(context.Background(), 1))

	var wg sync.WaitGroup
	now := time.Now()

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			id := string(rune('a' + i%26))
			_ = s.Upsert(context.Background(), event.LogEvent{UniqueID: id, Timestamp: now}, []float32{float32(i)})
			_, _ = s.Search(context.Background(), []float32{1}, 8)
		}(i)
	}

	wg.Wait()
}
