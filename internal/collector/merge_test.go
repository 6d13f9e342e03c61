package collector_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlidstrom/castellan/internal/collector"
	"github.com/mlidstrom/castellan/internal/event"
)

func TestMerge_CombinesAllCollectorStreams(t *testing.T) {
	t.Parallel()

	c1 := collector.NewHistoricalCollector("c1", []event.LogEvent{{UniqueID: "1a"}, {UniqueID: "1b"}})
	c2 := collector.NewHistoricalCollector("c2", []event.LogEvent{{UniqueID: "2a"}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := collector.Merge(ctx, 4, c1, c2)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for rec := range out {
		require.NoError(t, rec.Err)
		seen[rec.Event.UniqueID] = true
	}

	assert.Len(t, seen, 3)
	assert.True(t, seen["1a"] && seen["1b"] && seen["2a"])
}

func TestMerge_EmptyCollectorSet(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := collector.Merge(ctx, 4)
	require.NoError(t, err)

	_, ok := <-out
	assert.False(t, ok, "merge of zero collectors must yield an immediately-closed channel")
}

func TestMerge_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	events := make([]event.LogEvent, 10000)
	for i := range events {
		events[i] = event.LogEvent{UniqueID: "x"}
	}

	c := collector.NewHistoricalCollector("big", events)

	ctx, cancel := context.WithCancel(context.Background())
	out, err := collector.Merge(ctx, 0, c)
	require.NoError(t, err)

	<-out
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("merge did not honor cancellation within 1s")
		}
	}
}
