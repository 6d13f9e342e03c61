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

func TestHistoricalCollector_EmitsInTimestampOrder(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := collector.NewHistoricalCollector("hist", []event.LogEvent{
		{UniqueID: "c", Timestamp: base.Add(2 * time.Hour)},
		{UniqueID: "a", Timestamp: base},
		{UniqueID: "b", Timestamp: base.Add(time.Hour)},
	})

	stream, err := c.Collect(context.Background())
	require.NoError(t, err)

	var got []string

	for rec := range stream {
		require.NoError(t, rec.Err)
		got = append(got, rec.Event.UniqueID)
	}

	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestHistoricalCollector_IsRestartable(t *testing.T) {
	t.Parallel()

	c := collector.NewHistoricalCollector("hist", []event.LogEvent{{UniqueID: "a"}, {UniqueID: "b"}})

	for i := 0; i < 2; i++ {
		stream, err := c.Collect(context.Background())
		require.NoError(t, err)

		var count int
		for range stream {
			count++
		}

		assert.Equal(t, 2, count)
	}
}

func TestHistoricalCollector_HonorsCancellation(t *testing.T) {
	t.Parallel()

	events := make([]event.LogEvent, 1000)
	for i := range events {
		events[i] = event.LogEvent{UniqueID: string(rune('a' + i%26))}
	}

	c := collector.NewHistoricalCollector("hist", events)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := c.Collect(ctx)
	require.NoError(t, err)

	<-stream
	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-stream:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("collector did not honor cancellation within 1s")
		}
	}
}
