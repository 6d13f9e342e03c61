package collector

import (
	"context"

	"github.com/mlidstrom/castellan/internal/event"
)

// HistoricalCollector iterates a finite, pre-sorted set of past LogEvents.
// It backs the backfill path that brings the vector store up to 24h of
// coverage at startup by replaying it through the normal pipeline stages
// alongside any live collectors.
//
// HistoricalCollector is restartable: each Collect call replays Events from
// the beginning, independent of any prior run.
type HistoricalCollector struct {
	name   string
	events []event.LogEvent
}

// NewHistoricalCollector returns a HistoricalCollector over events, sorted
// by timestamp ascending.
func NewHistoricalCollector(name string, events []event.LogEvent) *HistoricalCollector {
	return &HistoricalCollector{
		name:   name,
		events: event.SortByTimestamp(events),
	}
}

// Name implements Collector.
func (h *HistoricalCollector) Name() string {
	return h.name
}

// Collect implements Collector. The returned channel closes once every
// event has been sent or ctx is cancelled, whichever comes first.
func (h *HistoricalCollector) Collect(ctx context.Context) (<-chan Record, error) {
	out := make(chan Record)

	go func() {
		defer close(out)

		for _, e := range h.events {
			select {
			case <-ctx.Done():
				return
			case out <- Record{Event: e}:
			}
		}
	}()

	return out, nil
}
