// Package collector produces lazy streams of event.LogEvent from collection
// sources, and merges multiple such streams into one ordered-by-arrival
// stream for the pipeline orchestrator.
package collector

import (
	"context"
	"sync"

	"github.com/mlidstrom/castellan/internal/event"
)

// Record is one item off a collector's stream: either a LogEvent or a
// per-record error. Errors never close the stream: the orchestrator
// observes Record.Err, logs it, and moves on to the next record without
// tearing down the collector.
type Record struct {
	Event event.LogEvent
	Err   error
}

// Collector exposes a lazy, finite-or-infinite ordered stream of LogEvent.
//
// Live collectors are unbounded: Collect's channel stays open, suspending
// the producing goroutine until a new source record arrives or ctx is
// cancelled. Historical collectors are finite: the channel closes once every
// past record has been emitted, in timestamp-ascending order.
//
// Collectors MUST be restartable: calling Collect again after a prior
// context was cancelled must start a fresh stream, not reuse dead internal
// state. Collectors MUST honor ctx cancellation within about a second.
type Collector interface {
	// Collect starts producing records on the returned channel. The channel
	// is closed when the stream ends (historical collectors) or ctx is
	// done (live collectors). Collect itself returns promptly; all work
	// happens in a background goroutine.
	Collect(ctx context.Context) (<-chan Record, error)

	// Name identifies the collector for logging and metrics.
	Name() string
}

// Merge fans multiple collector streams into one bounded channel, ordered by
// arrival (not by any per-collector ordering). This is the stream-merge
// concurrency boundary ahead of the orchestrator's per-event processing.
//
// Back-pressure: when the returned channel is full, the producing goroutines
// for every source collector block on send until a slot frees up. bufSize is
// the channel capacity; bufSize<=0 behaves like an unbuffered channel (the
// strictest back-pressure).
//
// The returned channel closes once ctx is done and every collector's stream
// has drained, or once every historical collector among cs has finished and
// there are no live collectors left running.
func Merge(ctx context.Context, bufSize int, cs ...Collector) (<-chan Record, error) {
	if bufSize < 0 {
		bufSize = 0
	}

	out := make(chan Record, bufSize)

	streams := make([]<-chan Record, 0, len(cs))

	for _, c := range cs {
		stream, err := c.Collect(ctx)
		if err != nil {
			return nil, err
		}

		streams = append(streams, stream)
	}

	var wg sync.WaitGroup

	wg.Add(len(streams))

	for _, stream := range streams {
		go func(in <-chan Record) {
			defer wg.Done()

			for {
				select {
				case <-ctx.Done():
					return
				case rec, ok := <-in:
					if !ok {
						return
					}

					select {
					case out <- rec:
					case <-ctx.Done():
						return
					}
				}
			}
		}(stream)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}
