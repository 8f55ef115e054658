// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// Run ticks until ctx is done: tick, then wait the current interval.
// Cancellation is only observed between ticks, never mid-exchange.
// A failed tick is handed to sink like any other; the loop keeps going.
func (p *Poller) Run(ctx context.Context, sink Sink) {
	timer := time.NewTimer(p.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}

		sink(p.PollOnce())
		timer.Reset(p.Interval())
	}
}
