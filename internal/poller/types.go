// internal/poller/types.go
package poller

import (
	"time"

	"github.com/tamzrod/mightywatt/internal/status"
)

// PollResult is what one tick produced.
type PollResult struct {
	At time.Time

	// Command is the exact byte sequence written this tick.
	Command []byte

	Snapshot status.Snapshot
	Err      error // non-nil means the tick failed; Snapshot is zero
}

// Sink receives every PollResult, on the poller goroutine.
type Sink func(PollResult)
