// internal/handshake/retry.go
package handshake

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned once every attempt of Retry has failed.
var ErrExhausted = errors.New("handshake: retries exhausted")

// Retry calls fn up to tries times, sleeping delay between failures.
// The exhausted case is an explicit error wrapping both ErrExhausted and
// the last attempt's error. A cancelled ctx stops early.
func Retry[T any](ctx context.Context, tries int, delay time.Duration, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	if tries <= 0 {
		return zero, fmt.Errorf("%w: no attempts allowed", ErrExhausted)
	}

	var last error
	for attempt := 1; attempt <= tries; attempt++ {
		v, err := fn(attempt)
		if err == nil {
			return v, nil
		}
		last = err

		if attempt == tries {
			break
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, fmt.Errorf("%w: %w (last attempt: %w)", ErrExhausted, ctx.Err(), last)
		case <-t.C:
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, tries, last)
}
