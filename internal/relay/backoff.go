package relay

import (
	"context"
	"time"
)

// Backoff paces polling of a non-blocking source with exponential delays.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	factor  float64
	current time.Duration
}

// NewBackoff creates a backoff starting at initial and growing by factor up to max.
func NewBackoff(initial, maxDelay time.Duration, factor float64) *Backoff {
	if factor < 1 {
		factor = 1
	}
	return &Backoff{
		initial: initial,
		max:     maxDelay,
		factor:  factor,
		current: initial,
	}
}

// Next returns the delay to wait now and grows the following one.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current = time.Duration(float64(b.current) * b.factor)
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Wait sleeps for the next delay or until ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	timer := time.NewTimer(b.Next())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Reset returns the delay to its initial value.
func (b *Backoff) Reset() {
	b.current = b.initial
}
