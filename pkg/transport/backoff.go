package transport

import "time"

// Backoff computes the delay before an Agent's next reconnect attempt.
// It doubles the previous delay up to Max, then holds steady; Reset
// returns to Min after a successful connection.
type Backoff struct {
	Min, Max time.Duration
	current  time.Duration
}

// NewBackoff returns a Backoff starting at min, capped at max.
func NewBackoff(min, max time.Duration) *Backoff {
	return &Backoff{Min: min, Max: max, current: min}
}

// Next returns the delay to wait before the next attempt and advances the
// internal state for the attempt after that.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.Max {
		b.current = b.Max
	}
	return d
}

// Reset returns the backoff to its minimum delay, called after a
// connection succeeds.
func (b *Backoff) Reset() {
	b.current = b.Min
}
