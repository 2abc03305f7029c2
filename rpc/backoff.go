package rpc

import (
	"math/rand"
	"time"
)

// Backoff generates truncated-exponential reconnect delays with jitter, per
// spec.md section 4.4.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
	rand    *rand.Rand
}

// NewBackoff returns a Backoff whose base delay is bounded by [initial, max].
// If max < initial, max is raised to initial. Next adds jitter of up to half
// the base, so a returned delay can exceed max by up to max/2.
func NewBackoff(initial, max time.Duration) *Backoff {
	if max < initial {
		max = initial
	}
	return &Backoff{
		initial: initial,
		max:     max,
		current: initial,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next backoff delay: current plus jitter uniformly drawn
// from [0, current/2), then doubles current up to max.
func (b *Backoff) Next() time.Duration {
	jitter := time.Duration(0)
	if half := b.current / 2; half > 0 {
		jitter = time.Duration(b.rand.Int63n(int64(half)))
	}
	delay := b.current + jitter

	doubled := b.current * 2
	if doubled > b.max || doubled < b.current {
		doubled = b.max
	}
	b.current = doubled

	return delay
}

// Reset returns the generator to its initial state.
func (b *Backoff) Reset() {
	b.current = b.initial
}
