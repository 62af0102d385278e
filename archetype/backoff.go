package archetype

import (
	"math/rand"
	"time"
)

// Backoff returns a jittered delay to wait before retrying a critical
// section after an abort, avoiding the livelock of two archetypes
// repeatedly colliding on reciprocally full buffers (spec.md §5, §9).
// It implements full-jitter exponential backoff: each attempt draws
// uniformly from [0, min(cap, base*2^attempt)).
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultBackoff matches the conservative policy recorded in DESIGN.md's
// Open Question decisions.
func DefaultBackoff() Backoff {
	return Backoff{Base: 8 * time.Millisecond, Cap: 500 * time.Millisecond}
}

// Delay returns the wait duration for the given zero-based attempt count.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	max := b.Base << uint(attempt)
	if max <= 0 || max > b.Cap { // overflow or exceeds cap
		max = b.Cap
	}
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
