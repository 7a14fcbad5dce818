package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Default backoff bounds.
const (
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 30 * time.Second
)

// Backoff computes exponential retry delays.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter bool
	// Rand returns a value in [0, n). Defaults to math/rand/v2.Int64N.
	Rand func(n int64) int64
}

// DefaultBackoff returns a jittered backoff with the default bounds.
func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBaseDelay, Max: DefaultMaxDelay, Jitter: true}
}

// Delay returns min(Base·2^attempt, Max). With Jitter the result is a uniform
// value in [0, clamped). Attempt numbering starts at 0.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	clamped := b.Base
	for range attempt {
		if b.Max > 0 && clamped >= b.Max {
			break
		}
		if clamped > math.MaxInt64/2 {
			clamped = math.MaxInt64
			break
		}
		clamped *= 2
	}
	if b.Max > 0 && clamped > b.Max {
		clamped = b.Max
	}
	if clamped <= 0 {
		return 0
	}
	if !b.Jitter {
		return clamped
	}
	rnd := b.Rand
	if rnd == nil {
		rnd = rand.Int64N
	}
	return time.Duration(rnd(int64(clamped)))
}
