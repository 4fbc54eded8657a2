package pubsub

import (
	"math"
	"math/rand"
	"time"
)

// backoff computes reconnect delays: exponential growth from base up to
// max, with random jitter so a fleet of listeners does not reconnect in
// lockstep.
type backoff struct {
	base       time.Duration
	max        time.Duration
	multiplier float64
	attempt    int
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max, multiplier: 2.0}
}

func (b *backoff) next() time.Duration {
	delay := float64(b.base) * math.Pow(b.multiplier, float64(b.attempt))
	if delay > float64(b.max) {
		delay = float64(b.max)
	}
	b.attempt++

	// Up to 10% jitter either way.
	jitterRange := delay * 0.1
	delay += (rand.Float64() - 0.5) * 2 * jitterRange
	if delay < 0 {
		delay = float64(b.base)
	}
	return time.Duration(delay)
}

func (b *backoff) reset() {
	b.attempt = 0
}
