package resilience

import (
	"math"
	"math/rand"
	"time"
)

// Backoff is an exponential delay schedule. The zero value waits 100ms,
// doubling up to 10s, without jitter.
type Backoff struct {
	// Initial is the delay after the first failure.
	Initial time.Duration
	// Max caps the delay. It is raised to Initial when lower.
	Max time.Duration
	// Factor multiplies the delay after each failure.
	Factor float64
	// Jitter spreads each delay by up to this fraction either way (0 to 1).
	Jitter float64
}

// Delay returns the wait after the given consecutive failure, counting from 1.
func (b Backoff) Delay(failure int) time.Duration {
	b = b.normalized()
	if failure < 1 {
		failure = 1
	}

	d := float64(b.Initial) * math.Pow(b.Factor, float64(failure-1))
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	if d > float64(b.Max) || math.IsInf(d, 1) {
		d = float64(b.Max)
	}
	if d < 0 {
		d = float64(b.Initial)
	}
	return time.Duration(d)
}

// From returns a copy of b that starts at initial, as when a server
// announces its own reconnection time. A non-positive initial keeps b.
func (b Backoff) From(initial time.Duration) Backoff {
	if initial > 0 {
		b.Initial = initial
		b.Max = max(b.Max, initial)
	}
	return b
}

func (b Backoff) normalized() Backoff {
	if b.Initial <= 0 {
		b.Initial = 100 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 10 * time.Second
	}
	b.Max = max(b.Max, b.Initial)
	if b.Factor < 1 {
		b.Factor = 2
	}
	b.Jitter = min(max(b.Jitter, 0), 1)
	return b
}
