package connection

import (
	"math/rand/v2"
	"sync"
	"time"
)

// DefaultJitter is the jitter fraction the zero BackoffConfig selects.
const DefaultJitter = 0.25

// BackoffConfig shapes the redial delay curve. The zero value selects
// one second doubling up to a minute, with 25% jitter. A negative
// Jitter disables jitter entirely.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = time.Second
	}
	if c.Max <= 0 {
		c.Max = time.Minute
	}
	if c.Multiplier <= 1 {
		c.Multiplier = 2
	}
	switch {
	case c.Jitter == 0:
		c.Jitter = DefaultJitter
	case c.Jitter < 0:
		c.Jitter = 0
	}
	return c
}

// Backoff produces the delay before each redial attempt: exponential
// growth capped at a maximum, with random jitter on top so a daemon
// restart does not get a thundering herd of clients on the same tick.
type Backoff struct {
	mu       sync.Mutex
	cfg      BackoffConfig
	base     time.Duration
	attempts int
}

// NewBackoff returns a Backoff following cfg. Zero fields of cfg take
// the defaults.
func NewBackoff(cfg BackoffConfig) *Backoff {
	cfg = cfg.withDefaults()
	return &Backoff{cfg: cfg, base: cfg.Initial}
}

// Next returns the delay to wait before the upcoming attempt and
// advances the curve.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := withJitter(b.base, b.cfg.Jitter)
	b.attempts++
	if grown := time.Duration(float64(b.base) * b.cfg.Multiplier); grown < b.cfg.Max {
		b.base = grown
	} else {
		b.base = b.cfg.Max
	}
	return d
}

// Peek returns the delay Next would hand out, without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return withJitter(b.base, b.cfg.Jitter)
}

// Reset rewinds the curve to the initial delay. Called after a
// successful connect so the next outage starts over.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.base = b.cfg.Initial
	b.attempts = 0
}

// Attempts reports how many delays Next has handed out since the last
// Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the unjittered base delay.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base
}

func withJitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*frac*rand.Float64())
}
