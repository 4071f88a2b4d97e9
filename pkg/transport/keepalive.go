package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultPingInterval is the default gap between probes.
	DefaultPingInterval = 30 * time.Second

	// DefaultPongTimeout is how long a probe may stay unanswered
	// before it counts as missed.
	DefaultPongTimeout = 5 * time.Second

	// DefaultMaxMissedPongs is how many misses declare the link dead.
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig tunes liveness probing. Zero fields take the
// defaults above.
type KeepAliveConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default probing parameters.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.MaxMissedPongs == 0 {
		c.MaxMissedPongs = DefaultMaxMissedPongs
	}
	return c
}

// DetectionDelay is the worst case from link death to the dead
// callback: every allowed probe missed, plus the final answer wait.
// The defaults give 95 seconds.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// KeepAlive probes a link with sequenced pings and declares it dead
// after too many unanswered probes. It is transport-neutral: the
// owner supplies the probe sender and the dead-link callback, and the
// read loop feeds answers in through PongReceived.
type KeepAlive struct {
	cfg    KeepAliveConfig
	send   func(seq uint32) error
	onDead func()

	seq   atomic.Uint32
	pongs chan uint32

	mu      sync.Mutex
	onPong  func(seq uint32, rtt time.Duration)
	stats   KeepAliveStats
	running bool
	stop    chan struct{}
}

// NewKeepAlive returns a stopped KeepAlive. send transmits one probe;
// onDead fires once when the miss budget is exhausted.
func NewKeepAlive(cfg KeepAliveConfig, send func(seq uint32) error, onDead func()) *KeepAlive {
	return &KeepAlive{
		cfg:    cfg.withDefaults(),
		send:   send,
		onDead: onDead,
		pongs:  make(chan uint32, 1),
	}
}

// OnPong registers a hook receiving the round-trip time of each
// answered probe.
func (ka *KeepAlive) OnPong(fn func(seq uint32, rtt time.Duration)) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	ka.onPong = fn
}

// Start launches the probe loop. A second Start while running is a
// no-op.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	if ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.stop = make(chan struct{})
	stop := ka.stop
	ka.mu.Unlock()

	go ka.probe(ctx, stop)
}

// Stop halts probing. Safe to call repeatedly.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stop)
}

// PongReceived hands an answered probe to the loop. Called from the
// read loop when a pong control message arrives.
func (ka *KeepAlive) PongReceived(seq uint32) {
	select {
	case ka.pongs <- seq:
	default:
	}
}

// IsRunning reports whether the probe loop is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// KeepAliveStats is a snapshot of probe bookkeeping.
type KeepAliveStats struct {
	LastPingTime time.Time
	LastPongTime time.Time
	MissedPongs  int
	CurrentSeq   uint32
}

// Stats returns the current probe bookkeeping.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.stats
}

// probe owns all probe state; the struct only mirrors it for Stats.
func (ka *KeepAlive) probe(ctx context.Context, stop chan struct{}) {
	defer func() {
		ka.mu.Lock()
		ka.running = false
		ka.mu.Unlock()
	}()

	var (
		pending   uint32
		pendingAt time.Time
		inFlight  bool
		missed    int
	)

	ping := func() {
		seq := ka.seq.Add(1)
		pending = seq
		pendingAt = time.Now()
		inFlight = true

		ka.mu.Lock()
		ka.stats.LastPingTime = pendingAt
		ka.stats.CurrentSeq = seq
		ka.mu.Unlock()

		if err := ka.send(seq); err != nil {
			// A failed send counts as a miss so a broken socket still
			// exhausts the budget.
			inFlight = false
			missed++
			ka.mu.Lock()
			ka.stats.MissedPongs = missed
			ka.mu.Unlock()
		}
	}

	ticker := time.NewTicker(ka.cfg.PingInterval)
	defer ticker.Stop()

	ping()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return

		case <-ticker.C:
			if inFlight && time.Since(pendingAt) >= ka.cfg.PongTimeout {
				inFlight = false
				missed++
				ka.mu.Lock()
				ka.stats.MissedPongs = missed
				ka.mu.Unlock()
			}
			if missed >= ka.cfg.MaxMissedPongs {
				if ka.onDead != nil {
					ka.onDead()
				}
				return
			}
			ping()

		case seq := <-ka.pongs:
			now := time.Now()
			ka.mu.Lock()
			ka.stats.LastPongTime = now
			hook := ka.onPong
			ka.mu.Unlock()

			if !inFlight || seq != pending {
				// Stale answer to an earlier probe.
				continue
			}
			inFlight = false
			missed = 0
			ka.mu.Lock()
			ka.stats.MissedPongs = 0
			ka.mu.Unlock()

			if hook != nil {
				go hook(seq, now.Sub(pendingAt))
			}
		}
	}
}
