package enginesim

import "sync"

// pump serializes event delivery for one conn. Each conn gets its own
// pump so callbacks arrive in submission order without any fabric lock
// held. Stopping discards what has not been delivered yet and waits
// out an in-flight callback, which is what lets conn.Close promise
// that no event follows it.
type pump struct {
	mu      sync.Mutex
	pending []func()
	stopped bool

	wake chan struct{}
	done chan struct{}
}

func newPump() *pump {
	p := &pump{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go p.run()
	return p
}

// submit queues fn for delivery. Submissions after a stop are
// discarded.
func (p *pump) submit(fn func()) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.pending = append(p.pending, fn)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// halt marks the pump stopped without waiting for the goroutine. Used
// when the pump goroutine tears down its own conn and cannot wait on
// itself.
func (p *pump) halt() {
	p.mu.Lock()
	p.stopped = true
	p.pending = nil
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// stop discards undelivered work and blocks until the pump goroutine
// has exited. Must not be called from the pump goroutine itself.
func (p *pump) stop() {
	p.halt()
	<-p.done
}

func (p *pump) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		if p.stopped {
			p.mu.Unlock()
			return
		}
		batch := p.pending
		p.pending = nil
		p.mu.Unlock()

		for _, fn := range batch {
			fn()
			p.mu.Lock()
			stopped := p.stopped
			p.mu.Unlock()
			if stopped {
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		<-p.wake
	}
}
