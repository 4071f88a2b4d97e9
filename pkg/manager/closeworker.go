package manager

import "sync"

// closeWorker runs engine teardown on a single goroutine per session.
// Event handlers must never close a conn from inside an engine
// callback, and context destruction must be able to wait for every
// teardown the session has queued; the worker gives both.
type closeWorker struct {
	mu      sync.Mutex
	pending []func()
	stopped bool

	wake chan struct{}
	done chan struct{}
}

func newCloseWorker() *closeWorker {
	w := &closeWorker{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

// submit queues fn. Must not be called after stop.
func (w *closeWorker) submit(fn func()) {
	w.mu.Lock()
	w.pending = append(w.pending, fn)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// flush blocks until every function submitted before the call has
// run.
func (w *closeWorker) flush() {
	ran := make(chan struct{})
	w.submit(func() { close(ran) })
	<-ran
}

// stop drains the queue and ends the worker.
func (w *closeWorker) stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
	<-w.done
}

func (w *closeWorker) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		batch := w.pending
		w.pending = nil
		stopped := w.stopped
		w.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
		if len(batch) > 0 {
			continue
		}
		if stopped {
			return
		}
		<-w.wake
	}
}
