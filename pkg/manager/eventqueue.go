package manager

import "github.com/eapache/queue"

// eventQueue is the per-session FIFO of pending events. Teardown and
// migration pull individual entries out of the middle; both
// operations preserve the relative order of the survivors.
//
// Not safe for concurrent use; callers hold the owning session's lock.
type eventQueue struct {
	q *queue.Queue
}

func newEventQueue() *eventQueue {
	return &eventQueue{q: queue.New()}
}

func (eq *eventQueue) push(e *pendingEvent) {
	eq.q.Add(e)
}

func (eq *eventQueue) len() int {
	return eq.q.Length()
}

func (eq *eventQueue) empty() bool {
	return eq.q.Length() == 0
}

// peek returns the head without removing it, or nil when empty.
func (eq *eventQueue) peek() *pendingEvent {
	if eq.q.Length() == 0 {
		return nil
	}
	return eq.q.Peek().(*pendingEvent)
}

// pop removes and returns the head, or nil when empty.
func (eq *eventQueue) pop() *pendingEvent {
	if eq.q.Length() == 0 {
		return nil
	}
	return eq.q.Remove().(*pendingEvent)
}

// removeFirst removes and returns the first event matching match,
// scanning from the head, or nil when nothing matches. The queue is
// rotated through once.
func (eq *eventQueue) removeFirst(match func(*pendingEvent) bool) *pendingEvent {
	var found *pendingEvent
	for n := eq.q.Length(); n > 0; n-- {
		e := eq.q.Remove().(*pendingEvent)
		if found == nil && match(e) {
			found = e
			continue
		}
		eq.q.Add(e)
	}
	return found
}

// extract removes every event matching match and returns them in
// queue order.
func (eq *eventQueue) extract(match func(*pendingEvent) bool) []*pendingEvent {
	var out []*pendingEvent
	for n := eq.q.Length(); n > 0; n-- {
		e := eq.q.Remove().(*pendingEvent)
		if match(e) {
			out = append(out, e)
			continue
		}
		eq.q.Add(e)
	}
	return out
}
