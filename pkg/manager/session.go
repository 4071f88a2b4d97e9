package manager

import (
	"sync"

	"github.com/ucm-project/ucm-go/pkg/log"
)

// Session is one client attachment: an ordered set of contexts plus
// the queue their engine events are collected through. Sessions are
// safe for concurrent submissions; Close must not overlap Submit,
// matching a client connection that has fully wound down.
type Session struct {
	mgr   *Manager
	seq   uint64
	token string

	mu     sync.Mutex
	ctxs   []*Context
	queue  *eventQueue
	ready  chan struct{}
	closed bool

	noticeCh chan struct{}
	closedCh chan struct{}
	closer   *closeWorker
}

// Token returns the session's migration token. It is a capability:
// any session that presents it may take ownership of this session's
// contexts.
func (s *Session) Token() string {
	return s.token
}

// Readable reports whether an event is waiting for collection.
func (s *Session) Readable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.queue.empty()
}

// Ready returns a channel closed the next time the queue signals.
// Callers re-fetch the channel after every wakeup.
func (s *Session) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Done returns a channel closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.closedCh
}

// Notices returns a channel receiving one token each time the queue
// goes from empty to non-empty. The service layer drains it to push
// readability hints without polling.
func (s *Session) Notices() <-chan struct{} {
	return s.noticeCh
}

// signalLocked wakes blocked collectors and, on an empty-to-non-empty
// edge, nudges the notice channel. Called with s.mu held after the
// event is queued.
func (s *Session) signalLocked(wasEmpty bool) {
	close(s.ready)
	s.ready = make(chan struct{})
	if wasEmpty {
		select {
		case s.noticeCh <- struct{}{}:
		default:
		}
	}
}

// Close destroys every context the session still owns, in creation
// order, and detaches the session from the manager. Queued events are
// discarded. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closedCh)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if len(s.ctxs) == 0 {
			s.mu.Unlock()
			break
		}
		ctx := s.ctxs[0]
		s.mu.Unlock()

		// A context can migrate away between the list read and the
		// erase; the erase step re-validates ownership and skips it.
		if s.mgr.eraseOwned(s, ctx) {
			s.mgr.destroyContext(ctx)
		}
	}

	s.closer.stop()
	s.mgr.removeSession(s)
	s.mgr.logState(s.token, log.StateEntitySession, s.token, "OPEN", "CLOSED", "session closed")
	return nil
}
