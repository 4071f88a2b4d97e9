package manager

import (
	"sync"
	"sync/atomic"

	"github.com/ucm-project/ucm-go/pkg/engine"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// Context is one connection identifier: the state the manager wraps
// around an engine conn. A context belongs to exactly one session at a
// time; migration moves it wholesale, queued events included.
//
// Field ownership is split across three locks. closing is guarded by
// the registry lock. uid, destroying, backlog, eventsReported, and
// groups are guarded by the owning session's lock. mu serializes
// engine calls. id, conn, and refs are fixed before publication.
type Context struct {
	id   uint64
	conn engine.Conn
	refs *refcount

	// sess is the owning session, swapped by migration. Writers hold
	// both session locks and the registry lock.
	sess atomic.Pointer[Session]

	// mu serializes engine calls against each other and against
	// teardown.
	mu sync.Mutex

	// closing marks a context whose conn teardown has been handed to
	// the close worker after a device removal.
	closing bool

	destroying     bool
	uid            uint64
	backlog        int
	eventsReported int
	groups         []*Group
}

// ID returns the context's registry handle.
func (c *Context) ID() uint64 {
	return c.id
}

// lockSession locks the owning session and returns it, rechecking
// ownership after acquiring the lock so a concurrent migration cannot
// leave the caller holding the wrong session.
func (c *Context) lockSession() *Session {
	for {
		s := c.sess.Load()
		s.mu.Lock()
		if c.sess.Load() == s {
			return s
		}
		s.mu.Unlock()
	}
}

// Group is one multicast membership of a context. uid and addr are
// fixed at join; eventsReported is guarded by the owning session's
// lock.
type Group struct {
	id    uint64
	ctx   *Context
	uid   uint64
	addr  engine.Addr
	state engine.JoinState

	eventsReported int
}

// pendingEvent is one queued occurrence awaiting collection. The
// reply is built at ingest time so collection is a plain copy; it
// must not be mutated in place, because a failed delivery leaves the
// event queued.
type pendingEvent struct {
	ctx   *Context
	group *Group      // set for multicast kinds
	conn  engine.Conn // child conn for connect requests, else the context's own
	kind  engine.EventKind
	reply *wire.EventReply
}
