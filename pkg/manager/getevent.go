package manager

import (
	"github.com/ucm-project/ucm-go/pkg/engine"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// getEvent collects the head of the session's event queue. An empty
// queue blocks until an event arrives, the session closes, or the
// submission's context is done; Nonblock trades the wait for
// WouldBlock.
//
// A connect-request head first mints the child's context, so the
// reply the client sees already names the adopted handle. The reply
// is delivered under the session lock: the event leaves the queue in
// the same critical section, and a delivery failure leaves it (and
// the listener's backlog) exactly as they were.
func (m *Manager) getEvent(req *request) error {
	var cmd wire.GetEventCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	sess := req.sess

	sess.mu.Lock()
	for sess.queue.empty() {
		if sess.closed {
			sess.mu.Unlock()
			return ErrSessionClosed
		}
		if cmd.Nonblock {
			sess.mu.Unlock()
			return ErrWouldBlock
		}
		ready := sess.ready
		sess.mu.Unlock()
		select {
		case <-ready:
		case <-sess.closedCh:
			return ErrSessionClosed
		case <-req.ctx.Done():
			return req.ctx.Err()
		}
		sess.mu.Lock()
	}

	uev := sess.queue.peek()
	rep := *uev.reply
	if req.hdr.Out < wire.EventReplyFullSize {
		rep.ECE = nil
	}

	var adopted *Context
	if uev.kind == engine.EventConnectRequest {
		nctx, err := m.adoptLocked(sess, uev)
		if err != nil {
			// Exhaustion leaves the event queued for a later attempt.
			sess.mu.Unlock()
			return err
		}
		adopted = nctx
		rep.ID = nctx.id
	}

	if err := req.respond(&rep); err != nil {
		if adopted != nil {
			m.unwindAdoptionLocked(sess, uev, adopted)
		}
		sess.mu.Unlock()
		return ErrIOFault
	}

	sess.queue.pop()
	if uev.group != nil {
		uev.group.eventsReported++
	} else {
		uev.ctx.eventsReported++
	}
	sess.mu.Unlock()
	return nil
}

// adoptLocked mints a context for a connect-request child conn and
// hands the child to it. The listener's backlog slot is credited
// back; the new context starts unclaimed, its event gate shut until
// an accept supplies a uid. Called with the session lock held.
func (m *Manager) adoptLocked(sess *Session, uev *pendingEvent) (*Context, error) {
	m.reg.mu.Lock()
	id, err := m.reg.ctxs.reserve()
	m.reg.mu.Unlock()
	if err != nil {
		return nil, err
	}
	nctx := &Context{id: id, conn: uev.conn, refs: newRefcount()}
	nctx.sess.Store(sess)
	uev.conn.SetOwner(nctx)
	m.reg.mu.Lock()
	m.reg.ctxs.publish(id, nctx)
	m.reg.mu.Unlock()
	sess.ctxs = append(sess.ctxs, nctx)
	uev.ctx.backlog++
	return nctx, nil
}

// unwindAdoptionLocked reverses adoptLocked after a failed delivery:
// the child conn goes back to being an inflight connect request owned
// by the listener, and the minted handle is retired. Called with the
// session lock held.
func (m *Manager) unwindAdoptionLocked(sess *Session, uev *pendingEvent, nctx *Context) {
	uev.conn.SetOwner(uev.ctx)
	uev.ctx.backlog--
	sess.ctxs = unlinkContext(sess.ctxs, nctx)
	m.reg.mu.Lock()
	m.reg.ctxs.erase(nctx.id)
	m.reg.mu.Unlock()
}
