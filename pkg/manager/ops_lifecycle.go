package manager

import (
	"github.com/ucm-project/ucm-go/pkg/engine"
	"github.com/ucm-project/ucm-go/pkg/log"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// qpTypeFor maps a port space to the QP type of its contexts. Only
// the IB space lets the client pick.
func qpTypeFor(ps wire.PortSpace, commanded uint8) (engine.QPType, error) {
	switch ps {
	case wire.PortSpaceTCP:
		return engine.QPTypeRC, nil
	case wire.PortSpaceUDP, wire.PortSpaceIPoIB:
		return engine.QPTypeUD, nil
	case wire.PortSpaceIB:
		qp := engine.QPType(commanded)
		if qp != engine.QPTypeRC && qp != engine.QPTypeUD {
			return 0, ErrInvalidArgument
		}
		return qp, nil
	default:
		return 0, ErrInvalidArgument
	}
}

func (m *Manager) createID(req *request) error {
	var cmd wire.CreateCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	qp, err := qpTypeFor(cmd.PortSpace, cmd.QPType)
	if err != nil {
		return err
	}
	sess := req.sess

	// Reserve the handle first so the conn's events can never race a
	// handle the registry does not know.
	m.reg.mu.Lock()
	id, err := m.reg.ctxs.reserve()
	m.reg.mu.Unlock()
	if err != nil {
		return err
	}

	ctx := &Context{id: id, uid: cmd.UID, refs: newRefcount()}
	ctx.sess.Store(sess)

	conn, err := m.eng.CreateConn(m.handleEvent, ctx, spaceFromWire(cmd.PortSpace), qp)
	if err != nil {
		m.reg.mu.Lock()
		m.reg.ctxs.erase(id)
		m.reg.mu.Unlock()
		return err
	}
	ctx.conn = conn

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		m.reg.mu.Lock()
		m.reg.ctxs.erase(id)
		m.reg.mu.Unlock()
		conn.Close()
		return ErrSessionClosed
	}
	m.reg.mu.Lock()
	m.reg.ctxs.publish(id, ctx)
	m.reg.mu.Unlock()
	sess.ctxs = append(sess.ctxs, ctx)
	sess.mu.Unlock()

	m.logState(sess.token, log.StateEntityContext, handleString(id), "", "CREATED", cmd.PortSpace.String())

	if err := req.respond(&wire.CreateReply{ID: id}); err != nil {
		if m.eraseOwned(sess, ctx) {
			m.destroyContext(ctx)
		}
		return ErrIOFault
	}
	return nil
}

func (m *Manager) destroyID(req *request) error {
	var cmd wire.DestroyCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	sess := req.sess

	// The raw find skips the closing and liveness gates: destroy must
	// work on a context mid-removal, and the erase makes the handle
	// dead before teardown begins.
	m.reg.mu.Lock()
	ctx, ok := m.reg.ctxs.lookup(cmd.ID)
	if !ok {
		m.reg.mu.Unlock()
		return ErrNotFound
	}
	if ctx.sess.Load() != sess {
		m.reg.mu.Unlock()
		return ErrNotOwner
	}
	m.reg.ctxs.erase(cmd.ID)
	m.reg.mu.Unlock()

	reported := m.destroyContext(ctx)
	if err := req.respond(&wire.DestroyReply{EventsReported: uint32(reported)}); err != nil {
		return ErrIOFault
	}
	return nil
}

// eraseOwned removes ctx from the registry if it is still current and
// still owned by sess. Used by the paths that destroy a context they
// found outside the registry.
func (m *Manager) eraseOwned(sess *Session, ctx *Context) bool {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	cur, ok := m.reg.ctxs.lookup(ctx.id)
	if !ok || cur != ctx || ctx.sess.Load() != sess {
		return false
	}
	return m.reg.ctxs.erase(ctx.id)
}

// destroyContext tears down a context already removed from the
// registry and returns how many of its events were reported. No new
// borrows can start; destroyContext drains the ones in flight, closes
// the conn, and releases the bookkeeping.
func (m *Manager) destroyContext(ctx *Context) int {
	sess := ctx.lockSession()
	ctx.destroying = true
	token := sess.token
	sess.mu.Unlock()

	// A removal teardown may still be queued; once the worker has
	// drained, closing tells us whether it owned the conn close.
	sess.closer.flush()

	m.reg.mu.Lock()
	closing := ctx.closing
	m.reg.mu.Unlock()
	if !closing {
		ctx.refs.put()
		ctx.refs.wait()
		ctx.conn.Close()
	}

	reported := m.freeContext(ctx)
	m.logState(token, log.StateEntityContext, handleString(ctx.id), "", "DESTROYED", "")
	return reported
}

// freeContext releases a dead context's bookkeeping and reports its
// collected-event count. The conn is closed by the time this runs.
func (m *Manager) freeContext(ctx *Context) int {
	sess := ctx.lockSession()

	// Memberships the client never left die with the context. The
	// conn close already dropped the engine side.
	for _, grp := range ctx.groups {
		_ = ctx.conn.LeaveMulticast(grp.addr)
		m.reg.mu.Lock()
		m.reg.grps.erase(grp.id)
		m.reg.mu.Unlock()
	}
	ctx.groups = nil

	events := sess.queue.extract(func(e *pendingEvent) bool { return e.ctx == ctx })
	sess.ctxs = unlinkContext(sess.ctxs, ctx)
	reported := ctx.eventsReported
	sess.mu.Unlock()

	// Connect requests nobody adopted still hold child conns. Closing
	// them outside the session lock keeps the engine free to finish
	// in-flight handler calls.
	for _, uev := range events {
		if uev.kind == engine.EventConnectRequest && uev.conn != ctx.conn {
			uev.conn.Close()
		}
	}
	return reported
}

func unlinkContext(list []*Context, ctx *Context) []*Context {
	for i, c := range list {
		if c == ctx {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
