package manager

import (
	"github.com/ucm-project/ucm-go/pkg/engine"
	"github.com/ucm-project/ucm-go/pkg/log"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

func (m *Manager) joinIPMulticast(req *request) error {
	var cmd wire.JoinIPMcastCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	if err := cmd.Addr.ValidateIP(); err != nil {
		return ErrInvalidArgument
	}
	// The legacy variant predates join flags and always joins as a
	// full member.
	return m.processJoin(req, cmd.UID, cmd.ID, cmd.Addr, engine.JoinFullMember)
}

func (m *Manager) joinMulticast(req *request) error {
	var cmd wire.JoinMcastCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	if cmd.AddrSize == 0 || cmd.AddrSize != cmd.Addr.Family.DeclaredSize() {
		return ErrInvalidArgument
	}
	if err := cmd.Addr.Validate(); err != nil {
		return ErrInvalidArgument
	}
	var state engine.JoinState
	switch cmd.JoinFlags {
	case wire.JoinFlagFullMember:
		state = engine.JoinFullMember
	case wire.JoinFlagSendOnlyFullMember:
		state = engine.JoinSendOnlyFullMember
	default:
		return ErrInvalidArgument
	}
	return m.processJoin(req, cmd.UID, cmd.ID, cmd.Addr, state)
}

// processJoin reserves a group handle, joins on the engine, and
// publishes the group only once the reply has reached the client, so
// a handle the client never learned can never surface events.
func (m *Manager) processJoin(req *request, uid, id uint64, waddr wire.SockAddr, state engine.JoinState) error {
	addr, err := addrFromWire(waddr)
	if err != nil {
		return err
	}
	ctx, err := m.getContext(req.sess, id)
	if err != nil {
		return err
	}
	defer ctx.refs.put()

	sess := ctx.lockSession()
	m.reg.mu.Lock()
	gid, err := m.reg.grps.reserve()
	m.reg.mu.Unlock()
	if err != nil {
		sess.mu.Unlock()
		return err
	}
	grp := &Group{id: gid, ctx: ctx, uid: uid, addr: addr, state: state}
	ctx.groups = append(ctx.groups, grp)
	sess.mu.Unlock()

	ctx.mu.Lock()
	err = ctx.conn.JoinMulticast(addr, state, grp)
	ctx.mu.Unlock()
	if err != nil {
		m.unlinkGroup(ctx, grp)
		return err
	}

	if err := req.respond(&wire.JoinReply{ID: gid}); err != nil {
		ctx.mu.Lock()
		_ = ctx.conn.LeaveMulticast(addr)
		ctx.mu.Unlock()
		m.discardGroupEvents(ctx, grp)
		m.unlinkGroup(ctx, grp)
		return ErrIOFault
	}

	m.reg.mu.Lock()
	m.reg.grps.publish(gid, grp)
	m.reg.mu.Unlock()
	m.logState(req.sess.token, log.StateEntityGroup, handleString(gid), "", "JOINED", addr.String())
	return nil
}

func (m *Manager) leaveMulticast(req *request) error {
	var cmd wire.LeaveMcastCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}

	m.reg.mu.Lock()
	grp, ok := m.reg.grps.lookup(cmd.ID)
	if !ok {
		m.reg.mu.Unlock()
		return ErrNotFound
	}
	ctx := grp.ctx
	if ctx.sess.Load() != req.sess {
		m.reg.mu.Unlock()
		return ErrNotOwner
	}
	if !ctx.refs.getIfLive() {
		m.reg.mu.Unlock()
		return ErrGone
	}
	m.reg.grps.erase(cmd.ID)
	m.reg.mu.Unlock()

	ctx.mu.Lock()
	_ = ctx.conn.LeaveMulticast(grp.addr)
	ctx.mu.Unlock()

	m.discardGroupEvents(ctx, grp)

	sess := ctx.lockSession()
	ctx.groups = unlinkGroupLocked(ctx.groups, grp)
	reported := grp.eventsReported
	sess.mu.Unlock()

	ctx.refs.put()
	m.logState(req.sess.token, log.StateEntityGroup, handleString(cmd.ID), "JOINED", "LEFT", "")

	if err := req.respond(&wire.LeaveReply{EventsReported: uint32(reported)}); err != nil {
		return ErrIOFault
	}
	return nil
}

// discardGroupEvents drops queued events belonging to grp.
func (m *Manager) discardGroupEvents(ctx *Context, grp *Group) {
	sess := ctx.lockSession()
	sess.queue.extract(func(e *pendingEvent) bool { return e.group == grp })
	sess.mu.Unlock()
}

// unlinkGroup reverses a join that never completed: the group leaves
// the context's list and its reserved handle is retired.
func (m *Manager) unlinkGroup(ctx *Context, grp *Group) {
	sess := ctx.lockSession()
	ctx.groups = unlinkGroupLocked(ctx.groups, grp)
	sess.mu.Unlock()
	m.reg.mu.Lock()
	m.reg.grps.erase(grp.id)
	m.reg.mu.Unlock()
}

func unlinkGroupLocked(list []*Group, grp *Group) []*Group {
	for i, g := range list {
		if g == grp {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
