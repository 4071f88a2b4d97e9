package manager

import (
	"time"

	"github.com/ucm-project/ucm-go/pkg/engine"
	"github.com/ucm-project/ucm-go/pkg/log"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// handleEvent is the engine event handler for every conn the manager
// creates. It runs on the engine's delivery goroutine; queue and
// bookkeeping updates happen under the owning session's lock so
// collection observes a consistent queue.
func (m *Manager) handleEvent(conn engine.Conn, ev *engine.Event) engine.Disposition {
	ctx, ok := conn.Owner().(*Context)
	if !ok {
		return engine.Dropped
	}

	sess := ctx.lockSession()

	uev := &pendingEvent{ctx: ctx, conn: conn, kind: ev.Kind}
	uev.reply = buildEventReply(ctx, conn, ev)
	switch ev.Kind {
	case engine.EventMulticastJoin, engine.EventMulticastError:
		if grp, ok := ev.Tag.(*Group); ok {
			uev.group = grp
			uev.reply.UID = grp.uid
			uev.reply.ID = grp.id
		}
	}

	disp := engine.Delivered
	switch {
	case ev.Kind == engine.EventConnectRequest:
		if ctx.backlog <= 0 {
			// the engine destroys the child conn on refusal
			disp = engine.Refused
		} else {
			ctx.backlog--
		}
	case ctx.uid == 0 || conn != ctx.conn:
		// Events for contexts the client has not claimed, and for
		// inflight connect-request conns, are dropped; the client
		// learns of any failure when its accept fails. Device removal
		// still has to release the conn underneath.
		disp = engine.Dropped
	}

	if disp == engine.Delivered {
		wasEmpty := sess.queue.empty()
		sess.queue.push(uev)
		sess.signalLocked(wasEmpty)
	}
	if ev.Kind == engine.EventDeviceRemoval {
		m.removalLocked(sess, ctx, conn)
	}
	token := sess.token
	sess.mu.Unlock()

	m.logIngest(token, ctx, uev.group, ev, disp)
	return disp
}

// buildEventReply freezes the reply at ingest time. Connection kinds
// carry conn params, datagram kinds UD params; ECE rides along and is
// stripped at collection when the client's declared capacity excludes
// it. Called with the owning session's lock held.
func buildEventReply(ctx *Context, conn engine.Conn, ev *engine.Event) *wire.EventReply {
	reply := &wire.EventReply{
		UID:    ctx.uid,
		ID:     ctx.id,
		Event:  uint32(ev.Kind),
		Status: ev.Status,
	}
	if conn.QPType() == engine.QPTypeUD {
		reply.UD = udParamToWire(&ev.UD)
	} else {
		reply.Conn = connParamToWire(&ev.Conn)
	}
	reply.ECE = &wire.ECE{VendorID: ev.ECE.VendorID, AttrMod: ev.ECE.AttrMod}
	return reply
}

// removalLocked releases the conn hit by a device removal. Called
// with the owning session's lock held.
//
// A removal against the context's own conn hands teardown to the
// close worker: the worker drains borrows and closes the conn, while
// the context itself stays alive for the client to destroy. A removal
// against an inflight connect-request conn instead drops its queued
// event and closes the child directly.
func (m *Manager) removalLocked(sess *Session, ctx *Context, conn engine.Conn) {
	if ctx.destroying {
		return
	}
	if conn == ctx.conn {
		m.reg.mu.Lock()
		if ctx.closing {
			m.reg.mu.Unlock()
			return
		}
		ctx.closing = true
		m.reg.mu.Unlock()
		m.logState(sess.token, log.StateEntityContext, handleString(ctx.id), "", "CLOSING", "device removal")
		sess.closer.submit(func() {
			ctx.refs.put()
			ctx.refs.wait()
			ctx.conn.Close()
		})
		return
	}
	if uev := sess.queue.removeFirst(func(e *pendingEvent) bool {
		return e.conn == conn && e.kind == engine.EventConnectRequest
	}); uev != nil {
		sess.closer.submit(func() { conn.Close() })
		return
	}
	m.slog.Warn("device removal for an inflight connect request with no queued event",
		"context", ctx.id, "session", sess.token)
}

func (m *Manager) logIngest(token string, ctx *Context, grp *Group, ev *engine.Event, disp engine.Disposition) {
	ie := &log.IngestEvent{
		Kind:        uint32(ev.Kind),
		Status:      ev.Status,
		ContextID:   ctx.id,
		Disposition: uint8(disp),
	}
	if grp != nil {
		gid := grp.id
		ie.GroupID = &gid
	}
	m.plog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: token,
		Direction: log.DirectionIn,
		Layer:     log.LayerManager,
		Category:  log.CategoryEvent,
		Ingest:    ie,
	})
}
