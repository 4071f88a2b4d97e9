package manager

import (
	"github.com/ucm-project/ucm-go/pkg/log"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// migrateID moves a context from the session named by the token onto
// the submitting session, queued events included, preserving their
// order. Both session locks are held for the move so no event lands
// in either queue mid-flight.
func (m *Manager) migrateID(req *request) error {
	var cmd wire.MigrateCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	dst := req.sess
	src, ok := m.sessionByToken(cmd.Token)
	if !ok {
		return ErrNotFound
	}
	// Validate against the source session and pin the context.
	ctx, err := m.getContext(src, cmd.ID)
	if err != nil {
		return err
	}
	defer ctx.refs.put()

	var reported int
	if src == dst {
		s := ctx.lockSession()
		reported = ctx.eventsReported
		s.mu.Unlock()
	} else {
		// Session locks nest by attach order; the registry lock then
		// re-validates, because the context may have been destroyed or
		// moved since the pin.
		lo, hi := src, dst
		if hi.seq < lo.seq {
			lo, hi = hi, lo
		}
		lo.mu.Lock()
		hi.mu.Lock()
		m.reg.mu.Lock()
		cur, ok := m.reg.ctxs.lookup(cmd.ID)
		if !ok || cur != ctx || ctx.sess.Load() != src {
			m.reg.mu.Unlock()
			hi.mu.Unlock()
			lo.mu.Unlock()
			return ErrNotFound
		}
		ctx.sess.Store(dst)
		src.ctxs = unlinkContext(src.ctxs, ctx)
		dst.ctxs = append(dst.ctxs, ctx)
		moved := src.queue.extract(func(e *pendingEvent) bool { return e.ctx == ctx })
		if len(moved) > 0 {
			wasEmpty := dst.queue.empty()
			for _, uev := range moved {
				dst.queue.push(uev)
			}
			dst.signalLocked(wasEmpty)
		}
		reported = ctx.eventsReported
		m.reg.mu.Unlock()
		hi.mu.Unlock()
		lo.mu.Unlock()

		m.logState(dst.token, log.StateEntityContext, handleString(ctx.id), src.token, dst.token, "migrated")
	}

	if err := req.respond(&wire.MigrateReply{EventsReported: uint32(reported)}); err != nil {
		return ErrIOFault
	}
	return nil
}
