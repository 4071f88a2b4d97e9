package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/ucm-project/ucm-go/pkg/log"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// request carries one submission through its handler.
type request struct {
	ctx     context.Context
	sess    *Session
	hdr     wire.CommandHeader
	payload []byte
	send    func([]byte) error
}

// decode unmarshals the command payload.
// Returns ErrInvalidArgument when the payload does not parse.
func (r *request) decode(v any) error {
	if err := wire.Unmarshal(r.payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

// respond encodes v and delivers it through the caller's reply
// channel. Handlers map a delivery failure to ErrIOFault after
// unwinding whatever the reply was meant to acknowledge.
func (r *request) respond(v any) error {
	buf, err := wire.Marshal(v)
	if err != nil {
		return err
	}
	return r.send(buf)
}

// opTable maps opcodes to handlers, indexed directly by Op. A nil
// entry answers NOT_SUPPORTED; OpGetOption is a vacant slot retained
// for numbering stability.
var opTable = [wire.NumOps]func(*Manager, *request) error{
	wire.OpCreateID:     (*Manager).createID,
	wire.OpDestroyID:    (*Manager).destroyID,
	wire.OpBindIP:       (*Manager).bindIP,
	wire.OpResolveIP:    (*Manager).resolveIP,
	wire.OpResolveRoute: (*Manager).resolveRoute,
	wire.OpQueryRoute:   (*Manager).queryRoute,
	wire.OpConnect:      (*Manager).connect,
	wire.OpListen:       (*Manager).listen,
	wire.OpAccept:       (*Manager).accept,
	wire.OpReject:       (*Manager).reject,
	wire.OpDisconnect:   (*Manager).disconnect,
	wire.OpInitQPAttr:   (*Manager).initQPAttr,
	wire.OpGetEvent:     (*Manager).getEvent,
	wire.OpGetOption:    nil,
	wire.OpSetOption:    (*Manager).setOption,
	wire.OpNotify:       (*Manager).notify,
	wire.OpJoinIPMcast:  (*Manager).joinIPMulticast,
	wire.OpLeaveMcast:   (*Manager).leaveMulticast,
	wire.OpMigrateID:    (*Manager).migrateID,
	wire.OpQuery:        (*Manager).query,
	wire.OpBind:         (*Manager).bind,
	wire.OpResolveAddr:  (*Manager).resolveAddr,
	wire.OpJoinMcast:    (*Manager).joinMulticast,
}

// Submit runs one wire submission against the session. respond
// delivers the reply payload for operations that produce one; it is
// called at most once, before Submit returns. On success Submit
// returns the number of bytes consumed, which is always the full
// submission. On failure the returned error maps onto a wire status
// via StatusFor.
//
// ctx bounds blocking operations; cancellation surfaces as
// StatusInterrupted. Replies already delivered are never withdrawn:
// a failure after a successful respond only ever reports the
// delivery itself.
func (s *Session) Submit(ctx context.Context, buf []byte, respond func([]byte) error) (int, error) {
	m := s.mgr
	start := time.Now()

	hdr, err := wire.ParseHeader(buf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	m.plog.Log(log.Event{
		Timestamp: start,
		SessionID: s.token,
		Direction: log.DirectionIn,
		Layer:     log.LayerManager,
		Category:  log.CategoryCommand,
		Command:   &log.CommandEvent{Op: hdr.Op, In: hdr.In, Out: hdr.Out},
	})

	req := &request{ctx: ctx, sess: s, hdr: hdr, payload: buf[wire.HeaderSize:], send: respond}
	consumed, err := m.dispatch(req)

	elapsed := time.Since(start)
	m.plog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.token,
		Direction: log.DirectionOut,
		Layer:     log.LayerManager,
		Category:  log.CategoryReply,
		Reply: &log.ReplyEvent{
			Op:             hdr.Op,
			Status:         StatusFor(err),
			Consumed:       uint32(consumed),
			ProcessingTime: &elapsed,
		},
	})
	return consumed, err
}

func (m *Manager) dispatch(req *request) (int, error) {
	if !req.hdr.Op.Valid() {
		return 0, fmt.Errorf("%w: opcode %d out of range", ErrInvalidArgument, req.hdr.Op)
	}
	handler := opTable[req.hdr.Op]
	if handler == nil {
		return 0, ErrNotSupported
	}
	info, _ := wire.InfoFor(req.hdr.Op)
	if req.hdr.In < info.MinIn {
		return 0, fmt.Errorf("%w: declared in size %d below %d", ErrInvalidArgument, req.hdr.In, info.MinIn)
	}
	if info.MinOut > 0 && req.hdr.Out < info.MinOut {
		return 0, ErrInsufficientSpace
	}
	if err := handler(m, req); err != nil {
		return 0, err
	}
	return wire.HeaderSize + len(req.payload), nil
}
