package manager

import (
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// qpStateMax bounds the commanded QP state on INIT_QP_ATTR; higher
// values name no state.
const qpStateMax = 6

func (m *Manager) connect(req *request) error {
	var cmd wire.ConnectCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	if !cmd.Param.Valid {
		return ErrInvalidArgument
	}
	ctx, err := m.getContextWithDevice(req.sess, cmd.ID)
	if err != nil {
		return err
	}
	defer ctx.refs.put()

	param := connParamFromWire(&cmd.Param)
	var ece *wire.ECE
	if req.hdr.In >= wire.ConnectCmdFullSize {
		ece = cmd.ECE
	}

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.conn.Connect(param, eceFromWire(ece))
}

func (m *Manager) listen(req *request) error {
	var cmd wire.ListenCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	ctx, err := m.getContext(req.sess, cmd.ID)
	if err != nil {
		return err
	}
	defer ctx.refs.put()

	backlog := int(cmd.Backlog)
	if backlog <= 0 || backlog > m.cfg.MaxBacklog {
		backlog = m.cfg.MaxBacklog
	}
	sess := ctx.lockSession()
	ctx.backlog = backlog
	sess.mu.Unlock()

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.conn.Listen(backlog)
}

func (m *Manager) accept(req *request) error {
	var cmd wire.AcceptCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	ctx, err := m.getContextWithDevice(req.sess, cmd.ID)
	if err != nil {
		return err
	}
	defer ctx.refs.put()

	var ece *wire.ECE
	if req.hdr.In >= wire.AcceptCmdFullSize {
		ece = cmd.ECE
	}

	if cmd.Param.Valid {
		// The claim and the accept must be atomic against the event
		// handler: events arriving before the claim are dropped,
		// events after it are queued under the new uid.
		param := connParamFromWire(&cmd.Param)
		sess := ctx.lockSession()
		ctx.mu.Lock()
		err = ctx.conn.Accept(&param, eceFromWire(ece))
		if err == nil {
			ctx.uid = cmd.UID
		}
		ctx.mu.Unlock()
		sess.mu.Unlock()
		return err
	}

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.conn.Accept(nil, eceFromWire(ece))
}

func (m *Manager) reject(req *request) error {
	var cmd wire.RejectCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	if cmd.Reason == 0 {
		cmd.Reason = wire.RejectConsumerDefined
	}
	switch cmd.Reason {
	case wire.RejectConsumerDefined, wire.RejectVendorOption:
	default:
		return ErrInvalidArgument
	}
	ctx, err := m.getContextWithDevice(req.sess, cmd.ID)
	if err != nil {
		return err
	}
	defer ctx.refs.put()

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.conn.Reject(cmd.PrivateData, uint8(cmd.Reason))
}

func (m *Manager) disconnect(req *request) error {
	var cmd wire.DisconnectCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	ctx, err := m.getContextWithDevice(req.sess, cmd.ID)
	if err != nil {
		return err
	}
	defer ctx.refs.put()

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.conn.Disconnect()
}

func (m *Manager) initQPAttr(req *request) error {
	var cmd wire.InitQPAttrCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	if cmd.QPState > qpStateMax {
		return ErrInvalidArgument
	}
	ctx, err := m.getContextWithDevice(req.sess, cmd.ID)
	if err != nil {
		return err
	}
	defer ctx.refs.put()

	ctx.mu.Lock()
	attr, err := ctx.conn.InitQPAttr(cmd.QPState)
	ctx.mu.Unlock()
	if err != nil {
		return err
	}

	rep := qpAttrToWire(attr)
	if err := req.respond(&rep); err != nil {
		return ErrIOFault
	}
	return nil
}

func (m *Manager) notify(req *request) error {
	var cmd wire.NotifyCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	ctx, err := m.getContextWithDevice(req.sess, cmd.ID)
	if err != nil {
		return err
	}
	defer ctx.refs.put()

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.conn.Notify(cmd.Event)
}
