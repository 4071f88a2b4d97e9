package manager

import (
	"time"

	"github.com/ucm-project/ucm-go/pkg/wire"
)

func (m *Manager) bindIP(req *request) error {
	var cmd wire.BindIPCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	if err := cmd.Addr.ValidateIP(); err != nil {
		return ErrInvalidArgument
	}
	addr, err := addrFromWire(cmd.Addr)
	if err != nil {
		return err
	}
	ctx, err := m.getContext(req.sess, cmd.ID)
	if err != nil {
		return err
	}
	defer ctx.refs.put()

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.conn.BindAddr(addr)
}

func (m *Manager) bind(req *request) error {
	var cmd wire.BindCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	if cmd.Reserved != 0 || cmd.AddrSize == 0 || cmd.AddrSize != cmd.Addr.Family.DeclaredSize() {
		return ErrInvalidArgument
	}
	if err := cmd.Addr.Validate(); err != nil {
		return ErrInvalidArgument
	}
	addr, err := addrFromWire(cmd.Addr)
	if err != nil {
		return err
	}
	ctx, err := m.getContext(req.sess, cmd.ID)
	if err != nil {
		return err
	}
	defer ctx.refs.put()

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.conn.BindAddr(addr)
}

func (m *Manager) resolveIP(req *request) error {
	var cmd wire.ResolveIPCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	// The source is optional; a family says one was supplied.
	if cmd.Src.Family != wire.FamilyUnspec {
		if err := cmd.Src.ValidateIP(); err != nil {
			return ErrInvalidArgument
		}
	}
	if err := cmd.Dst.ValidateIP(); err != nil {
		return ErrInvalidArgument
	}
	src, err := addrFromWire(cmd.Src)
	if err != nil {
		return err
	}
	dst, err := addrFromWire(cmd.Dst)
	if err != nil {
		return err
	}
	ctx, err := m.getContext(req.sess, cmd.ID)
	if err != nil {
		return err
	}
	defer ctx.refs.put()

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.conn.ResolveAddr(src, dst, timeoutFromMs(cmd.TimeoutMs))
}

func (m *Manager) resolveAddr(req *request) error {
	var cmd wire.ResolveAddrCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	if cmd.SrcSize != 0 && cmd.SrcSize != cmd.Src.Family.DeclaredSize() {
		return ErrInvalidArgument
	}
	if cmd.DstSize == 0 || cmd.DstSize != cmd.Dst.Family.DeclaredSize() {
		return ErrInvalidArgument
	}
	var src wire.SockAddr
	if cmd.SrcSize != 0 {
		if err := cmd.Src.Validate(); err != nil {
			return ErrInvalidArgument
		}
		src = cmd.Src
	}
	if err := cmd.Dst.Validate(); err != nil {
		return ErrInvalidArgument
	}
	esrc, err := addrFromWire(src)
	if err != nil {
		return err
	}
	edst, err := addrFromWire(cmd.Dst)
	if err != nil {
		return err
	}
	ctx, err := m.getContext(req.sess, cmd.ID)
	if err != nil {
		return err
	}
	defer ctx.refs.put()

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.conn.ResolveAddr(esrc, edst, timeoutFromMs(cmd.TimeoutMs))
}

func (m *Manager) resolveRoute(req *request) error {
	var cmd wire.ResolveRouteCmd
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
	return ctx.conn.ResolveRoute(timeoutFromMs(cmd.TimeoutMs))
}

func timeoutFromMs(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
