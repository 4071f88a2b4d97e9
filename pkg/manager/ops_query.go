package manager

import (
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// queryRoute answers the legacy combined snapshot. Addresses are
// always reported; the device section appears once resolution has
// bound a device, and the device index only when the declared
// capacity reaches it.
func (m *Manager) queryRoute(req *request) error {
	var cmd wire.QueryRouteCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	ctx, err := m.getContext(req.sess, cmd.ID)
	if err != nil {
		return err
	}
	defer ctx.refs.put()

	ctx.mu.Lock()
	route := ctx.conn.Route()
	rep := wire.RouteReply{
		Src: addrToWire(route.Src),
		Dst: addrToWire(route.Dst),
	}
	if dev := ctx.conn.Device(); dev != nil {
		rep.NodeGUID = dev.GUID
		rep.PortNum = route.PortNum
		if req.hdr.Out >= wire.RouteReplyFullSize {
			idx := dev.Index
			rep.DeviceIndex = &idx
		}
		rep.NumPaths = uint32(route.NumPaths)
		n := len(route.Paths)
		if n > 2 {
			n = 2
		}
		for _, p := range route.Paths[:n] {
			rep.Paths = append(rep.Paths, wire.PathRecord{Raw: append([]byte(nil), p...)})
		}
	}
	ctx.mu.Unlock()

	if err := req.respond(&rep); err != nil {
		return ErrIOFault
	}
	return nil
}

func (m *Manager) query(req *request) error {
	var cmd wire.QueryCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	ctx, err := m.getContext(req.sess, cmd.ID)
	if err != nil {
		return err
	}
	defer ctx.refs.put()

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	switch cmd.Option {
	case wire.QueryAddr:
		return m.queryAddr(ctx, req)
	case wire.QueryPath:
		return m.queryPath(ctx, req)
	case wire.QueryGID:
		return m.queryGID(ctx, req)
	default:
		return ErrInvalidArgument
	}
}

// deviceSection fills the device half of an AddrReply when the
// context has bound a device.
func deviceSection(ctx *Context, out uint16, rep *wire.AddrReply) {
	dev := ctx.conn.Device()
	if dev == nil {
		return
	}
	route := ctx.conn.Route()
	rep.NodeGUID = dev.GUID
	rep.PortNum = route.PortNum
	rep.Pkey = route.Src.Pkey
	if out >= wire.AddrReplyFullSize {
		idx := dev.Index
		rep.DeviceIndex = &idx
	}
}

func (m *Manager) queryAddr(ctx *Context, req *request) error {
	if req.hdr.Out < wire.AddrReplyMinSize {
		return ErrInsufficientSpace
	}
	src := addrToWire(ctx.conn.Source())
	dst := addrToWire(ctx.conn.Dest())
	rep := wire.AddrReply{
		SrcSize: src.Family.DeclaredSize(),
		DstSize: dst.Family.DeclaredSize(),
		Src:     src,
		Dst:     dst,
	}
	deviceSection(ctx, req.hdr.Out, &rep)
	if err := req.respond(&rep); err != nil {
		return ErrIOFault
	}
	return nil
}

func (m *Manager) queryPath(ctx *Context, req *request) error {
	if req.hdr.Out < wire.PathReplyHeaderSize {
		return ErrInsufficientSpace
	}
	route := ctx.conn.Route()
	rep := wire.PathReply{NumPaths: uint32(route.NumPaths)}
	n := len(route.Paths)
	if fit := (int(req.hdr.Out) - wire.PathReplyHeaderSize) / wire.PathRecordSize; n > fit {
		n = fit
	}
	for _, p := range route.Paths[:n] {
		rep.Paths = append(rep.Paths, wire.PathRecord{
			Flags: wire.PathGMP | wire.PathPrimary | wire.PathBidirectional,
			Raw:   append([]byte(nil), p...),
		})
	}
	if err := req.respond(&rep); err != nil {
		return ErrIOFault
	}
	return nil
}

// queryGID answers with the ADDR layout but renders both endpoints in
// IB GID form, synthesizing the GID mapping for IP addresses.
func (m *Manager) queryGID(ctx *Context, req *request) error {
	if req.hdr.Out < wire.AddrReplyMinSize {
		return ErrInsufficientSpace
	}
	var rep wire.AddrReply
	deviceSection(ctx, req.hdr.Out, &rep)
	rep.Src = gidForm(ctx.conn.Source(), rep.Pkey)
	rep.SrcSize = wire.FamilyIB.DeclaredSize()
	rep.Dst = gidForm(ctx.conn.Dest(), rep.Pkey)
	rep.DstSize = wire.FamilyIB.DeclaredSize()
	if err := req.respond(&rep); err != nil {
		return ErrIOFault
	}
	return nil
}
