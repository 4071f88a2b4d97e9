package client

import (
	"context"

	"github.com/ucm-project/ucm-go/pkg/wire"
)

// CreateID allocates a new connection context in the given port space
// and returns its id. The uid tags events delivered for this context.
func (c *Client) CreateID(ctx context.Context, uid uint64, space wire.PortSpace, qpType uint8) (uint64, error) {
	cmd := wire.CreateCmd{UID: uid, PortSpace: space, QPType: qpType}
	var rep wire.CreateReply
	if err := c.callInto(ctx, wire.OpCreateID, wire.CreateCmdSize, wire.CreateReplySize, &cmd, &rep); err != nil {
		return 0, err
	}
	return rep.ID, nil
}

// DestroyID tears down a context and returns the number of events that
// were delivered for it before destruction.
func (c *Client) DestroyID(ctx context.Context, id uint64) (uint32, error) {
	cmd := wire.DestroyCmd{ID: id}
	var rep wire.DestroyReply
	if err := c.callInto(ctx, wire.OpDestroyID, wire.DestroyCmdSize, wire.DestroyReplySize, &cmd, &rep); err != nil {
		return 0, err
	}
	return rep.EventsReported, nil
}

// BindIP binds a context to a local IP address.
func (c *Client) BindIP(ctx context.Context, id uint64, addr wire.SockAddr) error {
	cmd := wire.BindIPCmd{ID: id, Addr: addr}
	_, err := c.call(ctx, wire.OpBindIP, wire.BindIPCmdSize, 0, &cmd)
	return err
}

// Bind binds a context to a local address of any supported family.
func (c *Client) Bind(ctx context.Context, id uint64, addr wire.SockAddr) error {
	cmd := wire.BindCmd{ID: id, AddrSize: addr.Family.DeclaredSize(), Addr: addr}
	_, err := c.call(ctx, wire.OpBind, wire.BindCmdSize, 0, &cmd)
	return err
}

// ResolveIP starts asynchronous resolution of a destination IP address.
// The source is optional; pass a zero SockAddr to let the daemon pick.
// Completion arrives as an ADDR_RESOLVED or ADDR_ERROR event.
func (c *Client) ResolveIP(ctx context.Context, id uint64, src, dst wire.SockAddr, timeoutMs uint32) error {
	cmd := wire.ResolveIPCmd{ID: id, Src: src, Dst: dst, TimeoutMs: timeoutMs}
	_, err := c.call(ctx, wire.OpResolveIP, wire.ResolveIPCmdSize, 0, &cmd)
	return err
}

// ResolveAddr starts asynchronous resolution of a destination address
// of any supported family. The source is optional.
func (c *Client) ResolveAddr(ctx context.Context, id uint64, src, dst wire.SockAddr, timeoutMs uint32) error {
	cmd := wire.ResolveAddrCmd{
		ID:        id,
		DstSize:   dst.Family.DeclaredSize(),
		Dst:       dst,
		TimeoutMs: timeoutMs,
	}
	if src.Family != wire.FamilyUnspec {
		cmd.SrcSize = src.Family.DeclaredSize()
		cmd.Src = src
	}
	_, err := c.call(ctx, wire.OpResolveAddr, wire.ResolveAddrCmdSize, 0, &cmd)
	return err
}

// ResolveRoute starts asynchronous route resolution for a context whose
// address is already resolved. Completion arrives as a ROUTE_RESOLVED
// or ROUTE_ERROR event.
func (c *Client) ResolveRoute(ctx context.Context, id uint64, timeoutMs uint32) error {
	cmd := wire.ResolveRouteCmd{ID: id, TimeoutMs: timeoutMs}
	_, err := c.call(ctx, wire.OpResolveRoute, wire.ResolveRouteCmdSize, 0, &cmd)
	return err
}

// QueryRoute returns the bound addresses and resolved path records of
// a context.
func (c *Client) QueryRoute(ctx context.Context, id uint64) (*wire.RouteReply, error) {
	cmd := wire.QueryRouteCmd{ID: id}
	var rep wire.RouteReply
	if err := c.callInto(ctx, wire.OpQueryRoute, wire.QueryRouteCmdSize, wire.RouteReplyFullSize, &cmd, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// QueryAddrInfo returns the device association and bound addresses of
// a context.
func (c *Client) QueryAddrInfo(ctx context.Context, id uint64) (*wire.AddrReply, error) {
	return c.query(ctx, id, wire.QueryAddr)
}

// QueryGID returns the device association of a context with addresses
// rendered in GID form.
func (c *Client) QueryGID(ctx context.Context, id uint64) (*wire.AddrReply, error) {
	return c.query(ctx, id, wire.QueryGID)
}

func (c *Client) query(ctx context.Context, id uint64, opt wire.QueryOption) (*wire.AddrReply, error) {
	cmd := wire.QueryCmd{ID: id, Option: opt}
	var rep wire.AddrReply
	if err := c.callInto(ctx, wire.OpQuery, wire.QueryCmdSize, wire.AddrReplyFullSize, &cmd, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// maxQueryPathRecords is the path record capacity declared by QueryPath.
// NumPaths in the reply reports how many the context actually holds.
const maxQueryPathRecords = 16

// QueryPath returns the resolved path records of a context, up to
// maxQueryPathRecords of them.
func (c *Client) QueryPath(ctx context.Context, id uint64) (*wire.PathReply, error) {
	cmd := wire.QueryCmd{ID: id, Option: wire.QueryPath}
	const out = wire.PathReplyHeaderSize + maxQueryPathRecords*wire.PathRecordSize
	var rep wire.PathReply
	if err := c.callInto(ctx, wire.OpQuery, wire.QueryCmdSize, out, &cmd, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// Connect initiates a connection to the resolved destination. The
// parameter block is required; completion arrives as an ESTABLISHED,
// REJECTED or UNREACHABLE event.
func (c *Client) Connect(ctx context.Context, id uint64, param wire.ConnParam, ece *wire.ECE) error {
	param.Valid = true
	cmd := wire.ConnectCmd{ID: id, Param: param, ECE: ece}
	in := uint16(wire.ConnectCmdSize)
	if ece != nil {
		in = wire.ConnectCmdFullSize
	}
	_, err := c.call(ctx, wire.OpConnect, in, 0, &cmd)
	return err
}

// Listen puts a bound context into listening state. A zero backlog
// selects the daemon's default.
func (c *Client) Listen(ctx context.Context, id uint64, backlog uint32) error {
	cmd := wire.ListenCmd{ID: id, Backlog: backlog}
	_, err := c.call(ctx, wire.OpListen, wire.ListenCmdSize, 0, &cmd)
	return err
}

// Accept accepts a pending connection request. On a context created
// for a CONNECT_REQUEST event the param block must be supplied and uid
// becomes the context's event tag. Passing nil param accepts on an
// already-bound listening context.
func (c *Client) Accept(ctx context.Context, id, uid uint64, param *wire.ConnParam, ece *wire.ECE) error {
	cmd := wire.AcceptCmd{ID: id, UID: uid, ECE: ece}
	if param != nil {
		p := *param
		p.Valid = true
		cmd.Param = p
	}
	in := uint16(wire.AcceptCmdSize)
	if ece != nil {
		in = wire.AcceptCmdFullSize
	}
	_, err := c.call(ctx, wire.OpAccept, in, 0, &cmd)
	return err
}

// Reject refuses a pending connection request, optionally sending
// private data back to the initiator.
func (c *Client) Reject(ctx context.Context, id uint64, reason wire.RejectReason, privateData []byte) error {
	cmd := wire.RejectCmd{ID: id, Reason: reason, PrivateData: privateData}
	_, err := c.call(ctx, wire.OpReject, wire.RejectCmdSize, 0, &cmd)
	return err
}

// Disconnect tears down an established connection. The remote side
// observes a DISCONNECTED event.
func (c *Client) Disconnect(ctx context.Context, id uint64) error {
	cmd := wire.DisconnectCmd{ID: id}
	_, err := c.call(ctx, wire.OpDisconnect, wire.DisconnectCmdSize, 0, &cmd)
	return err
}

// InitQPAttr returns the queue pair attributes needed to move a QP
// into the given state.
func (c *Client) InitQPAttr(ctx context.Context, id uint64, qpState uint32) (*wire.QPAttr, error) {
	cmd := wire.InitQPAttrCmd{ID: id, QPState: qpState}
	var rep wire.QPAttr
	if err := c.callInto(ctx, wire.OpInitQPAttr, wire.InitQPAttrCmdSize, wire.QPAttrReplySize, &cmd, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// GetEvent collects the next queued event. With nonblock set it fails
// with StatusWouldBlock instead of waiting when the queue is empty;
// otherwise it waits until an event arrives, the context is cancelled
// or the session closes.
func (c *Client) GetEvent(ctx context.Context, nonblock bool) (*wire.EventReply, error) {
	cmd := wire.GetEventCmd{Nonblock: nonblock}
	var rep wire.EventReply
	if err := c.callInto(ctx, wire.OpGetEvent, wire.GetEventCmdSize, wire.EventReplyFullSize, &cmd, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// SetOption sets a raw option on a context. Most callers want the
// typed helpers in options.go instead.
func (c *Client) SetOption(ctx context.Context, id uint64, level, name uint32, val []byte) error {
	cmd := wire.SetOptionCmd{
		ID:     id,
		Level:  level,
		Name:   name,
		OptLen: uint32(len(val)),
		OptVal: val,
	}
	_, err := c.call(ctx, wire.OpSetOption, wire.SetOptionCmdSize, 0, &cmd)
	return err
}

// Notify reports a queue pair event observed by the application so the
// daemon can keep connection liveness in sync.
func (c *Client) Notify(ctx context.Context, id uint64, event uint32) error {
	cmd := wire.NotifyCmd{ID: id, Event: event}
	_, err := c.call(ctx, wire.OpNotify, wire.NotifyCmdSize, 0, &cmd)
	return err
}

// JoinIPMulticast joins a multicast group by IP address as a full
// member. It returns the group id used with LeaveMulticast; the uid
// tags the group's events.
func (c *Client) JoinIPMulticast(ctx context.Context, id, uid uint64, addr wire.SockAddr) (uint64, error) {
	cmd := wire.JoinIPMcastCmd{UID: uid, Addr: addr, ID: id}
	var rep wire.JoinReply
	if err := c.callInto(ctx, wire.OpJoinIPMcast, wire.JoinIPMcastCmdSize, wire.JoinReplySize, &cmd, &rep); err != nil {
		return 0, err
	}
	return rep.ID, nil
}

// JoinMulticast joins a multicast group with explicit membership
// flags, which must be exactly one of JoinFlagFullMember or
// JoinFlagSendOnlyFullMember.
func (c *Client) JoinMulticast(ctx context.Context, id, uid uint64, addr wire.SockAddr, flags uint16) (uint64, error) {
	cmd := wire.JoinMcastCmd{
		UID:       uid,
		Addr:      addr,
		ID:        id,
		AddrSize:  addr.Family.DeclaredSize(),
		JoinFlags: flags,
	}
	var rep wire.JoinReply
	if err := c.callInto(ctx, wire.OpJoinMcast, wire.JoinMcastCmdSize, wire.JoinReplySize, &cmd, &rep); err != nil {
		return 0, err
	}
	return rep.ID, nil
}

// LeaveMulticast leaves a multicast group and returns the number of
// events delivered for it.
func (c *Client) LeaveMulticast(ctx context.Context, mcastID uint64) (uint32, error) {
	cmd := wire.LeaveMcastCmd{ID: mcastID}
	var rep wire.LeaveReply
	if err := c.callInto(ctx, wire.OpLeaveMcast, wire.LeaveMcastCmdSize, wire.LeaveReplySize, &cmd, &rep); err != nil {
		return 0, err
	}
	return rep.EventsReported, nil
}

// MigrateID moves a context from the session named by token into this
// client's session. It returns the number of events already delivered
// on the old session.
func (c *Client) MigrateID(ctx context.Context, id uint64, token string) (uint32, error) {
	cmd := wire.MigrateCmd{ID: id, Token: token}
	var rep wire.MigrateReply
	if err := c.callInto(ctx, wire.OpMigrateID, wire.MigrateCmdSize, wire.MigrateReplySize, &cmd, &rep); err != nil {
		return 0, err
	}
	return rep.EventsReported, nil
}
