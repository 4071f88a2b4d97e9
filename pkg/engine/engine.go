package engine

import "time"

// Engine creates conns on a fabric. Implementations must be safe for
// concurrent use.
type Engine interface {
	// CreateConn allocates a conn in the given port space. The handler
	// receives every event for the conn (and for children spawned by
	// its listens) until the conn is closed. owner is an opaque value
	// readable via Conn.Owner.
	CreateConn(handler EventHandler, owner any, space PortSpace, qp QPType) (Conn, error)

	// Close tears down the engine. All conns are closed first.
	Close() error
}

// Conn is one fabric connection endpoint. Operations return engine
// errors from this package; they submit work and never block on the
// fabric, with completions arriving through the event handler.
type Conn interface {
	// Owner returns the opaque value attached at creation.
	Owner() any

	// SetOwner replaces the opaque owner value. Used when a child conn
	// is adopted by a new owner.
	SetOwner(owner any)

	// QPType returns the conn's queue pair type.
	QPType() QPType

	// Device returns the bound device, or nil before address
	// resolution or an explicit bind.
	Device() *Device

	// BindAddr binds the conn to a local source address.
	BindAddr(addr Addr) error

	// ResolveAddr resolves dst (and optionally src) to a device. Src
	// may be unspecified. Completion arrives as an ADDR_RESOLVED or
	// ADDR_ERROR event.
	ResolveAddr(src, dst Addr, timeout time.Duration) error

	// ResolveRoute resolves the fabric route after address
	// resolution. Completion arrives as ROUTE_RESOLVED or ROUTE_ERROR.
	ResolveRoute(timeout time.Duration) error

	// Listen moves the conn into the listening state. Incoming
	// requests surface as CONNECT_REQUEST events carrying child conns.
	Listen(backlog int) error

	// Connect initiates establishment toward the resolved destination.
	Connect(param ConnParam, ece *ECE) error

	// Accept completes establishment on a connect-request child. A nil
	// param accepts without parameters.
	Accept(param *ConnParam, ece *ECE) error

	// Reject refuses a connect-request child with a consumer reason.
	Reject(privateData []byte, reason uint8) error

	// Disconnect tears down an established connection.
	Disconnect() error

	// InitQPAttr returns QP attributes for moving a QP into qpState.
	InitQPAttr(qpState uint32) (QPAttr, error)

	// Notify forwards a QP event observed out of band.
	Notify(event uint32) error

	// JoinMulticast joins a multicast group. tag is carried back in
	// the Tag field of the group's events.
	JoinMulticast(addr Addr, state JoinState, tag any) error

	// LeaveMulticast leaves a previously joined group.
	LeaveMulticast(addr Addr) error

	// SetTOS sets the type of service for outgoing packets.
	SetTOS(tos uint8) error

	// SetReuseAddr allows binding to an address in the timewait state.
	SetReuseAddr(reuse bool) error

	// SetAFOnly restricts a wildcard bind to the bound family.
	SetAFOnly(afonly bool) error

	// SetACKTimeout overrides the transport ACK timeout.
	SetACKTimeout(timeout uint8) error

	// SetPath installs externally resolved routing records in place of
	// route resolution.
	SetPath(records []PathRecord) error

	// Source returns the bound source address.
	Source() Addr

	// Dest returns the resolved destination address.
	Dest() Addr

	// Route returns the resolved route snapshot.
	Route() RouteInfo

	// Close destroys the conn. When Close returns, no further events
	// are delivered for it.
	Close() error
}
