package wire

// Command payload structs, one per opcode. Field numbering is ABI;
// new fields only ever append.

// CreateCmd allocates a context. UID is the client's own token for
// the context; it is echoed in every event reply.
type CreateCmd struct {
	UID       uint64    `cbor:"1,keyasint"`
	PortSpace PortSpace `cbor:"2,keyasint"`
	QPType    uint8     `cbor:"3,keyasint,omitempty"`
}

// PortSpace selects the service namespace a context lives in and
// determines its QP type.
type PortSpace uint16

const (
	PortSpaceTCP   PortSpace = 0x0106
	PortSpaceUDP   PortSpace = 0x0111
	PortSpaceIPoIB PortSpace = 0x0002
	PortSpaceIB    PortSpace = 0x013F
)

// String returns the port space name.
func (p PortSpace) String() string {
	switch p {
	case PortSpaceTCP:
		return "TCP"
	case PortSpaceUDP:
		return "UDP"
	case PortSpaceIPoIB:
		return "IPOIB"
	case PortSpaceIB:
		return "IB"
	default:
		return "UNKNOWN"
	}
}

// CreateReply returns the new context handle.
type CreateReply struct {
	ID uint64 `cbor:"1,keyasint"`
}

// DestroyCmd tears down a context.
type DestroyCmd struct {
	ID uint64 `cbor:"1,keyasint"`
}

// DestroyReply reports how many events the context delivered.
type DestroyReply struct {
	EventsReported uint32 `cbor:"1,keyasint"`
}

// BindIPCmd binds a context to an IP source address (legacy variant).
type BindIPCmd struct {
	ID   uint64   `cbor:"1,keyasint"`
	Addr SockAddr `cbor:"2,keyasint"`
}

// BindCmd binds a context to a source address of any family.
// AddrSize must equal the family's declared size.
type BindCmd struct {
	ID       uint64   `cbor:"1,keyasint"`
	AddrSize uint16   `cbor:"2,keyasint"`
	Reserved uint16   `cbor:"3,keyasint,omitempty"`
	Addr     SockAddr `cbor:"4,keyasint"`
}

// ResolveIPCmd resolves destination (and optionally source) IP
// addresses (legacy variant). Src may be unspecified.
type ResolveIPCmd struct {
	ID        uint64   `cbor:"1,keyasint"`
	Src       SockAddr `cbor:"2,keyasint"`
	Dst       SockAddr `cbor:"3,keyasint"`
	TimeoutMs uint32   `cbor:"4,keyasint"`
}

// ResolveAddrCmd resolves addresses of any family. SrcSize is zero
// when the source is unspecified, otherwise exact; DstSize is exact.
type ResolveAddrCmd struct {
	ID        uint64   `cbor:"1,keyasint"`
	SrcSize   uint16   `cbor:"2,keyasint,omitempty"`
	DstSize   uint16   `cbor:"3,keyasint"`
	Src       SockAddr `cbor:"4,keyasint,omitempty"`
	Dst       SockAddr `cbor:"5,keyasint"`
	TimeoutMs uint32   `cbor:"6,keyasint"`
}

// ResolveRouteCmd resolves the route for a bound context.
type ResolveRouteCmd struct {
	ID        uint64 `cbor:"1,keyasint"`
	TimeoutMs uint32 `cbor:"2,keyasint"`
}

// QueryRouteCmd requests the legacy combined route snapshot.
type QueryRouteCmd struct {
	ID uint64 `cbor:"1,keyasint"`
}

// QueryCmd requests an address, path, or GID snapshot.
type QueryCmd struct {
	ID     uint64      `cbor:"1,keyasint"`
	Option QueryOption `cbor:"2,keyasint"`
}

// ConnectCmd initiates connection establishment. Param.Valid must be
// set. ECE is honored only when the declared in size covers it.
type ConnectCmd struct {
	ID    uint64    `cbor:"1,keyasint"`
	Param ConnParam `cbor:"2,keyasint"`
	ECE   *ECE      `cbor:"3,keyasint,omitempty"`
}

// ListenCmd moves a bound context into the listening state. A backlog
// of zero or above the configured maximum is clamped to the maximum.
type ListenCmd struct {
	ID      uint64 `cbor:"1,keyasint"`
	Backlog uint32 `cbor:"2,keyasint,omitempty"`
}

// AcceptCmd accepts a pending connection on an adopted context. When
// Param.Valid is set, UID claims the context and opens its event gate.
type AcceptCmd struct {
	ID    uint64    `cbor:"1,keyasint"`
	UID   uint64    `cbor:"2,keyasint,omitempty"`
	Param ConnParam `cbor:"3,keyasint,omitempty"`
	ECE   *ECE      `cbor:"4,keyasint,omitempty"`
}

// RejectReason constrains the reject cause a client may send.
type RejectReason uint8

const (
	// RejectConsumerDefined is the default application-level refusal.
	RejectConsumerDefined RejectReason = 28
	// RejectVendorOption refuses due to an unsupported ECE option.
	RejectVendorOption RejectReason = 35
)

// RejectCmd refuses a pending connection. A zero Reason maps to
// RejectConsumerDefined; anything else outside the two constants is
// invalid.
type RejectCmd struct {
	ID          uint64       `cbor:"1,keyasint"`
	Reason      RejectReason `cbor:"2,keyasint,omitempty"`
	PrivateData []byte       `cbor:"3,keyasint,omitempty"`
}

// DisconnectCmd disconnects an established context.
type DisconnectCmd struct {
	ID uint64 `cbor:"1,keyasint"`
}

// InitQPAttrCmd requests QP attributes for the commanded state.
type InitQPAttrCmd struct {
	ID      uint64 `cbor:"1,keyasint"`
	QPState uint32 `cbor:"2,keyasint"`
}

// GetEventCmd retrieves the next pending event. Nonblock makes an
// empty queue fail WouldBlock instead of waiting.
type GetEventCmd struct {
	Nonblock bool `cbor:"1,keyasint,omitempty"`
}

// Option levels and names for SetOptionCmd.
const (
	OptLevelContext uint32 = 0
	OptLevelIB      uint32 = 1

	OptTOS        uint32 = 0
	OptReuseAddr  uint32 = 1
	OptAFOnly     uint32 = 2
	OptACKTimeout uint32 = 3

	OptIBPath uint32 = 1
)

// SetOptionCmd tunes a context. OptLen must equal the value length.
type SetOptionCmd struct {
	ID     uint64 `cbor:"1,keyasint"`
	Level  uint32 `cbor:"2,keyasint"`
	Name   uint32 `cbor:"3,keyasint"`
	OptLen uint32 `cbor:"4,keyasint"`
	OptVal []byte `cbor:"5,keyasint,omitempty"`
}

// NotifyCmd forwards an event kind to the engine for a bound context.
type NotifyCmd struct {
	ID    uint64 `cbor:"1,keyasint"`
	Event uint32 `cbor:"2,keyasint"`
}

// JoinIPMcastCmd joins an IP multicast group (legacy variant, always
// full-member).
type JoinIPMcastCmd struct {
	UID  uint64   `cbor:"1,keyasint"`
	Addr SockAddr `cbor:"2,keyasint"`
	ID   uint64   `cbor:"3,keyasint"`
}

// Multicast join flags. Exactly one must be set.
const (
	JoinFlagFullMember         uint16 = 1 << 0
	JoinFlagSendOnlyFullMember uint16 = 1 << 1
)

// JoinMcastCmd joins a multicast group of any address family.
type JoinMcastCmd struct {
	UID       uint64   `cbor:"1,keyasint"`
	Addr      SockAddr `cbor:"2,keyasint"`
	ID        uint64   `cbor:"3,keyasint"`
	AddrSize  uint16   `cbor:"4,keyasint"`
	JoinFlags uint16   `cbor:"5,keyasint"`
}

// JoinReply returns the new group handle.
type JoinReply struct {
	ID uint64 `cbor:"1,keyasint"`
}

// LeaveMcastCmd leaves a multicast group by group handle.
type LeaveMcastCmd struct {
	ID uint64 `cbor:"1,keyasint"`
}

// LeaveReply reports how many events the group delivered.
type LeaveReply struct {
	EventsReported uint32 `cbor:"1,keyasint"`
}

// MigrateCmd moves a context from the session identified by Token to
// the session the command was submitted on.
type MigrateCmd struct {
	ID    uint64 `cbor:"1,keyasint"`
	Token string `cbor:"2,keyasint"`
}

// MigrateReply reports the context's delivered-event count at the
// time of the move.
type MigrateReply struct {
	EventsReported uint32 `cbor:"1,keyasint"`
}
