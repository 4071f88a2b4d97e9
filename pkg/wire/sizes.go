package wire

// Declared ABI sizes, in units of the fixed C-style layout each struct
// maps to. The in/out header fields count these units, never physical
// CBOR bytes: a client that predates a trailing field declares the
// smaller size, and the dispatcher gates optional sections on the
// declared capacity. Changing any value here is an ABI break.
const (
	// HeaderSize is the binary submission header: op u32, in u16, out u16.
	HeaderSize = 8

	// Address layouts.
	SockAddrIPv4Size    = 16
	SockAddrIPv6Size    = 28
	SockAddrIBSize      = 48
	SockAddrStorageSize = 128

	// Establishment parameter blocks.
	ConnParamSize = 268
	UDParamSize   = 264
	ECESize       = 8

	// Path records: 4 flag bytes plus a 64-byte opaque record, padded.
	PathRecordSize = 72

	// Commands.
	CreateCmdSize       = 12
	DestroyCmdSize      = 8
	BindIPCmdSize       = 36
	BindCmdSize         = 140
	ResolveIPCmdSize    = 68
	ResolveAddrCmdSize  = 276
	ResolveRouteCmdSize = 12
	QueryRouteCmdSize   = 8
	QueryCmdSize        = 12
	ConnectCmdSize      = 280 // without ECE
	ConnectCmdFullSize  = ConnectCmdSize + ECESize
	ListenCmdSize       = 12
	AcceptCmdSize       = 288 // without ECE
	AcceptCmdFullSize   = AcceptCmdSize + ECESize
	RejectCmdSize       = 268
	DisconnectCmdSize   = 8
	InitQPAttrCmdSize   = 12
	GetEventCmdSize     = 4
	SetOptionCmdSize    = 20 // option value travels separately, bounded by MaxOptLen
	NotifyCmdSize       = 12
	JoinIPMcastCmdSize  = 44
	JoinMcastCmdSize    = 148
	LeaveMcastCmdSize   = 8
	MigrateCmdSize      = 24

	// Replies. Min sizes cover the mandatory prefix; the gap to the
	// full size is the optional trailing section a short-capacity
	// client does without.
	CreateReplySize  = 8
	DestroyReplySize = 4
	JoinReplySize    = 8
	LeaveReplySize   = 4
	MigrateReplySize = 4
	QPAttrReplySize  = 44

	EventReplyReservedSize = 4
	EventReplyFullSize     = 304
	EventReplyMinSize      = EventReplyFullSize - EventReplyReservedSize - ECESize

	RouteReplyFullSize = 220 // trailing: device index
	RouteReplyMinSize  = RouteReplyFullSize - 4

	AddrReplyFullSize = 276 // trailing: device index
	AddrReplyMinSize  = AddrReplyFullSize - 4

	PathReplyHeaderSize = 8 // records as capacity admits

	// MaxOptLen bounds SET_OPTION values.
	MaxOptLen = 4096
)
