package wire

//go:generate go run ../../cmd/ucm-opgen -spec opcodes.yaml -out op_info_gen.go

// ABIVersion is the command-set revision. Servers announce it in the
// Hello message and clients refuse to talk to a server with a
// different one.
const ABIVersion = 4

// Op identifies a command in the dispatch table.
//
// Opcodes are dense and table-indexed; the order is ABI and never
// changes. OpGetOption is a vacant slot kept for numbering stability.
type Op uint32

const (
	OpCreateID     Op = 0
	OpDestroyID    Op = 1
	OpBindIP       Op = 2
	OpResolveIP    Op = 3
	OpResolveRoute Op = 4
	OpQueryRoute   Op = 5
	OpConnect      Op = 6
	OpListen       Op = 7
	OpAccept       Op = 8
	OpReject       Op = 9
	OpDisconnect   Op = 10
	OpInitQPAttr   Op = 11
	OpGetEvent     Op = 12
	OpGetOption    Op = 13
	OpSetOption    Op = 14
	OpNotify       Op = 15
	OpJoinIPMcast  Op = 16
	OpLeaveMcast   Op = 17
	OpMigrateID    Op = 18
	OpQuery        Op = 19
	OpBind         Op = 20
	OpResolveAddr  Op = 21
	OpJoinMcast    Op = 22

	// NumOps is the size of the dispatch table.
	NumOps = 23
)

// Valid returns true if the opcode is within the dispatch table.
func (o Op) Valid() bool {
	return o < NumOps
}

// String returns the opcode name from the generated table.
func (o Op) String() string {
	if !o.Valid() {
		return "UNKNOWN"
	}
	return opInfo[o].Name
}

// OpInfo describes one dispatch-table entry: the wire name and the
// declared minimum command and reply sizes in ABI units.
type OpInfo struct {
	Name   string
	MinIn  uint16
	MinOut uint16
}

// InfoFor returns the table entry for an opcode.
func InfoFor(o Op) (OpInfo, bool) {
	if !o.Valid() {
		return OpInfo{}, false
	}
	return opInfo[o], true
}

// QueryOption selects the variant of an OpQuery command.
type QueryOption uint32

const (
	QueryAddr QueryOption = 0
	QueryPath QueryOption = 1
	QueryGID  QueryOption = 2
)

// String returns the query option name.
func (q QueryOption) String() string {
	switch q {
	case QueryAddr:
		return "ADDR"
	case QueryPath:
		return "PATH"
	case QueryGID:
		return "GID"
	default:
		return "UNKNOWN"
	}
}
