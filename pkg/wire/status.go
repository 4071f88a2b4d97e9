package wire

// Status represents a command completion code.
//
// Codes below 16 belong to the manager itself; codes 16 and up carry
// connection-engine failures through to the client unchanged.
type Status uint8

const (
	// StatusSuccess indicates the command completed successfully.
	StatusSuccess Status = 0

	// StatusNotFound indicates the handle or session token doesn't exist.
	StatusNotFound Status = 1

	// StatusNotOwner indicates the handle belongs to another session.
	StatusNotOwner Status = 2

	// StatusBusy indicates the context is being torn down.
	StatusBusy Status = 3

	// StatusInvalidArgument indicates a malformed command.
	StatusInvalidArgument Status = 4

	// StatusResourceExhausted indicates the handle space is full.
	StatusResourceExhausted Status = 5

	// StatusNotSupported indicates an unimplemented opcode or option.
	StatusNotSupported Status = 6

	// StatusIOFault indicates reply delivery to the client failed.
	StatusIOFault Status = 7

	// StatusInsufficientSpace indicates the declared reply capacity is
	// below the command's minimum.
	StatusInsufficientSpace Status = 8

	// StatusGone indicates the parent context vanished mid-command.
	StatusGone Status = 9

	// StatusWouldBlock indicates a non-blocking read found no events.
	StatusWouldBlock Status = 10

	// StatusInterrupted indicates the command was cancelled while waiting.
	StatusInterrupted Status = 11

	// StatusSessionClosed indicates the session closed under a waiter.
	StatusSessionClosed Status = 12

	// StatusAddrInUse indicates the engine found the address occupied.
	StatusAddrInUse Status = 16

	// StatusAddrNotAvailable indicates the engine cannot use the address.
	StatusAddrNotAvailable Status = 17

	// StatusInvalidState indicates the engine conn is in the wrong state.
	StatusInvalidState Status = 18

	// StatusNoDevice indicates no device could serve the operation.
	StatusNoDevice Status = 19

	// StatusNotConnected indicates the engine conn has no peer.
	StatusNotConnected Status = 20

	// StatusRefused indicates the remote side refused the connection.
	StatusRefused Status = 21

	// StatusTimedOut indicates an engine operation timed out.
	StatusTimedOut Status = 22

	// StatusNoRoute indicates no route to the destination exists.
	StatusNoRoute Status = 23

	// StatusInternal indicates an unclassified failure.
	StatusInternal Status = 31
)

var statusNames = map[Status]string{
	StatusSuccess:           "SUCCESS",
	StatusNotFound:          "NOT_FOUND",
	StatusNotOwner:          "NOT_OWNER",
	StatusBusy:              "BUSY",
	StatusInvalidArgument:   "INVALID_ARGUMENT",
	StatusResourceExhausted: "RESOURCE_EXHAUSTED",
	StatusNotSupported:      "NOT_SUPPORTED",
	StatusIOFault:           "IO_FAULT",
	StatusInsufficientSpace: "INSUFFICIENT_SPACE",
	StatusGone:              "GONE",
	StatusWouldBlock:        "WOULD_BLOCK",
	StatusInterrupted:       "INTERRUPTED",
	StatusSessionClosed:     "SESSION_CLOSED",
	StatusAddrInUse:         "ADDR_IN_USE",
	StatusAddrNotAvailable:  "ADDR_NOT_AVAILABLE",
	StatusInvalidState:      "INVALID_STATE",
	StatusNoDevice:          "NO_DEVICE",
	StatusNotConnected:      "NOT_CONNECTED",
	StatusRefused:           "REFUSED",
	StatusTimedOut:          "TIMED_OUT",
	StatusNoRoute:           "NO_ROUTE",
	StatusInternal:          "INTERNAL",
}

// String returns the status name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsSuccess reports whether the command completed.
func (s Status) IsSuccess() bool { return s == StatusSuccess }

// IsError reports whether the status carries any failure.
func (s Status) IsError() bool { return s != StatusSuccess }

// IsEngine reports whether the status carries an engine failure rather
// than a manager verdict.
func (s Status) IsEngine() bool { return s >= StatusAddrInUse && s < StatusInternal }
