package log

import (
	"time"

	"github.com/ucm-project/ucm-go/pkg/wire"
)

// Event is one protocol log record. Events are captured at every layer
// of the stack and serialized as CBOR maps with integer keys.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID uniquely identifies the session (UUID token).
	SessionID string `cbor:"2,keyasint"`

	// Direction is the flow relative to this endpoint.
	Direction Direction `cbor:"3,keyasint"`

	// Layer is the capture point in the stack.
	Layer Layer `cbor:"4,keyasint"`

	// Category says which payload field is set.
	Category Category `cbor:"5,keyasint"`

	// LocalRole records which side of the socket wrote the event.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Exactly one payload field is set, matching the category.
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Command     *CommandEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded submission)
	Reply       *ReplyEvent       `cbor:"12,keyasint,omitempty"` // Wire layer (decoded reply)
	Ingest      *IngestEvent      `cbor:"13,keyasint,omitempty"` // Manager engine ingestion
	StateChange *StateChangeEvent `cbor:"14,keyasint,omitempty"` // Session/context/group state
	ControlMsg  *ControlMsgEvent  `cbor:"15,keyasint,omitempty"` // Ping/pong/goaway
	Error       *ErrorEventData   `cbor:"16,keyasint,omitempty"` // Errors at any layer
}

// Direction distinguishes traffic arriving at this endpoint from
// traffic it sent.
type Direction uint8

const (
	DirectionIn  Direction = 0 // incoming
	DirectionOut Direction = 1 // outgoing
)

var directionNames = map[Direction]string{
	DirectionIn:  "IN",
	DirectionOut: "OUT",
}

// String returns the direction name.
func (d Direction) String() string {
	if name, ok := directionNames[d]; ok {
		return name
	}
	return "UNKNOWN"
}

// Layer names the capture point in the stack.
type Layer uint8

const (
	LayerTransport Layer = 0 // framing, raw bytes
	LayerWire      Layer = 1 // decoded CBOR messages
	LayerManager   Layer = 2 // lifecycle manager
	LayerService   Layer = 3 // daemon service layer
)

var layerNames = map[Layer]string{
	LayerTransport: "TRANSPORT",
	LayerWire:      "WIRE",
	LayerManager:   "MANAGER",
	LayerService:   "SERVICE",
}

// String returns the layer name.
func (l Layer) String() string {
	if name, ok := layerNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// Category identifies an event's payload kind.
type Category uint8

const (
	CategoryCommand Category = 0 // submitted command
	CategoryReply   Category = 1 // command reply
	CategoryEvent   Category = 2 // ingested engine event
	CategoryState   Category = 3 // state change
	CategoryControl Category = 4 // ping/pong/goaway
	CategoryError   Category = 5 // error
	CategoryFrame   Category = 6 // raw transport frame
)

var categoryNames = map[Category]string{
	CategoryCommand: "COMMAND",
	CategoryReply:   "REPLY",
	CategoryEvent:   "EVENT",
	CategoryState:   "STATE",
	CategoryControl: "CONTROL",
	CategoryError:   "ERROR",
	CategoryFrame:   "FRAME",
}

// String returns the category name.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// Role distinguishes events written by the daemon from events written
// by a client library.
type Role uint8

const (
	RoleDaemon Role = 0
	RoleClient Role = 1
)

var roleNames = map[Role]string{
	RoleDaemon: "DAEMON",
	RoleClient: "CLIENT",
}

// String returns the role name.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// FrameEvent records one length-prefixed frame as it crossed the
// socket.
type FrameEvent struct {
	// Size in bytes, length prefix included.
	Size int `cbor:"1,keyasint"`

	// Data holds the frame bytes, capped for large frames.
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated reports that Data was capped.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// CommandEvent records a decoded command submission.
type CommandEvent struct {
	// Op is the submitted opcode.
	Op wire.Op `cbor:"1,keyasint"`

	// MessageID correlates command/reply pairs.
	MessageID uint32 `cbor:"2,keyasint"`

	// ContextID is the target context handle, when the command names one.
	ContextID *uint64 `cbor:"3,keyasint,omitempty"`

	// In is the declared command capacity in ABI units.
	In uint16 `cbor:"4,keyasint,omitempty"`

	// Out is the declared reply capacity in ABI units.
	Out uint16 `cbor:"5,keyasint,omitempty"`
}

// ReplyEvent records the daemon's answer to a command.
type ReplyEvent struct {
	// Op is the opcode the reply answers.
	Op wire.Op `cbor:"1,keyasint"`

	// MessageID correlates command/reply pairs.
	MessageID uint32 `cbor:"2,keyasint"`

	// Status is the completion code.
	Status wire.Status `cbor:"3,keyasint"`

	// Consumed is the submission length accepted on success.
	Consumed uint32 `cbor:"4,keyasint,omitempty"`

	// ProcessingTime is the duration from command receipt to reply send.
	// Stored as nanoseconds.
	ProcessingTime *time.Duration `cbor:"5,keyasint,omitempty"`
}

// IngestEvent captures one engine event arriving at the manager.
type IngestEvent struct {
	// Kind is the engine event kind.
	Kind uint32 `cbor:"1,keyasint"`

	// Status is the engine status carried by the event.
	Status int32 `cbor:"2,keyasint,omitempty"`

	// ContextID is the owning context handle.
	ContextID uint64 `cbor:"3,keyasint"`

	// GroupID is the owning group handle for multicast kinds.
	GroupID *uint64 `cbor:"4,keyasint,omitempty"`

	// Disposition records what became of the event
	// (0 delivered, 1 refused, 2 dropped).
	Disposition uint8 `cbor:"5,keyasint,omitempty"`
}

// StateChangeEvent records a session, context, or group moving between
// lifecycle states.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// EntityID is the handle or token of the entity, when it has one.
	EntityID string `cbor:"2,keyasint,omitempty"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"3,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"4,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"5,keyasint,omitempty"`
}

// StateEntity names the kind of object a state change applies to.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = 0
	StateEntitySession    StateEntity = 1
	StateEntityContext    StateEntity = 2
	StateEntityGroup      StateEntity = 3
)

var stateEntityNames = map[StateEntity]string{
	StateEntityConnection: "CONNECTION",
	StateEntitySession:    "SESSION",
	StateEntityContext:    "CONTEXT",
	StateEntityGroup:      "GROUP",
}

// String returns the state entity name.
func (s StateEntity) String() string {
	if name, ok := stateEntityNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// ControlMsgEvent records a ping, pong, or goaway on the transport.
type ControlMsgEvent struct {
	// Type is the control op.
	Type ControlMsgType `cbor:"1,keyasint"`

	// Sequence is the keepalive sequence number for ping/pong.
	Sequence *uint32 `cbor:"2,keyasint,omitempty"`
}

// ControlMsgType is the control op a ControlMsgEvent records.
type ControlMsgType uint8

const (
	ControlMsgPing   ControlMsgType = 0
	ControlMsgPong   ControlMsgType = 1
	ControlMsgGoAway ControlMsgType = 2
)

var controlMsgNames = map[ControlMsgType]string{
	ControlMsgPing:   "PING",
	ControlMsgPong:   "PONG",
	ControlMsgGoAway: "GOAWAY",
}

// String returns the control message type name.
func (c ControlMsgType) String() string {
	if name, ok := controlMsgNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// ErrorEventData records a failure observed at any layer.
type ErrorEventData struct {
	// Layer that produced the error.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the rendered error text.
	Message string `cbor:"2,keyasint"`

	// Code is the numeric engine or wire status, when one applies.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context names the operation that failed.
	Context string `cbor:"4,keyasint,omitempty"`
}
