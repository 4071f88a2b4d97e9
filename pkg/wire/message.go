package wire

import (
	"errors"
	"fmt"
)

// MessageKind is the leading discriminator of every transport envelope.
type MessageKind uint8

const (
	KindUnknown MessageKind = 0
	KindCommand MessageKind = 1
	KindReply   MessageKind = 2
	KindReady   MessageKind = 3
	KindHello   MessageKind = 4
	KindControl MessageKind = 5
)

// String returns the message kind name.
func (k MessageKind) String() string {
	switch k {
	case KindCommand:
		return "COMMAND"
	case KindReply:
		return "REPLY"
	case KindReady:
		return "READY"
	case KindHello:
		return "HELLO"
	case KindControl:
		return "CONTROL"
	default:
		return "UNKNOWN"
	}
}

// Command carries one submission buffer (binary header plus CBOR
// payload) from client to daemon. MessageID correlates the Reply and
// must be non-zero.
type Command struct {
	Kind      MessageKind `cbor:"1,keyasint"`
	MessageID uint32      `cbor:"2,keyasint"`
	Data      []byte      `cbor:"3,keyasint"`
}

// Validate checks command invariants.
func (c *Command) Validate() error {
	if c.MessageID == 0 {
		return errors.New("command messageId must be non-zero")
	}
	if len(c.Data) < HeaderSize {
		return fmt.Errorf("command data too short: %d bytes", len(c.Data))
	}
	return nil
}

// Reply answers one Command. Consumed is the submission length
// accepted on success; Payload holds the CBOR reply struct for
// reply-bearing operations.
type Reply struct {
	Kind      MessageKind `cbor:"1,keyasint"`
	MessageID uint32      `cbor:"2,keyasint"`
	Status    Status      `cbor:"3,keyasint"`
	Consumed  uint32      `cbor:"4,keyasint,omitempty"`
	Payload   []byte      `cbor:"5,keyasint,omitempty"`
}

// Ready notifies the client that its session's event queue became
// non-empty.
type Ready struct {
	Kind MessageKind `cbor:"1,keyasint"`
}

// Hello is the daemon's first message on a new connection.
type Hello struct {
	Kind          MessageKind `cbor:"1,keyasint"`
	SessionToken  string      `cbor:"2,keyasint"`
	ABIVersion    uint16      `cbor:"3,keyasint"`
	ServerVersion string      `cbor:"4,keyasint,omitempty"`
}

// ControlOp identifies keepalive and shutdown control messages.
type ControlOp uint8

const (
	ControlPing   ControlOp = 1
	ControlPong   ControlOp = 2
	ControlGoAway ControlOp = 3
)

// String returns the control op name.
func (o ControlOp) String() string {
	switch o {
	case ControlPing:
		return "PING"
	case ControlPong:
		return "PONG"
	case ControlGoAway:
		return "GOAWAY"
	default:
		return "UNKNOWN"
	}
}

// Control is a transport-level keepalive or shutdown message.
type Control struct {
	Kind     MessageKind `cbor:"1,keyasint"`
	Op       ControlOp   `cbor:"2,keyasint"`
	Sequence uint32      `cbor:"3,keyasint,omitempty"`
}

// EncodeCommand encodes a command envelope, setting its kind.
func EncodeCommand(c *Command) ([]byte, error) {
	c.Kind = KindCommand
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}
	return Marshal(c)
}

// DecodeCommand decodes a command envelope.
func DecodeCommand(data []byte) (*Command, error) {
	var c Command
	if err := Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode command: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}
	return &c, nil
}

// EncodeReply encodes a reply envelope, setting its kind.
func EncodeReply(r *Reply) ([]byte, error) {
	r.Kind = KindReply
	return Marshal(r)
}

// DecodeReply decodes a reply envelope.
func DecodeReply(data []byte) (*Reply, error) {
	var r Reply
	if err := Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}
	return &r, nil
}

// EncodeReady encodes a readiness notice.
func EncodeReady() ([]byte, error) {
	return Marshal(&Ready{Kind: KindReady})
}

// EncodeHello encodes a hello envelope, setting its kind.
func EncodeHello(h *Hello) ([]byte, error) {
	h.Kind = KindHello
	return Marshal(h)
}

// DecodeHello decodes a hello envelope.
func DecodeHello(data []byte) (*Hello, error) {
	var h Hello
	if err := Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to decode hello: %w", err)
	}
	return &h, nil
}

// EncodeControl encodes a control envelope, setting its kind.
func EncodeControl(c *Control) ([]byte, error) {
	c.Kind = KindControl
	return Marshal(c)
}

// DecodeControl decodes a control envelope.
func DecodeControl(data []byte) (*Control, error) {
	var c Control
	if err := Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode control message: %w", err)
	}
	return &c, nil
}

// PeekMessageKind examines CBOR data to determine the envelope kind
// without fully decoding it.
func PeekMessageKind(data []byte) (MessageKind, error) {
	var peek struct {
		Kind MessageKind `cbor:"1,keyasint"`
	}
	if err := Unmarshal(data, &peek); err != nil {
		return KindUnknown, fmt.Errorf("failed to peek message: %w", err)
	}
	if peek.Kind == KindUnknown || peek.Kind > KindControl {
		return KindUnknown, fmt.Errorf("unknown message kind %d", peek.Kind)
	}
	return peek.Kind, nil
}
