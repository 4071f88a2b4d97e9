package wire

import (
	"encoding/binary"
	"fmt"
)

// CommandHeader is the fixed 8-byte prefix of every submission.
// In and Out declare the command and reply sizes in ABI units
// (sizes.go); they version the payload rather than measure it.
type CommandHeader struct {
	Op  Op
	In  uint16
	Out uint16
}

// PutHeader writes the header into the first HeaderSize bytes of b.
func PutHeader(b []byte, h CommandHeader) {
	binary.BigEndian.PutUint32(b[0:4], uint32(h.Op))
	binary.BigEndian.PutUint16(b[4:6], h.In)
	binary.BigEndian.PutUint16(b[6:8], h.Out)
}

// ParseHeader reads a header from the start of b.
func ParseHeader(b []byte) (CommandHeader, error) {
	if len(b) < HeaderSize {
		return CommandHeader{}, fmt.Errorf("submission too short: %d bytes, need %d", len(b), HeaderSize)
	}
	return CommandHeader{
		Op:  Op(binary.BigEndian.Uint32(b[0:4])),
		In:  binary.BigEndian.Uint16(b[4:6]),
		Out: binary.BigEndian.Uint16(b[6:8]),
	}, nil
}

// BuildSubmission assembles a complete submission buffer: header plus
// the CBOR-encoded command payload.
func BuildSubmission(op Op, in, out uint16, cmd any) ([]byte, error) {
	payload, err := Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s command: %w", op, err)
	}
	buf := make([]byte, HeaderSize+len(payload))
	PutHeader(buf, CommandHeader{Op: op, In: in, Out: out})
	copy(buf[HeaderSize:], payload)
	return buf, nil
}
