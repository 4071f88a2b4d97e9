package client

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ucm-project/ucm-go/pkg/wire"
)

// SetTOS sets the type-of-service value applied to the context's traffic.
func (c *Client) SetTOS(ctx context.Context, id uint64, tos uint8) error {
	return c.SetOption(ctx, id, wire.OptLevelContext, wire.OptTOS, []byte{tos})
}

// SetReuseAddr allows the context's local address to be shared with
// other bindings.
func (c *Client) SetReuseAddr(ctx context.Context, id uint64, reuse bool) error {
	return c.SetOption(ctx, id, wire.OptLevelContext, wire.OptReuseAddr, flagOption(reuse))
}

// SetAFOnly restricts a wildcard binding to the bound address family.
func (c *Client) SetAFOnly(ctx context.Context, id uint64, afOnly bool) error {
	return c.SetOption(ctx, id, wire.OptLevelContext, wire.OptAFOnly, flagOption(afOnly))
}

// SetACKTimeout overrides the transport ACK timeout exponent for the
// context.
func (c *Client) SetACKTimeout(ctx context.Context, id uint64, timeout uint8) error {
	return c.SetOption(ctx, id, wire.OptLevelContext, wire.OptACKTimeout, []byte{timeout})
}

// flagOption encodes a boolean option as a 4-byte big-endian integer.
func flagOption(v bool) []byte {
	buf := make([]byte, 4)
	if v {
		binary.BigEndian.PutUint32(buf, 1)
	}
	return buf
}

// rawPathSize is the raw record length inside a packed path entry; the
// remaining 8 bytes carry the flags word and reserved padding.
const rawPathSize = wire.PathRecordSize - 8

// SetIBPath installs externally resolved path records on a context.
// The record flagged GMP, primary and bidirectional becomes the active
// path and the daemon announces it with a ROUTE_RESOLVED event.
func (c *Client) SetIBPath(ctx context.Context, id uint64, paths []wire.PathRecord) error {
	if len(paths) == 0 {
		return fmt.Errorf("no path records")
	}
	buf := make([]byte, 0, len(paths)*wire.PathRecordSize)
	for i, p := range paths {
		if len(p.Raw) != rawPathSize {
			return fmt.Errorf("path record %d: got %d raw bytes, want %d", i, len(p.Raw), rawPathSize)
		}
		var hdr [8]byte
		binary.BigEndian.PutUint32(hdr[0:4], p.Flags)
		buf = append(buf, hdr[:]...)
		buf = append(buf, p.Raw...)
	}
	return c.SetOption(ctx, id, wire.OptLevelIB, wire.OptIBPath, buf)
}
