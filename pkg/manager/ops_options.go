package manager

import (
	"encoding/binary"

	"github.com/ucm-project/ucm-go/pkg/engine"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

func (m *Manager) setOption(req *request) error {
	var cmd wire.SetOptionCmd
	if err := req.decode(&cmd); err != nil {
		return err
	}
	if cmd.OptLen != uint32(len(cmd.OptVal)) || cmd.OptLen > wire.MaxOptLen {
		return ErrInvalidArgument
	}
	ctx, err := m.getContext(req.sess, cmd.ID)
	if err != nil {
		return err
	}
	defer ctx.refs.put()

	switch cmd.Level {
	case wire.OptLevelContext:
		return m.setContextOption(ctx, cmd.Name, cmd.OptVal)
	case wire.OptLevelIB:
		return m.setIBOption(ctx, cmd.Name, cmd.OptVal)
	default:
		return ErrInvalidArgument
	}
}

func (m *Manager) setContextOption(ctx *Context, name uint32, val []byte) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	switch name {
	case wire.OptTOS:
		if len(val) != 1 {
			return ErrInvalidArgument
		}
		return ctx.conn.SetTOS(val[0])
	case wire.OptReuseAddr:
		if len(val) != 4 {
			return ErrInvalidArgument
		}
		return ctx.conn.SetReuseAddr(binary.BigEndian.Uint32(val) != 0)
	case wire.OptAFOnly:
		if len(val) != 4 {
			return ErrInvalidArgument
		}
		return ctx.conn.SetAFOnly(binary.BigEndian.Uint32(val) != 0)
	case wire.OptACKTimeout:
		if len(val) != 1 {
			return ErrInvalidArgument
		}
		return ctx.conn.SetACKTimeout(val[0])
	default:
		return ErrInvalidArgument
	}
}

func (m *Manager) setIBOption(ctx *Context, name uint32, val []byte) error {
	switch name {
	case wire.OptIBPath:
		return m.setIBPath(ctx, val)
	default:
		return ErrInvalidArgument
	}
}

// setIBPath installs an externally resolved path. The value is a
// packed array of path records; the first one flagged as the primary
// bidirectional GMP path is applied and the rest are ignored. Success
// is announced to the client as a synthesized ROUTE_RESOLVED event.
func (m *Manager) setIBPath(ctx *Context, val []byte) error {
	rec, ok := primaryPathRecord(val)
	if !ok {
		return ErrInvalidArgument
	}
	if ctx.conn.Device() == nil {
		return ErrInvalidArgument
	}

	ctx.mu.Lock()
	err := ctx.conn.SetPath([]engine.PathRecord{rec})
	ctx.mu.Unlock()
	if err != nil {
		return err
	}

	m.handleEvent(ctx.conn, &engine.Event{Kind: engine.EventRouteResolved})
	return nil
}

// primaryPathRecord scans a packed record array for the first record
// flagged exactly GMP|primary|bidirectional. The packed layout per
// record is a big-endian u32 of flags, four reserved bytes, and the
// raw record.
func primaryPathRecord(val []byte) (engine.PathRecord, bool) {
	if len(val) == 0 || len(val)%wire.PathRecordSize != 0 {
		return nil, false
	}
	const want = wire.PathGMP | wire.PathPrimary | wire.PathBidirectional
	for off := 0; off < len(val); off += wire.PathRecordSize {
		rec := val[off : off+wire.PathRecordSize]
		if binary.BigEndian.Uint32(rec[0:4]) == want {
			raw := append([]byte(nil), rec[8:]...)
			return engine.PathRecord(raw), true
		}
	}
	return nil, false
}
