// Package log captures the daemon's protocol traffic as structured
// events.
//
// Protocol capture is distinct from operational logging: where slog
// tells an operator what the daemon is doing, this package records a
// machine-readable trace of everything that crossed a session, layer
// by layer, so a connection problem can be replayed and inspected
// after the fact.
//
// An Event is an envelope plus exactly one payload. The envelope says
// when, on which session, in which direction, and at which layer; the
// payload carries the specifics:
//
//   - FrameEvent for raw length-prefixed frames at the transport layer
//   - CommandEvent and ReplyEvent for decoded wire exchanges
//   - IngestEvent for engine events arriving at the manager
//   - StateChangeEvent for session, context, and group lifecycle moves
//   - ControlMsgEvent and ErrorEventData for keepalive traffic and
//     failures
//
// Capture destinations implement the one-method Logger interface.
// FileLogger appends CBOR-encoded events to a .ulog file, SlogAdapter
// renders them through slog for development runs, and Tee fans one
// stream out to several destinations. Reader walks a .ulog file back,
// optionally narrowed by a Filter, and the ucm-log command builds its
// view, filter, export, and stats subcommands on top of it.
package log
