// Package wire defines the UCM command ABI and transport message format.
//
// A command submission is an 8-byte big-endian binary header
// {opcode u32, in u16, out u16} followed by a CBOR-encoded command
// struct (RFC 8949, integer keys). The in/out fields declare the
// command and reply sizes in fixed ABI units (see sizes.go), not the
// physical CBOR length: clients built against an older table may
// declare smaller sizes, and replies degrade by omitting optional
// trailing sections rather than failing.
//
// # Transport messages
//
// Over a connection, submissions and replies travel inside framed CBOR
// envelopes distinguished by a leading type field:
//   - Command: client to daemon, carries a submission buffer
//   - Reply: daemon to client, correlated by message ID
//   - Ready: daemon to client, the session's event queue became non-empty
//   - Hello: daemon to client on attach (session token, ABI version)
//   - Control: ping/pong/goaway
//
// # CBOR Integer Keys
//
// All maps use integer keys for compactness. Encoding is canonical so
// identical values always produce identical bytes.
package wire
