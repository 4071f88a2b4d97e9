// Package transport carries framed messages between a client and the
// daemon over TLS.
//
// The wire stacks up as:
//
//	┌──────────────────────────┐
//	│ CBOR envelope            │
//	│ 4-byte length prefix     │
//	│ TLS 1.3, ALPN "ucm/1"    │
//	│ TCP                      │
//	└──────────────────────────┘
//
// Every frame is a big-endian length followed by that many bytes of
// CBOR. The length covers the payload only; a frame over the
// configured cap is rejected before any of it is read.
//
// # TLS
//
// Endpoints speak TLS 1.3 exclusively. The handshake must negotiate
// ALPN "ucm/1"; session tickets are disabled and key exchange prefers
// X25519, falling back to P-256. The daemon normally presents a
// certificate from its configuration, and in development mode it mints
// a self-signed one at startup for clients that connect with
// verification disabled.
//
// # Liveness
//
// Both sides ping every 30 seconds and expect the pong within five.
// Three consecutive misses declare the link dead, so a silent peer is
// noticed within 95 seconds at worst. Pings and pongs are control
// frames handled below the message layer; handlers never see them.
package transport
