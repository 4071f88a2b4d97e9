package transport

import "errors"

// Sentinel errors shared across the transport package. The framing
// errors concern a single frame; the rest describe where a managed
// connection is in its lifecycle.
var (
	// ErrMessageTooLarge reports a payload over the writer's cap.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrMessageEmpty reports a zero-length payload.
	ErrMessageEmpty = errors.New("message is empty")

	// ErrFrameTruncated reports a peer that vanished mid-frame. A
	// clean close between frames surfaces as io.EOF instead.
	ErrFrameTruncated = errors.New("frame truncated")

	// ErrNotConnected reports traffic on a connection that is not in
	// StateConnected.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected reports a Connect or Accept on a connection
	// already in use.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrConnectionClosed reports traffic after a close.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrCloseTimeout reports a peer that never acknowledged a
	// graceful close.
	ErrCloseTimeout = errors.New("close timeout")
)
