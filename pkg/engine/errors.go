package engine

import "errors"

// Engine errors. The manager maps these onto wire statuses one to one;
// anything else becomes an internal failure.
var (
	// ErrClosed is returned by operations on a closed engine or conn.
	ErrClosed = errors.New("engine: closed")

	// ErrAddrInUse is returned when binding to an occupied address.
	ErrAddrInUse = errors.New("engine: address in use")

	// ErrAddrNotAvailable is returned when the address belongs to no
	// local device.
	ErrAddrNotAvailable = errors.New("engine: address not available")

	// ErrInvalidState is returned when the conn cannot perform the
	// operation in its current establishment state.
	ErrInvalidState = errors.New("engine: invalid state for operation")

	// ErrNoDevice is returned when the conn is not yet bound to a
	// device.
	ErrNoDevice = errors.New("engine: no device bound")

	// ErrNotConnected is returned when the conn has no established
	// peer.
	ErrNotConnected = errors.New("engine: not connected")

	// ErrRefused is returned when the remote side rejects the
	// connection.
	ErrRefused = errors.New("engine: connection refused")

	// ErrTimedOut is returned when resolution or establishment exceeds
	// its deadline.
	ErrTimedOut = errors.New("engine: timed out")

	// ErrNoRoute is returned when no route to the destination exists.
	ErrNoRoute = errors.New("engine: no route to destination")
)
