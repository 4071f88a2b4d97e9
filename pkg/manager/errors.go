package manager

import (
	"context"
	"errors"

	"github.com/ucm-project/ucm-go/pkg/engine"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// ErrNotFound indicates an unknown handle or session token.
var ErrNotFound = errors.New("manager: not found")

// ErrNotOwner indicates the handle belongs to another session, or a
// device-gated lookup found no bound device.
var ErrNotOwner = errors.New("manager: not owner")

// ErrBusy indicates the context is mid-teardown after a removal event.
var ErrBusy = errors.New("manager: context closing")

// ErrGone indicates a group leave raced the parent context's teardown.
var ErrGone = errors.New("manager: parent context gone")

// ErrInvalidArgument indicates a malformed command.
var ErrInvalidArgument = errors.New("manager: invalid argument")

// ErrIDSpaceExhausted indicates the handle arena is at capacity.
var ErrIDSpaceExhausted = errors.New("manager: id space exhausted")

// ErrNotSupported indicates an unimplemented opcode or option.
var ErrNotSupported = errors.New("manager: not supported")

// ErrIOFault indicates reply delivery to the client failed.
var ErrIOFault = errors.New("manager: reply delivery failed")

// ErrInsufficientSpace indicates the declared reply capacity is below
// the operation's mandatory minimum.
var ErrInsufficientSpace = errors.New("manager: insufficient reply space")

// ErrWouldBlock indicates a non-blocking read found no events.
var ErrWouldBlock = errors.New("manager: no events pending")

// ErrSessionClosed indicates the session closed under a waiter or a
// submission raced session close.
var ErrSessionClosed = errors.New("manager: session closed")

// StatusFor maps an error to its wire status code. Engine sentinels
// keep their own codes; unrecognized errors collapse to Internal.
func StatusFor(err error) wire.Status {
	switch {
	case err == nil:
		return wire.StatusSuccess
	case errors.Is(err, ErrNotFound):
		return wire.StatusNotFound
	case errors.Is(err, ErrNotOwner):
		return wire.StatusNotOwner
	case errors.Is(err, ErrBusy):
		return wire.StatusBusy
	case errors.Is(err, ErrGone):
		return wire.StatusGone
	case errors.Is(err, ErrInvalidArgument):
		return wire.StatusInvalidArgument
	case errors.Is(err, ErrIDSpaceExhausted):
		return wire.StatusResourceExhausted
	case errors.Is(err, ErrNotSupported):
		return wire.StatusNotSupported
	case errors.Is(err, ErrIOFault):
		return wire.StatusIOFault
	case errors.Is(err, ErrInsufficientSpace):
		return wire.StatusInsufficientSpace
	case errors.Is(err, ErrWouldBlock):
		return wire.StatusWouldBlock
	case errors.Is(err, ErrSessionClosed):
		return wire.StatusSessionClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return wire.StatusInterrupted
	case errors.Is(err, engine.ErrAddrInUse):
		return wire.StatusAddrInUse
	case errors.Is(err, engine.ErrAddrNotAvailable):
		return wire.StatusAddrNotAvailable
	case errors.Is(err, engine.ErrInvalidState), errors.Is(err, engine.ErrClosed):
		return wire.StatusInvalidState
	case errors.Is(err, engine.ErrNoDevice):
		return wire.StatusNoDevice
	case errors.Is(err, engine.ErrNotConnected):
		return wire.StatusNotConnected
	case errors.Is(err, engine.ErrRefused):
		return wire.StatusRefused
	case errors.Is(err, engine.ErrTimedOut):
		return wire.StatusTimedOut
	case errors.Is(err, engine.ErrNoRoute):
		return wire.StatusNoRoute
	default:
		return wire.StatusInternal
	}
}
