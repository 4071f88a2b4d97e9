package service

import "errors"

var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyStarted = errors.New("service already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// ServiceState tracks the daemon service through its lifecycle.
type ServiceState uint8

const (
	StateIdle     ServiceState = iota // created, never started
	StateStarting                     // bringing up listener and advertisement
	StateRunning                      // accepting sessions
	StateStopping                     // draining sessions
	StateStopped                      // shut down, restartable
)

var serviceStateNames = map[ServiceState]string{
	StateIdle:     "IDLE",
	StateStarting: "STARTING",
	StateRunning:  "RUNNING",
	StateStopping: "STOPPING",
	StateStopped:  "STOPPED",
}

// String returns the state name.
func (s ServiceState) String() string {
	if name, ok := serviceStateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}
