package discovery

import (
	"errors"
	"time"
)

// DNS-SD identity of an advertised daemon.
const (
	// ServiceType is the DNS-SD service type daemons advertise.
	ServiceType = "_ucm._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort matches the daemon's default listen port.
	DefaultPort = 7471
)

// TXT record key constants.
const (
	// TXTKeyABI carries the wire ABI revision (decimal).
	TXTKeyABI = "abi"

	// TXTKeyVersion carries the daemon release string.
	TXTKeyVersion = "sv"
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 10 * time.Second
)

// MaxInstanceNameLen is the DNS label limit.
const MaxInstanceNameLen = 63

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
	ErrBrowserStopped      = errors.New("browser stopped")
	ErrAlreadyAnnouncing   = errors.New("already announcing")
)

// DaemonInfo contains the information a daemon advertises.
type DaemonInfo struct {
	// Instance is the mDNS instance name (e.g., "ucm-lab1").
	Instance string

	// Port is the daemon's listen port. Zero selects DefaultPort.
	Port uint16

	// ABI is the wire ABI revision.
	ABI uint16

	// Version is the daemon release string.
	Version string
}

// Validate checks if the DaemonInfo can be advertised.
func (d *DaemonInfo) Validate() error {
	if d.Instance == "" {
		return ErrMissingRequired
	}
	if len(d.Instance) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

// DaemonService represents a daemon found via mDNS.
type DaemonService struct {
	// Instance is the mDNS instance name.
	Instance string

	// Host is the hostname (e.g., "lab1.local").
	Host string

	// Port is the service port.
	Port uint16

	// Addresses contains resolved IP addresses.
	Addresses []string

	// ABI is the daemon's wire ABI revision (from TXT "abi").
	ABI uint16

	// Version is the daemon release string (from TXT "sv").
	Version string
}
