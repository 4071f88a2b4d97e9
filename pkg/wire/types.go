package wire

import (
	"fmt"
	"net/netip"
)

// AddrFamily identifies the address family of a SockAddr.
type AddrFamily uint8

const (
	FamilyUnspec AddrFamily = 0
	FamilyIPv4   AddrFamily = 4
	FamilyIPv6   AddrFamily = 6
	FamilyIB     AddrFamily = 27
)

// String returns the family name.
func (f AddrFamily) String() string {
	switch f {
	case FamilyUnspec:
		return "UNSPEC"
	case FamilyIPv4:
		return "IPV4"
	case FamilyIPv6:
		return "IPV6"
	case FamilyIB:
		return "IB"
	default:
		return "UNKNOWN"
	}
}

// DeclaredSize returns the family's ABI size in units, or 0 for
// families that cannot appear on the wire.
func (f AddrFamily) DeclaredSize() uint16 {
	switch f {
	case FamilyIPv4:
		return SockAddrIPv4Size
	case FamilyIPv6:
		return SockAddrIPv6Size
	case FamilyIB:
		return SockAddrIBSize
	default:
		return 0
	}
}

// SockAddr is the any-family wire address. Addr holds 4 bytes for
// IPv4, 16 for IPv6, and a 16-byte GID for IB (Port then carries the
// partition key).
type SockAddr struct {
	Family AddrFamily `cbor:"1,keyasint"`
	Addr   []byte     `cbor:"2,keyasint,omitempty"`
	Port   uint16     `cbor:"3,keyasint,omitempty"`
}

// addrLen returns the required Addr byte length per family.
func (f AddrFamily) addrLen() int {
	switch f {
	case FamilyIPv4:
		return 4
	case FamilyIPv6, FamilyIB:
		return 16
	default:
		return 0
	}
}

// Validate checks the address against its family. Unspecified
// (FamilyUnspec with no bytes) is rejected; use ValidateOptional for
// slots where an absent source address is legal.
func (a *SockAddr) Validate() error {
	switch a.Family {
	case FamilyIPv4, FamilyIPv6, FamilyIB:
		if len(a.Addr) != a.Family.addrLen() {
			return fmt.Errorf("%s address must be %d bytes, got %d",
				a.Family, a.Family.addrLen(), len(a.Addr))
		}
		return nil
	default:
		return fmt.Errorf("unsupported address family %d", a.Family)
	}
}

// ValidateOptional accepts an unspecified address and otherwise
// applies Validate.
func (a *SockAddr) ValidateOptional() error {
	if a.Family == FamilyUnspec {
		return nil
	}
	return a.Validate()
}

// ValidateIP restricts the address to the IP families. Legacy
// commands use this in place of Validate.
func (a *SockAddr) ValidateIP() error {
	if a.Family == FamilyIB {
		return fmt.Errorf("IB addresses require the any-family command variant")
	}
	return a.Validate()
}

// IsUnspecified reports whether no address was supplied.
func (a *SockAddr) IsUnspecified() bool {
	return a.Family == FamilyUnspec && len(a.Addr) == 0
}

// String renders the address for logs and the shell.
func (a *SockAddr) String() string {
	switch a.Family {
	case FamilyIPv4, FamilyIPv6:
		ip, ok := netip.AddrFromSlice(a.Addr)
		if !ok {
			return fmt.Sprintf("%s(invalid)", a.Family)
		}
		return netip.AddrPortFrom(ip, a.Port).String()
	case FamilyIB:
		return fmt.Sprintf("ib(gid=%x,pkey=%d)", a.Addr, a.Port)
	default:
		return "unspecified"
	}
}

// AddrFromNetip builds an IP-family SockAddr.
func AddrFromNetip(ap netip.AddrPort) SockAddr {
	addr := ap.Addr()
	fam := FamilyIPv6
	if addr.Is4() {
		fam = FamilyIPv4
	}
	b := addr.AsSlice()
	return SockAddr{Family: fam, Addr: b, Port: ap.Port()}
}

// MaxPrivateData bounds the opaque payload carried with connection
// establishment.
const MaxPrivateData = 256

// ConnParam carries connection-oriented establishment parameters.
// Valid distinguishes a populated param block from an absent one on
// ACCEPT, where an empty accept is legal.
type ConnParam struct {
	PrivateData        []byte `cbor:"1,keyasint,omitempty"`
	ResponderResources uint8  `cbor:"2,keyasint,omitempty"`
	InitiatorDepth     uint8  `cbor:"3,keyasint,omitempty"`
	FlowControl        uint8  `cbor:"4,keyasint,omitempty"`
	RetryCount         uint8  `cbor:"5,keyasint,omitempty"`
	RnrRetryCount      uint8  `cbor:"6,keyasint,omitempty"`
	SRQ                uint8  `cbor:"7,keyasint,omitempty"`
	QPNum              uint32 `cbor:"8,keyasint,omitempty"`
	Valid              bool   `cbor:"9,keyasint,omitempty"`
}

// UDParam carries datagram establishment parameters.
type UDParam struct {
	PrivateData []byte `cbor:"1,keyasint,omitempty"`
	QPNum       uint32 `cbor:"2,keyasint,omitempty"`
	QKey        uint32 `cbor:"3,keyasint,omitempty"`
}

// ECE carries enhanced connection establishment data. It is the
// newest section of the connect/accept commands and the event reply;
// older clients neither send nor receive it.
type ECE struct {
	VendorID uint32 `cbor:"1,keyasint"`
	AttrMod  uint32 `cbor:"2,keyasint"`
}

// Path record flag bits. SET_OPTION accepts only records flagged
// exactly PathGMP|PathPrimary|PathBidirectional.
const (
	PathGMP      uint32 = 1 << 0
	PathPrimary  uint32 = 1 << 1
	PathInbound  uint32 = 1 << 2
	PathOutbound uint32 = 1 << 3

	PathBidirectional = PathInbound | PathOutbound
)

// PathRecord is one opaque routing record plus its flag bits.
type PathRecord struct {
	Flags uint32 `cbor:"1,keyasint"`
	Raw   []byte `cbor:"2,keyasint,omitempty"`
}

// QPAttr is the queue-pair attribute block returned by INIT_QP_ATTR.
type QPAttr struct {
	QPState         uint32 `cbor:"1,keyasint"`
	CurQPState      uint32 `cbor:"2,keyasint,omitempty"`
	PathMTU         uint32 `cbor:"3,keyasint,omitempty"`
	QKey            uint32 `cbor:"4,keyasint,omitempty"`
	RQPSN           uint32 `cbor:"5,keyasint,omitempty"`
	SQPSN           uint32 `cbor:"6,keyasint,omitempty"`
	DestQPNum       uint32 `cbor:"7,keyasint,omitempty"`
	QPAccessFlags   uint32 `cbor:"8,keyasint,omitempty"`
	PkeyIndex       uint16 `cbor:"9,keyasint,omitempty"`
	AltPkeyIndex    uint16 `cbor:"10,keyasint,omitempty"`
	MinRnrTimer     uint8  `cbor:"11,keyasint,omitempty"`
	PortNum         uint8  `cbor:"12,keyasint,omitempty"`
	Timeout         uint8  `cbor:"13,keyasint,omitempty"`
	RetryCnt        uint8  `cbor:"14,keyasint,omitempty"`
	RnrRetry        uint8  `cbor:"15,keyasint,omitempty"`
	MaxRdAtomic     uint8  `cbor:"16,keyasint,omitempty"`
	MaxDestRdAtomic uint8  `cbor:"17,keyasint,omitempty"`
}
