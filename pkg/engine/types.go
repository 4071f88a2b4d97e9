package engine

import (
	"fmt"
	"net/netip"
)

// Family identifies the address family of an Addr.
type Family uint8

const (
	FamilyUnspec Family = 0
	FamilyIPv4   Family = 4
	FamilyIPv6   Family = 6
	FamilyIB     Family = 27
)

// String returns the family name.
func (f Family) String() string {
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

// Addr is a fabric address. IP families use IP; the IB family uses
// GID and Pkey. The zero Addr is the unspecified address. Addr is
// comparable and usable as a map key.
type Addr struct {
	Family Family
	IP     netip.AddrPort
	GID    [16]byte
	Pkey   uint16
}

// IsUnspecified reports whether the address carries no endpoint.
func (a Addr) IsUnspecified() bool {
	return a.Family == FamilyUnspec
}

// String renders the address for logs.
func (a Addr) String() string {
	switch a.Family {
	case FamilyIPv4, FamilyIPv6:
		return a.IP.String()
	case FamilyIB:
		return fmt.Sprintf("ib(gid=%x,pkey=%d)", a.GID, a.Pkey)
	default:
		return "unspecified"
	}
}

// IPAddr builds an IP-family Addr.
func IPAddr(ap netip.AddrPort) Addr {
	fam := FamilyIPv6
	if ap.Addr().Is4() {
		fam = FamilyIPv4
	}
	return Addr{Family: fam, IP: ap}
}

// IBAddr builds an IB-family Addr.
func IBAddr(gid [16]byte, pkey uint16) Addr {
	return Addr{Family: FamilyIB, GID: gid, Pkey: pkey}
}

// PortSpace selects the service namespace bind collisions are judged
// in.
type PortSpace uint16

const (
	PortSpaceIPoIB PortSpace = 0x0002
	PortSpaceTCP   PortSpace = 0x0106
	PortSpaceUDP   PortSpace = 0x0111
	PortSpaceIB    PortSpace = 0x013F
)

// String returns the port space name.
func (p PortSpace) String() string {
	switch p {
	case PortSpaceIPoIB:
		return "IPOIB"
	case PortSpaceTCP:
		return "TCP"
	case PortSpaceUDP:
		return "UDP"
	case PortSpaceIB:
		return "IB"
	default:
		return "UNKNOWN"
	}
}

// QPType represents queue pair types.
type QPType uint8

const (
	QPTypeRC QPType = iota // reliable connected
	QPTypeUD               // unreliable datagram
)

// String returns the QP type name.
func (q QPType) String() string {
	switch q {
	case QPTypeRC:
		return "RC"
	case QPTypeUD:
		return "UD"
	default:
		return "UNKNOWN"
	}
}

// JoinState is the multicast membership mode requested on join.
type JoinState uint8

const (
	JoinFullMember JoinState = iota
	JoinSendOnlyFullMember
)

// String returns the join state name.
func (j JoinState) String() string {
	switch j {
	case JoinFullMember:
		return "FULL_MEMBER"
	case JoinSendOnlyFullMember:
		return "SEND_ONLY_FULL_MEMBER"
	default:
		return "UNKNOWN"
	}
}

// Device describes the fabric device a conn is bound to.
type Device struct {
	Name  string
	GUID  uint64
	Index uint32
}

// ConnParam carries connection-oriented establishment parameters.
type ConnParam struct {
	PrivateData        []byte
	ResponderResources uint8
	InitiatorDepth     uint8
	FlowControl        uint8
	RetryCount         uint8
	RnrRetryCount      uint8
	SRQ                uint8
	QPNum              uint32
}

// UDParam carries datagram establishment parameters.
type UDParam struct {
	PrivateData []byte
	QPNum       uint32
	QKey        uint32
}

// ECE carries enhanced connection establishment data.
type ECE struct {
	VendorID uint32
	AttrMod  uint32
}

// PathRecord is an opaque fabric routing record.
type PathRecord []byte

// RouteInfo is a snapshot of a conn's resolved route.
type RouteInfo struct {
	Src      Addr
	Dst      Addr
	PortNum  uint8
	NumPaths uint8
	Paths    []PathRecord
}

// QPAttr contains queue pair attributes for a commanded state.
type QPAttr struct {
	QPState         uint32
	CurQPState      uint32
	PathMTU         uint32
	QKey            uint32
	RQPSN           uint32
	SQPSN           uint32
	DestQPNum       uint32
	QPAccessFlags   uint32
	PkeyIndex       uint16
	AltPkeyIndex    uint16
	MinRnrTimer     uint8
	PortNum         uint8
	Timeout         uint8
	RetryCnt        uint8
	RnrRetry        uint8
	MaxRdAtomic     uint8
	MaxDestRdAtomic uint8
}
