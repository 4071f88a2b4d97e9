package manager

import (
	"net/netip"

	"github.com/ucm-project/ucm-go/pkg/engine"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// Conversions between the wire structs and their engine counterparts.
// The wire side is what clients send; the engine side is what conns
// consume. Byte slices are copied so neither side aliases a command
// payload that the transport may reuse.

func addrFromWire(sa wire.SockAddr) (engine.Addr, error) {
	switch sa.Family {
	case wire.FamilyUnspec:
		if !sa.IsUnspecified() {
			return engine.Addr{}, ErrInvalidArgument
		}
		return engine.Addr{}, nil
	case wire.FamilyIPv4, wire.FamilyIPv6:
		ip, ok := netip.AddrFromSlice(sa.Addr)
		if !ok {
			return engine.Addr{}, ErrInvalidArgument
		}
		return engine.IPAddr(netip.AddrPortFrom(ip, sa.Port)), nil
	case wire.FamilyIB:
		if len(sa.Addr) != 16 {
			return engine.Addr{}, ErrInvalidArgument
		}
		var gid [16]byte
		copy(gid[:], sa.Addr)
		return engine.IBAddr(gid, sa.Port), nil
	default:
		return engine.Addr{}, ErrInvalidArgument
	}
}

func addrToWire(a engine.Addr) wire.SockAddr {
	switch a.Family {
	case engine.FamilyIPv4, engine.FamilyIPv6:
		return wire.AddrFromNetip(a.IP)
	case engine.FamilyIB:
		gid := a.GID
		return wire.SockAddr{Family: wire.FamilyIB, Addr: gid[:], Port: a.Pkey}
	default:
		return wire.SockAddr{}
	}
}

// gidForm renders an address in IB GID form for QUERY GID. IB
// addresses pass through; IP addresses map onto their 16-byte GID
// representation with the resolved partition key.
func gidForm(a engine.Addr, pkey uint16) wire.SockAddr {
	if a.Family == engine.FamilyIB {
		return addrToWire(a)
	}
	var gid [16]byte
	if a.IP.Addr().IsValid() {
		gid = a.IP.Addr().As16()
	}
	return wire.SockAddr{Family: wire.FamilyIB, Addr: gid[:], Port: pkey}
}

func connParamFromWire(p *wire.ConnParam) engine.ConnParam {
	return engine.ConnParam{
		PrivateData:        append([]byte(nil), p.PrivateData...),
		ResponderResources: p.ResponderResources,
		InitiatorDepth:     p.InitiatorDepth,
		FlowControl:        p.FlowControl,
		RetryCount:         p.RetryCount,
		RnrRetryCount:      p.RnrRetryCount,
		SRQ:                p.SRQ,
		QPNum:              p.QPNum,
	}
}

func connParamToWire(p *engine.ConnParam) *wire.ConnParam {
	return &wire.ConnParam{
		PrivateData:        append([]byte(nil), p.PrivateData...),
		ResponderResources: p.ResponderResources,
		InitiatorDepth:     p.InitiatorDepth,
		FlowControl:        p.FlowControl,
		RetryCount:         p.RetryCount,
		RnrRetryCount:      p.RnrRetryCount,
		SRQ:                p.SRQ,
		QPNum:              p.QPNum,
		Valid:              true,
	}
}

func udParamToWire(p *engine.UDParam) *wire.UDParam {
	return &wire.UDParam{
		PrivateData: append([]byte(nil), p.PrivateData...),
		QPNum:       p.QPNum,
		QKey:        p.QKey,
	}
}

func eceFromWire(e *wire.ECE) *engine.ECE {
	if e == nil {
		return nil
	}
	return &engine.ECE{VendorID: e.VendorID, AttrMod: e.AttrMod}
}

func qpAttrToWire(a engine.QPAttr) wire.QPAttr {
	return wire.QPAttr{
		QPState:         a.QPState,
		CurQPState:      a.CurQPState,
		PathMTU:         a.PathMTU,
		QKey:            a.QKey,
		RQPSN:           a.RQPSN,
		SQPSN:           a.SQPSN,
		DestQPNum:       a.DestQPNum,
		QPAccessFlags:   a.QPAccessFlags,
		PkeyIndex:       a.PkeyIndex,
		AltPkeyIndex:    a.AltPkeyIndex,
		MinRnrTimer:     a.MinRnrTimer,
		PortNum:         a.PortNum,
		Timeout:         a.Timeout,
		RetryCnt:        a.RetryCnt,
		RnrRetry:        a.RnrRetry,
		MaxRdAtomic:     a.MaxRdAtomic,
		MaxDestRdAtomic: a.MaxDestRdAtomic,
	}
}

func spaceFromWire(ps wire.PortSpace) engine.PortSpace {
	return engine.PortSpace(ps)
}
