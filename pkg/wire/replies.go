package wire

// EventReply is the GET_EVENT payload. UID is the client token of the
// owning context (the group's for multicast kinds); ID is the context
// handle, rewritten to the freshly adopted handle for connect-request
// events. Exactly one of Conn/UD is set, by the conn's QP type. ECE
// is omitted when the declared out capacity excludes it.
type EventReply struct {
	UID    uint64     `cbor:"1,keyasint"`
	ID     uint64     `cbor:"2,keyasint"`
	Event  uint32     `cbor:"3,keyasint"`
	Status int32      `cbor:"4,keyasint,omitempty"`
	Conn   *ConnParam `cbor:"5,keyasint,omitempty"`
	UD     *UDParam   `cbor:"6,keyasint,omitempty"`
	ECE    *ECE       `cbor:"7,keyasint,omitempty"`
}

// RouteReply is the legacy QUERY_ROUTE snapshot. The device section
// (NodeGUID, PortNum, DeviceIndex) is populated only for bound
// contexts; DeviceIndex is omitted when capacity excludes it.
type RouteReply struct {
	NodeGUID    uint64       `cbor:"1,keyasint,omitempty"`
	Paths       []PathRecord `cbor:"2,keyasint,omitempty"`
	Src         SockAddr     `cbor:"3,keyasint"`
	Dst         SockAddr     `cbor:"4,keyasint"`
	NumPaths    uint32       `cbor:"5,keyasint,omitempty"`
	PortNum     uint8        `cbor:"6,keyasint,omitempty"`
	DeviceIndex *uint32      `cbor:"7,keyasint,omitempty"`
}

// AddrReply answers QUERY ADDR and QUERY GID (the latter with
// IB-family GID-form addresses and the partition key in Port).
// DeviceIndex is omitted when capacity excludes it.
type AddrReply struct {
	NodeGUID    uint64   `cbor:"1,keyasint,omitempty"`
	PortNum     uint8    `cbor:"2,keyasint,omitempty"`
	Pkey        uint16   `cbor:"3,keyasint,omitempty"`
	SrcSize     uint16   `cbor:"4,keyasint,omitempty"`
	DstSize     uint16   `cbor:"5,keyasint,omitempty"`
	Src         SockAddr `cbor:"6,keyasint"`
	Dst         SockAddr `cbor:"7,keyasint"`
	DeviceIndex *uint32  `cbor:"8,keyasint,omitempty"`
}

// PathReply answers QUERY PATH with as many records as the declared
// capacity admits.
type PathReply struct {
	NumPaths uint32       `cbor:"1,keyasint"`
	Paths    []PathRecord `cbor:"2,keyasint,omitempty"`
}
