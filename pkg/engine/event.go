package engine

// EventKind identifies an engine event. The numbering is shared with
// the wire ABI's event field.
type EventKind uint8

const (
	EventAddrResolved EventKind = iota
	EventAddrError
	EventRouteResolved
	EventRouteError
	EventConnectRequest
	EventConnectResponse
	EventConnectError
	EventUnreachable
	EventRejected
	EventEstablished
	EventDisconnected
	EventDeviceRemoval
	EventMulticastJoin
	EventMulticastError
	EventAddrChange
	EventTimewaitExit

	NumEventKinds = 16
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventAddrResolved:
		return "ADDR_RESOLVED"
	case EventAddrError:
		return "ADDR_ERROR"
	case EventRouteResolved:
		return "ROUTE_RESOLVED"
	case EventRouteError:
		return "ROUTE_ERROR"
	case EventConnectRequest:
		return "CONNECT_REQUEST"
	case EventConnectResponse:
		return "CONNECT_RESPONSE"
	case EventConnectError:
		return "CONNECT_ERROR"
	case EventUnreachable:
		return "UNREACHABLE"
	case EventRejected:
		return "REJECTED"
	case EventEstablished:
		return "ESTABLISHED"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventDeviceRemoval:
		return "DEVICE_REMOVAL"
	case EventMulticastJoin:
		return "MULTICAST_JOIN"
	case EventMulticastError:
		return "MULTICAST_ERROR"
	case EventAddrChange:
		return "ADDR_CHANGE"
	case EventTimewaitExit:
		return "TIMEWAIT_EXIT"
	default:
		return "UNKNOWN"
	}
}

// Event is one engine occurrence delivered to a handler. Conn and UD
// are alternates; the receiver picks by the conn's QP type. Tag
// carries back the value passed to JoinMulticast for multicast kinds.
type Event struct {
	Kind   EventKind
	Status int32
	Conn   ConnParam
	UD     UDParam
	ECE    ECE
	Tag    any
}

// Disposition is the handler's verdict on an event.
type Disposition uint8

const (
	// Delivered means the event was queued for a consumer.
	Delivered Disposition = iota
	// Refused means the receiver could not take the event; for a
	// connect request the engine destroys the child conn.
	Refused
	// Dropped means the event was discarded on purpose.
	Dropped
)

// String returns the disposition name.
func (d Disposition) String() string {
	switch d {
	case Delivered:
		return "DELIVERED"
	case Refused:
		return "REFUSED"
	case Dropped:
		return "DROPPED"
	default:
		return "UNKNOWN"
	}
}

// EventHandler consumes engine events. For connect requests c is the
// new child conn; otherwise it is the conn the event belongs to.
// Handlers must not call back into the conn's Close.
type EventHandler func(c Conn, ev *Event) Disposition
