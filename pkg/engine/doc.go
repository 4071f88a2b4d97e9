// Package engine defines the connection-engine boundary: the interface
// the lifecycle manager drives and the event stream it consumes.
//
// An Engine creates Conns. A Conn walks the usual establishment
// ladder (bind, resolve address, resolve route, connect or listen,
// accept) and reports progress by invoking the EventHandler it was
// created with. Handlers run on engine goroutines; per conn, events
// arrive one at a time and in order, and after Close returns no
// further events are delivered for that conn.
//
// For connect-request events the handler receives the newly created
// child conn, which inherits the listener's owner. The handler's
// Disposition tells the engine what became of the event; a refused
// connect request makes the engine destroy the child.
//
// The package deliberately has no dependency on the wire ABI. The
// manager copies between wire structs and the types here.
package engine
