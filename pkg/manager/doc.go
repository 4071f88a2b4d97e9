// Package manager implements the connection-manager core: it mediates
// between client sessions and an asynchronous connection engine.
//
// A Session is one client attachment. It owns a list of contexts, an
// ordered queue of pending engine events, a readiness broadcast, and a
// single-worker queue for deferred teardown. Commands are submitted as
// framed buffers (wire header plus CBOR payload) through
// Session.Submit, which dispatches to per-opcode handlers.
//
// A Context wraps one engine.Conn with lifecycle bookkeeping: a
// generation-checked handle, a client-assigned uid, a reference-counted
// teardown token, a listen backlog budget, and a delivered-event
// counter. Multicast groups are secondary resources nested under a
// context.
//
// Engine callbacks run on engine goroutines and feed per-session
// queues; destruction of a context blocks until no callback or
// in-flight call still references it, and closes the engine conn
// exactly once.
package manager
