// Package enginesim provides an in-process connection engine for tests
// and for running the daemon without fabric hardware.
//
// A Fabric implements engine.Engine. Conns created on it go through the
// full establishment lifecycle against each other: listens take connect
// requests from other conns on the same fabric, resolution synthesizes
// source addresses and routes from a configurable device list, and
// completions arrive asynchronously through each conn's own delivery
// goroutine, in submission order. Close discards undelivered events and
// returns only once no handler call is in flight, which is what the
// engine contract promises.
//
// Hooks inject failures at the top of any verb, letting tests exercise
// error paths without a special fabric state.
package enginesim
