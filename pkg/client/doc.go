// Package client provides a high-level API for talking to a UCM daemon.
//
// A Client owns one TLS connection to the daemon and multiplexes typed
// operations over it. Every operation sends a correlated command frame and
// blocks until the matching reply arrives, so a single client is safe for
// concurrent use from multiple goroutines.
//
// # Usage
//
// Dial connects, waits for the daemon's hello and returns a ready client:
//
//	c, err := client.Dial(ctx, "localhost:7471", client.Config{
//	    TLSConfig: &transport.TLSConfig{RootCAs: pool},
//	})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	id, err := c.CreateID(ctx, 1, wire.PortSpaceTCP, 0)
//	if err != nil {
//	    return err
//	}
//	err = c.ResolveIP(ctx, id, wire.SockAddr{}, dst, 2000)
//
// # Events
//
// Completed asynchronous work is collected with GetEvent. The daemon pushes
// a readiness notice whenever the event queue goes from empty to non-empty;
// Ready exposes those notices so callers can block on the channel instead of
// polling:
//
//	for range c.Ready() {
//	    ev, err := c.GetEvent(ctx, true)
//	    ...
//	}
//
// Operation failures reported by the daemon carry a *StatusError wrapping
// the wire status, so callers can branch on the cause:
//
//	if client.IsStatus(err, wire.StatusNotFound) {
//	    ...
//	}
package client
