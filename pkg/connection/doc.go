// Package connection supervises a client's link to a daemon. The
// Manager tracks link state and redials in the background when an
// established link drops; a deliberate Disconnect stays down.
//
// Redial delays follow an exponential curve. The default starts at
// one second and doubles per attempt, capped at one minute; a
// successful connect rewinds it. Each delay carries up to 25% random
// jitter so a daemon restart does not see every surviving client
// redial in the same instant.
//
// An attempt counts as successful when the connect function returns
// nil, which for a daemon dial means the TLS handshake completed, the
// hello arrived, and the ABI revision matched.
package connection
