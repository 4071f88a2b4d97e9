package discovery

import (
	"context"
	"time"

	"github.com/enbility/zeroconf/v3/api"
)

// Advertiser announces a daemon on the local network.
type Advertiser interface {
	// Advertise starts advertising the daemon. It replaces any previous
	// advertisement.
	Advertise(ctx context.Context, info *DaemonInfo) error

	// Update re-registers the advertisement with fresh TXT records.
	Update(info *DaemonInfo) error

	// Stop withdraws the advertisement.
	Stop() error
}

// AdvertiserConfig adjusts how the daemon announces itself. The zero
// value advertises on all multicast interfaces and lets the resolver
// pick the record TTL.
type AdvertiserConfig struct {
	// Interface restricts advertising to one named interface.
	Interface string

	// TTL overrides the DNS record TTL when positive.
	TTL time.Duration

	// InterfaceProvider lists candidate interfaces when Interface is
	// unset; tests inject mock lists here. Nil leaves the choice to
	// zeroconf.
	InterfaceProvider api.InterfaceProvider
}

// DefaultAdvertiserConfig returns the stock advertiser configuration,
// with a two minute record TTL.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{TTL: 120 * time.Second}
}
