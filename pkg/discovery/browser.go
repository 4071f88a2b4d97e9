package discovery

import (
	"context"
	"time"

	"github.com/enbility/zeroconf/v3/api"
)

// Browser finds daemons on the local network.
type Browser interface {
	// Browse streams daemons as they appear. Each daemon arrives once,
	// with addresses from every interface folded in; the stream closes
	// when ctx ends.
	Browse(ctx context.Context) (<-chan *DaemonService, error)

	// Find waits for the daemon with the given instance name.
	Find(ctx context.Context, instance string) (*DaemonService, error)

	// Stop ends every active browse.
	Stop()
}

// BrowserConfig adjusts how a browser drives the resolver. The zero
// value browses on all multicast interfaces with the stock timeout.
type BrowserConfig struct {
	// BrowseTimeout bounds Find when the caller's context carries no
	// deadline of its own.
	BrowseTimeout time.Duration

	// Interface restricts browsing to one named interface.
	Interface string

	// InterfaceProvider lists candidate interfaces when Interface is
	// unset; tests inject mock lists here. Nil leaves the choice to
	// zeroconf.
	InterfaceProvider api.InterfaceProvider
}

// DefaultBrowserConfig returns the stock browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{BrowseTimeout: BrowseTimeout}
}
