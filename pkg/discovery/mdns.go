package discovery

import (
	"context"
	"fmt"
	"net"
	"slices"
	"sync"

	"github.com/enbility/zeroconf/v3"
	"github.com/enbility/zeroconf/v3/api"
)

var (
	_ Advertiser = (*MDNSAdvertiser)(nil)
	_ Browser    = (*MDNSBrowser)(nil)
)

// chosenInterfaces resolves the interfaces to use for mDNS traffic: a
// configured interface name wins, then the provider's multicast set.
// Nil leaves the choice to zeroconf. An interface name that does not
// resolve also falls back to nil rather than failing discovery.
func chosenInterfaces(name string, provider api.InterfaceProvider) []net.Interface {
	if name != "" {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil
		}
		return []net.Interface{*iface}
	}
	if provider != nil {
		return provider.MulticastInterfaces()
	}
	return nil
}

// MDNSAdvertiser publishes the daemon's service record over mDNS.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu     sync.Mutex
	server *zeroconf.Server
}

func NewMDNSAdvertiser(config AdvertiserConfig) (*MDNSAdvertiser, error) {
	return &MDNSAdvertiser{config: config}, nil
}

// Advertise starts advertising the daemon, replacing any previous
// advertisement.
func (a *MDNSAdvertiser) Advertise(ctx context.Context, info *DaemonInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	port := int(info.Port)
	if port == 0 {
		port = DefaultPort
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		info.Instance,
		ServiceType,
		Domain,
		port,
		EncodeDaemonTXT(info),
		chosenInterfaces(a.config.Interface, a.config.InterfaceProvider),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("register %s: %w", info.Instance, err)
	}
	a.server = server
	return nil
}

// Update re-registers the advertisement with fresh TXT records.
func (a *MDNSAdvertiser) Update(info *DaemonInfo) error {
	return a.Advertise(context.Background(), info)
}

// Stop withdraws the advertisement.
func (a *MDNSAdvertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	return nil
}

// MDNSBrowser locates advertised daemons over mDNS.
type MDNSBrowser struct {
	config BrowserConfig

	mu      sync.Mutex
	stopped bool
	cancels []context.CancelFunc
}

func NewMDNSBrowser(config BrowserConfig) (*MDNSBrowser, error) {
	return &MDNSBrowser{config: config}, nil
}

// browseSession aggregates zeroconf entries into daemon services. The
// same instance announces on every multicast interface, so addresses
// are folded into one service per instance and dropped again as
// interfaces disappear.
type browseSession struct {
	services map[string]*DaemonService
}

func newBrowseSession() *browseSession {
	return &browseSession{services: make(map[string]*DaemonService)}
}

// observe folds one announcement in. It returns the service the first
// time an instance is seen, and nil when the entry only contributed
// addresses or carried no usable TXT record.
func (s *browseSession) observe(entry *zeroconf.ServiceEntry) *DaemonService {
	svc := entryToDaemon(entry)
	if svc == nil {
		return nil
	}
	existing, ok := s.services[svc.Instance]
	if !ok {
		s.services[svc.Instance] = svc
		return svc
	}
	for _, addr := range svc.Addresses {
		if !slices.Contains(existing.Addresses, addr) {
			existing.Addresses = append(existing.Addresses, addr)
		}
	}
	return nil
}

// expire drops the entry's addresses and forgets the instance once none
// remain.
func (s *browseSession) expire(entry *zeroconf.ServiceEntry) {
	existing, ok := s.services[entry.Instance]
	if !ok {
		return
	}
	gone := entryAddrs(entry)
	existing.Addresses = slices.DeleteFunc(existing.Addresses, func(addr string) bool {
		return slices.Contains(gone, addr)
	})
	if len(existing.Addresses) == 0 {
		delete(s.services, entry.Instance)
	}
}

// Browse streams daemons as they are discovered. The stream closes when
// ctx ends or the browser is stopped.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *DaemonService, error) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil, ErrBrowserStopped
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	out := make(chan *DaemonService)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func(entries, removed <-chan *zeroconf.ServiceEntry) {
		defer close(out)

		session := newBrowseSession()
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := session.observe(entry)
				if svc == nil {
					continue
				}
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				session.expire(entry)

			case <-ctx.Done():
				return
			}
		}
	}(entries, removed)

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.browserOptions()...)
	}()

	return out, nil
}

// Find searches for a daemon by instance name. Without a caller
// deadline the configured browse timeout applies.
func (b *MDNSBrowser) Find(ctx context.Context, instance string) (*DaemonService, error) {
	if _, ok := ctx.Deadline(); !ok {
		timeout := b.config.BrowseTimeout
		if timeout == 0 {
			timeout = BrowseTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	// Browse closes the stream once ctx ends, so ranging terminates.
	for svc := range results {
		if svc.Instance == instance {
			return svc, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNotFound
}

// Stop ends all active browse streams. The browser cannot be reused
// afterwards.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	if ifaces := chosenInterfaces(b.config.Interface, b.config.InterfaceProvider); ifaces != nil {
		return []zeroconf.ClientOption{zeroconf.SelectIfaces(ifaces)}
	}
	return nil
}

// entryAddrs flattens an entry's A and AAAA records into strings.
func entryAddrs(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// entryToDaemon converts a zeroconf entry to a DaemonService. Entries
// without a decodable TXT record are dropped.
func entryToDaemon(entry *zeroconf.ServiceEntry) *DaemonService {
	abi, version, err := DecodeDaemonTXT(entry.Text)
	if err != nil {
		return nil
	}
	return &DaemonService{
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Port:      uint16(entry.Port),
		Addresses: entryAddrs(entry),
		ABI:       abi,
		Version:   version,
	}
}
