// Package discovery implements mDNS/DNS-SD discovery for UCM daemons.
//
// Daemons advertise one service instance under _ucm._tcp. The TXT record
// carries the wire ABI revision and the daemon release:
//
//	abi=<revision>   command-set revision, from version.ABIVersion
//	sv=<release>     daemon release string, from version.Current
//
// Clients browse the service type to enumerate daemons on the local
// network and check the abi key before dialing; the shell's discover
// command is a thin wrapper over Browser.
//
// # Advertising
//
//	adv, _ := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
//	err := adv.Advertise(ctx, &discovery.DaemonInfo{
//	    Instance: "ucm-lab1",
//	    Port:     7471,
//	    ABI:      version.ABIVersion,
//	    Version:  version.Current,
//	})
//	defer adv.Stop()
//
// # Browsing
//
//	browser, _ := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
//	daemons, _ := browser.Browse(ctx)
//	for d := range daemons {
//	    fmt.Printf("%s at %v:%d (abi %d)\n", d.Instance, d.Addresses, d.Port, d.ABI)
//	}
package discovery
