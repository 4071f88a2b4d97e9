// Package version carries the library release string, the wire ABI
// version, and ALPN helpers.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the ucm-go release, advertised in the Hello frame and in
// mDNS TXT records.
const Current = "0.4.1"

// ABIVersion is the command table revision spoken inside the envelope.
// Versioned replies are shaped by the declared sizes of this revision;
// a client built against a different revision must not drive the
// daemon.
const ABIVersion uint16 = 4

// TransportMajor is the framing and envelope major version carried in
// ALPN. Bumped only for incompatible frame or envelope changes.
const TransportMajor uint16 = 1

// ALPNProtocol returns the ALPN protocol string for a transport major:
// "ucm/N".
func ALPNProtocol(major uint16) string {
	return fmt.Sprintf("ucm/%d", major)
}

// MajorFromALPN extracts the transport major from an ALPN protocol string.
func MajorFromALPN(alpn string) (uint16, error) {
	suffix, ok := strings.CutPrefix(alpn, "ucm/")
	if !ok || suffix == "" {
		return 0, fmt.Errorf("not a UCM ALPN protocol: %q", alpn)
	}
	major, err := strconv.ParseUint(suffix, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("bad major in ALPN %q: %w", alpn, err)
	}
	return uint16(major), nil
}

// SupportedALPNProtocols returns the ALPN protocol strings this library
// speaks. Currently only transport major 1.
func SupportedALPNProtocols() []string {
	return []string{ALPNProtocol(TransportMajor)}
}
