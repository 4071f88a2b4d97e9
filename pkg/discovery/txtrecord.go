package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeDaemonTXT renders the daemon's TXT attributes in the key=value
// form mDNS carries.
func EncodeDaemonTXT(info *DaemonInfo) []string {
	return []string{
		TXTKeyABI + "=" + strconv.FormatUint(uint64(info.ABI), 10),
		TXTKeyVersion + "=" + info.Version,
	}
}

// DecodeDaemonTXT extracts the daemon attributes from the TXT strings
// of a browsed entry. Unknown keys are ignored so older shells keep
// working against newer daemons.
func DecodeDaemonTXT(txt []string) (abi uint16, version string, err error) {
	var abiRaw string
	for _, attr := range txt {
		key, value, _ := strings.Cut(attr, "=")
		switch key {
		case TXTKeyABI:
			abiRaw = value
		case TXTKeyVersion:
			version = value
		}
	}

	if abiRaw == "" {
		return 0, "", fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyABI)
	}
	n, err := strconv.ParseUint(abiRaw, 10, 16)
	if err != nil {
		return 0, "", fmt.Errorf("%w: bad abi %q", ErrInvalidTXTRecord, abiRaw)
	}
	if version == "" {
		return 0, "", fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	return uint16(n), version, nil
}
