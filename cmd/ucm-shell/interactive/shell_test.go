package interactive

import (
	"strings"
	"testing"

	"github.com/ucm-project/ucm-go/pkg/engine"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

func TestParseSockAddr(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		family  wire.AddrFamily
		port    uint16
		wantErr bool
	}{
		{name: "IPv4", input: "10.0.0.9:7000", family: wire.FamilyIPv4, port: 7000},
		{name: "IPv6", input: "[fe80::1]:7000", family: wire.FamilyIPv6, port: 7000},
		{name: "BarePort", input: ":7471", family: wire.FamilyIPv4, port: 7471},
		{name: "Wildcard", input: "0.0.0.0:0", family: wire.FamilyIPv4, port: 0},
		{name: "NoPort", input: "10.0.0.9", wantErr: true},
		{name: "Garbage", input: "not-an-address", wantErr: true},
		{name: "Hostname", input: "example.com:7000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := parseSockAddr(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseSockAddr(%q) = %v, want error", tt.input, addr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSockAddr(%q) error: %v", tt.input, err)
			}
			if addr.Family != tt.family {
				t.Errorf("Family = %d, want %d", addr.Family, tt.family)
			}
			if addr.Port != tt.port {
				t.Errorf("Port = %d, want %d", addr.Port, tt.port)
			}
		})
	}
}

func TestParsePortSpace(t *testing.T) {
	tests := []struct {
		input   string
		want    wire.PortSpace
		wantErr bool
	}{
		{input: "tcp", want: wire.PortSpaceTCP},
		{input: "TCP", want: wire.PortSpaceTCP},
		{input: "udp", want: wire.PortSpaceUDP},
		{input: "ipoib", want: wire.PortSpaceIPoIB},
		{input: "ib", want: wire.PortSpaceIB},
		{input: "sctp", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parsePortSpace(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parsePortSpace(%q) = %v, want error", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parsePortSpace(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parsePortSpace(%q) = 0x%x, want 0x%x", tt.input, got, tt.want)
		}
	}
}

func TestParseQPType(t *testing.T) {
	if got, err := parseQPType("rc"); err != nil || got != uint8(engine.QPTypeRC) {
		t.Errorf("parseQPType(rc) = %d, %v", got, err)
	}
	if got, err := parseQPType("UD"); err != nil || got != uint8(engine.QPTypeUD) {
		t.Errorf("parseQPType(UD) = %d, %v", got, err)
	}
	if _, err := parseQPType("xrc"); err == nil {
		t.Error("parseQPType(xrc) expected error")
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID("42"); err != nil || id != 42 {
		t.Errorf("parseID(42) = %d, %v", id, err)
	}
	if id, err := parseID("0x10"); err != nil || id != 16 {
		t.Errorf("parseID(0x10) = %d, %v", id, err)
	}
	if _, err := parseID("ctx-1"); err == nil {
		t.Error("parseID(ctx-1) expected error")
	}
}

func TestIDAndQPN(t *testing.T) {
	id, qpn, err := idAndQPN([]string{"7"})
	if err != nil || id != 7 || qpn != 1 {
		t.Errorf("idAndQPN([7]) = %d, %d, %v", id, qpn, err)
	}

	id, qpn, err = idAndQPN([]string{"7", "0x20"})
	if err != nil || id != 7 || qpn != 32 {
		t.Errorf("idAndQPN([7 0x20]) = %d, %d, %v", id, qpn, err)
	}

	if _, _, err = idAndQPN([]string{"7", "many"}); err == nil {
		t.Error("idAndQPN with bad qpn expected error")
	}
}

func TestFormatEvent(t *testing.T) {
	ev := &wire.EventReply{
		UID:   3,
		ID:    9,
		Event: uint32(engine.EventEstablished),
		Conn:  &wire.ConnParam{QPNum: 0x100, Valid: true},
	}
	got := formatEvent(ev)

	for _, want := range []string{"ESTABLISHED", "ctx=9", "uid=3", "qpn=256"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatEvent = %q, missing %q", got, want)
		}
	}
	if strings.Contains(got, "status=") {
		t.Errorf("formatEvent = %q, zero status should be omitted", got)
	}
}

func TestFormatEventConnectRequest(t *testing.T) {
	ev := &wire.EventReply{
		UID:   1,
		ID:    12,
		Event: uint32(engine.EventConnectRequest),
		Conn:  &wire.ConnParam{QPNum: 5, PrivateData: []byte{1, 2, 3}, Valid: true},
	}
	got := formatEvent(ev)

	for _, want := range []string{"CONNECT_REQUEST", "ctx=12", "private=3B", "accept or reject"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatEvent = %q, missing %q", got, want)
		}
	}
}

func TestFormatEventRejected(t *testing.T) {
	ev := &wire.EventReply{
		UID:    2,
		ID:     4,
		Event:  uint32(engine.EventRejected),
		Status: int32(wire.StatusRefused),
	}
	got := formatEvent(ev)

	if !strings.Contains(got, "REJECTED") || !strings.Contains(got, "status=") {
		t.Errorf("formatEvent = %q, want kind and status", got)
	}
}

func TestFormatPathRecord(t *testing.T) {
	p := wire.PathRecord{
		Flags: wire.PathGMP | wire.PathPrimary | wire.PathBidirectional,
		Raw:   make([]byte, 64),
	}
	got := formatPathRecord(p)
	for _, want := range []string{"gmp", "primary", "in", "out", "64B"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatPathRecord = %q, missing %q", got, want)
		}
	}

	if got := formatPathRecord(wire.PathRecord{}); !strings.Contains(got, "none") {
		t.Errorf("formatPathRecord(zero) = %q, want flags=none", got)
	}
}

func TestDefaultConnParam(t *testing.T) {
	p := defaultConnParam(0x42)
	if !p.Valid {
		t.Error("Valid = false, want true")
	}
	if p.QPNum != 0x42 {
		t.Errorf("QPNum = %d, want 0x42", p.QPNum)
	}
	if p.RetryCount != 7 || p.RnrRetryCount != 7 {
		t.Errorf("retry counts = %d/%d, want 7/7", p.RetryCount, p.RnrRetryCount)
	}
}
