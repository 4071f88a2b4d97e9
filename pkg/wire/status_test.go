package wire

import "testing"

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusSuccess, "SUCCESS"},
		{StatusNotFound, "NOT_FOUND"},
		{StatusInsufficientSpace, "INSUFFICIENT_SPACE"},
		{StatusRefused, "REFUSED"},
		{StatusInternal, "INTERNAL"},
		{Status(200), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", uint8(tt.status), got, tt.want)
		}
	}
}

func TestStatusPredicates(t *testing.T) {
	if !StatusSuccess.IsSuccess() {
		t.Error("StatusSuccess.IsSuccess() = false")
	}
	if StatusSuccess.IsError() {
		t.Error("StatusSuccess.IsError() = true")
	}
	if !StatusNotFound.IsError() {
		t.Error("StatusNotFound.IsError() = false")
	}

	if StatusNotFound.IsEngine() {
		t.Error("StatusNotFound.IsEngine() = true, want false")
	}
	if !StatusAddrInUse.IsEngine() {
		t.Error("StatusAddrInUse.IsEngine() = false, want true")
	}
	if !StatusNoRoute.IsEngine() {
		t.Error("StatusNoRoute.IsEngine() = false, want true")
	}
}
