package log

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Log files are a plain concatenation of CBOR-encoded events. Encoding
// is deterministic (canonical key order, definite lengths) so that the
// same event stream always produces the same bytes, and timestamps keep
// nanosecond precision. Decoding is deliberately looser than encoding:
// ulog files from newer builds may carry keys this build does not know,
// and the readers should still get every event they can interpret.

var encMode = mustEncMode(cbor.EncOptions{
	Sort:          cbor.SortCanonical,
	IndefLength:   cbor.IndefLengthForbidden,
	NilContainers: cbor.NilContainerAsNull,
	Time:          cbor.TimeRFC3339Nano,
})

var decMode = mustDecMode(cbor.DecOptions{
	DupMapKey:         cbor.DupMapKeyQuiet,
	IndefLength:       cbor.IndefLengthAllowed,
	ExtraReturnErrors: cbor.ExtraDecErrorNone,
})

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	m, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: bad encoder options: %v", err))
	}
	return m
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	m, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: bad decoder options: %v", err))
	}
	return m
}

// MarshalEvent encodes one event to its ulog wire form.
func MarshalEvent(event Event) ([]byte, error) {
	return encMode.Marshal(event)
}

// UnmarshalEvent decodes one event from its ulog wire form.
func UnmarshalEvent(data []byte) (Event, error) {
	var event Event
	if err := decMode.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}
