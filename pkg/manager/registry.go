package manager

import "sync"

// table is a generation-counted slot arena. A handle packs the slot
// index in its low 32 bits and the slot's generation in the high 32,
// so a handle held past erase never resolves again even once the slot
// is reused. Slots are reserved empty and published once their value
// is fully built; lookup does not see a slot between the two.
type table[T comparable] struct {
	slots []tableSlot[T]
	free  []uint32 // vacated indexes, reused newest first
	used  int
	limit int
}

type tableSlot[T comparable] struct {
	value    T
	gen      uint32
	occupied bool
}

func newTable[T comparable](limit int) *table[T] {
	return &table[T]{limit: limit}
}

// reserve claims an empty slot and returns its handle. The slot stays
// invisible to lookup until publish stores a value.
// Returns ErrIDSpaceExhausted when every slot up to the limit is
// taken.
func (t *table[T]) reserve() (uint64, error) {
	if t.used >= t.limit {
		return 0, ErrIDSpaceExhausted
	}
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, tableSlot[T]{})
	}
	t.slots[idx].occupied = true
	t.used++
	return uint64(idx) | uint64(t.slots[idx].gen)<<32, nil
}

// publish stores v in the reserved slot named by h, making it visible
// to lookup.
func (t *table[T]) publish(h uint64, v T) {
	if s := t.slot(h); s != nil {
		s.value = v
	}
}

// lookup resolves h to its published value. It reports false for
// vacant slots, stale generations, and reserved slots not yet
// published.
func (t *table[T]) lookup(h uint64) (T, bool) {
	var zero T
	s := t.slot(h)
	if s == nil || s.value == zero {
		return zero, false
	}
	return s.value, true
}

// erase vacates the slot named by h and retires its generation. It
// reports whether the handle was still current.
func (t *table[T]) erase(h uint64) bool {
	s := t.slot(h)
	if s == nil {
		return false
	}
	var zero T
	s.value = zero
	s.occupied = false
	s.gen++
	t.used--
	t.free = append(t.free, uint32(h))
	return true
}

func (t *table[T]) slot(h uint64) *tableSlot[T] {
	idx := uint32(h)
	if int(idx) >= len(t.slots) {
		return nil
	}
	s := &t.slots[idx]
	if !s.occupied || s.gen != uint32(h>>32) {
		return nil
	}
	return s
}

// registry holds every session's contexts and multicast groups under
// one lock. The two handle spaces are independent.
//
// Lock order: a session lock may be held when taking mu; never the
// reverse.
type registry struct {
	mu   sync.Mutex
	ctxs *table[*Context]
	grps *table[*Group]
}

func newRegistry(maxContexts, maxGroups int) *registry {
	return &registry{
		ctxs: newTable[*Context](maxContexts),
		grps: newTable[*Group](maxGroups),
	}
}
