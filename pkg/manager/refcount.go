package manager

import "sync/atomic"

// refcount tracks live borrows of a context. The count starts at one
// for the creating owner; teardown drops the owner reference and then
// waits for outstanding borrows to drain before the engine conn is
// closed. Gets and puts must balance exactly.
type refcount struct {
	count atomic.Int32
	zero  chan struct{}
}

func newRefcount() *refcount {
	r := &refcount{zero: make(chan struct{})}
	r.count.Store(1)
	return r
}

// get takes a borrow. The caller must already hold one, or must have
// found the holder through the registry under its lock.
func (r *refcount) get() {
	r.count.Add(1)
}

// getIfLive takes a borrow unless the count has already drained to
// zero.
func (r *refcount) getIfLive() bool {
	for {
		c := r.count.Load()
		if c == 0 {
			return false
		}
		if r.count.CompareAndSwap(c, c+1) {
			return true
		}
	}
}

// put drops a borrow. The final put releases waiters.
func (r *refcount) put() {
	if r.count.Add(-1) == 0 {
		close(r.zero)
	}
}

// wait blocks until every borrow has been dropped.
func (r *refcount) wait() {
	<-r.zero
}
