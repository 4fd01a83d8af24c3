package fragment

import "sync/atomic"

// Counter hands out per-generation sequence numbers.
//
// The first call to Next returns 0 (or the resume point). Calls are
// linearizable: each returns a unique value one greater than the previous.
//
// Thread-safety: Counter is safe for concurrent use (atomic operations).
type Counter struct {
	next atomic.Uint64
}

// NewCounterAt creates a counter whose next value is start.
// Used to resume a generation that already has persisted fragments.
func NewCounterAt(start uint64) *Counter {
	c := &Counter{}
	c.next.Store(start)
	return c
}

// Next returns the next sequence number and advances the counter.
func (c *Counter) Next() uint64 {
	return c.next.Add(1) - 1
}

// Assigned returns how many sequence numbers have been handed out.
func (c *Counter) Assigned() uint64 {
	return c.next.Load()
}
