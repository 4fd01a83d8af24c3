package testutil

import "sync"

// MillisClock is a thread-safe millisecond clock for stamping frames in tests.
//
// Tests drive it explicitly so the same scenario always yields the same
// timestamps and therefore the same padding decisions.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MillisClock struct {
	mu    sync.Mutex
	start int64
	now   int64
}

// NewMillisClock creates a clock reading start.
func NewMillisClock(start int64) *MillisClock {
	return &MillisClock{start: start, now: start}
}

// Advance moves the clock forward by ms and returns the new reading.
// Negative steps are ignored.
func (c *MillisClock) Advance(ms int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ms > 0 {
		c.now += ms
	}
	return c.now
}

// Now returns the current reading without advancing.
func (c *MillisClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset returns the clock to its start reading.
func (c *MillisClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
