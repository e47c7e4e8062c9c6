package testutil

import "sync"

// Epoch is the first timestamp handed out by a fresh Clock.
const Epoch int64 = 1_700_000_000_000

// Clock hands out strictly increasing millisecond timestamps for event
// creation. It can be reset so the same scenario produces the same events.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu   sync.Mutex
	step int64
	seq  int64
}

// NewClock creates a clock advancing one second per call.
func NewClock() *Clock {
	return &Clock{step: 1000}
}

// NowMs returns the next timestamp. The first call returns Epoch.
func (c *Clock) NowMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := Epoch + c.seq*c.step
	c.seq++
	return ts
}

// Calls returns how many timestamps have been handed out.
func (c *Clock) Calls() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset rewinds the clock to Epoch.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
