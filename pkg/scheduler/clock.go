package scheduler

import (
	"sync"
	"time"
)

// Clock is a time source for TickHost.
type Clock interface {
	Now() time.Time
}

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock reading start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// MonotonicClock reports wall-clock time at creation plus the monotonic time
// elapsed since, so it never jumps when the system clock is stepped.
type MonotonicClock struct {
	origin time.Time
	base   time.Duration
}

// NewMonotonicClock starts a clock at time.Now().
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{origin: time.Now(), base: monotonicNow()}
}

func (c *MonotonicClock) Now() time.Time {
	return c.origin.Add(monotonicNow() - c.base)
}

var (
	_ Clock = (*ManualClock)(nil)
	_ Clock = (*MonotonicClock)(nil)
)
