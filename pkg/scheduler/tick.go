package scheduler

import "time"

// TickHost is a Host polled by its owner. Every call to Tick compares the
// clock against the pending deadlines and runs the due callbacks in order,
// so the timing precision is the tick interval.
//
// Panics raised by callbacks propagate out of Tick.
type TickHost struct {
	clock Clock
	queue *waitQueue
}

// NewTickHost returns a host reading time from clock.
func NewTickHost(clock Clock) *TickHost {
	return &TickHost{clock: clock, queue: newWaitQueue()}
}

func (h *TickHost) Arm(d time.Duration, fn func()) (Token, error) {
	return h.queue.push(h.clock.Now().Add(d), fn)
}

func (h *TickHost) Cancel(t Token) bool {
	return h.queue.cancel(t)
}

func (h *TickHost) Now() time.Time {
	return h.clock.Now()
}

// Tick runs every callback due at the current clock reading and returns how
// many ran.
func (h *TickHost) Tick() int {
	now := h.clock.Now()
	n := 0
	for {
		fn, ok := h.queue.popDue(now)
		if !ok {
			return n
		}
		n++
		fn()
	}
}

// Pending returns the number of armed waits.
func (h *TickHost) Pending() int {
	return h.queue.len()
}

var _ Host = (*TickHost)(nil)
