package scheduler

import (
	"time"

	"github.com/warpdl/keypool/pkg/keypool"
)

// Token identifies a pending host wait. Tokens are recycled once the wait
// fired or was cancelled.
type Token = keypool.Handle

// Host is the one-shot delayed callback primitive timers are built on.
type Host interface {
	// Arm runs fn once, d after now, on the host's thread.
	Arm(d time.Duration, fn func()) (Token, error)
	// Cancel drops a pending wait. It reports false when the wait already
	// fired, was cancelled, or never existed.
	Cancel(t Token) bool
	// Now returns the host's current time.
	Now() time.Time
}
