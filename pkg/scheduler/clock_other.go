//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package scheduler

import "time"

var processStart = time.Now()

// time.Since reads the runtime's monotonic clock reading.
func monotonicNow() time.Duration {
	return time.Since(processStart)
}
