package scheduler

import (
	"time"

	"github.com/warpdl/keypool/pkg/keypool"
)

// DefaultTag is the event type used when a timer is scheduled without WithTag.
const DefaultTag = "timer"

// State is the lifecycle state of a timer.
type State int

const (
	// Armed means a host wait is pending for the timer.
	Armed State = iota
	// Firing means the timer's callback is running.
	Firing
	// Stopped is terminal.
	Stopped
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Firing:
		return "firing"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Callback receives one Event per firing.
type Callback func(Event)

// Event is built for every firing and passed to the timer's callback.
type Event struct {
	// Type is the tag given with WithTag, DefaultTag otherwise.
	Type string
	// Payload is the value given with WithPayload, nil otherwise.
	Payload any
	// Dispatcher refers to the timer that fired.
	Dispatcher Dispatcher
}

// Dispatcher is the firing timer as seen from its callback.
type Dispatcher interface {
	// Stop cancels every further firing. Calling it more than once is a no-op.
	Stop()
	// Handle returns the timer's handle.
	Handle() keypool.Handle
	// Count returns how many times the timer has fired, including the
	// current firing.
	Count() int
}

// Info is a snapshot of a timer.
type Info struct {
	Handle   keypool.Handle `json:"handle"`
	Duration time.Duration  `json:"duration"`
	Cron     string         `json:"cron,omitempty"`
	Count    int            `json:"count"`
	Limit    int            `json:"limit"`
	State    State          `json:"state"`
	Tag      string         `json:"tag"`
}
