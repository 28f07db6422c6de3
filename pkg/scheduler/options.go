package scheduler

import (
	"github.com/warpdl/keypool/pkg/keypool"
	"github.com/warpdl/keypool/pkg/logger"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		s.log = logger.OrNop(l)
	}
}

// WithHandleCeiling bounds the timer handles to [0, ceiling]. Schedule then
// fails with keypool.ErrPoolExhausted while every handle is in use.
func WithHandleCeiling(ceiling keypool.Handle) Option {
	return func(s *Scheduler) {
		s.ceiling = ceiling
	}
}

type timerConfig struct {
	repeat  int
	tag     string
	payload any
}

// TimerOption configures a single timer.
type TimerOption func(*timerConfig)

// WithRepeat limits the timer to n firings. Zero, the default, repeats
// until the timer is stopped.
func WithRepeat(n int) TimerOption {
	return func(c *timerConfig) {
		c.repeat = n
	}
}

// WithTag sets the Type of every Event the timer dispatches.
func WithTag(tag string) TimerOption {
	return func(c *timerConfig) {
		c.tag = tag
	}
}

// WithPayload sets the Payload of every Event the timer dispatches.
func WithPayload(v any) TimerOption {
	return func(c *timerConfig) {
		c.payload = v
	}
}
