package scheduler

import "errors"

var (
	// ErrInvalidArgument is returned by Schedule for a non-positive duration,
	// a nil callback, a negative repeat count or an invalid cron expression.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrClosed is returned by Schedule once the scheduler has been closed.
	ErrClosed = errors.New("scheduler closed")

	// ErrLoopClosed is returned by Loop methods after the loop goroutine exited.
	ErrLoopClosed = errors.New("loop closed")
)
