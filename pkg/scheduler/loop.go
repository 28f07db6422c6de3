package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/warpdl/keypool/pkg/logger"
)

const maxSleepCap = 60 * time.Second

// Loop is a Host backed by one goroutine. The goroutine owns the pending
// waits; Arm and Cancel must only be called from work running on it, that is
// from fired callbacks or from functions passed to Submit and Do.
//
// A panic in a fired callback or submitted function is recovered and logged
// with its stack; the loop keeps running.
type Loop struct {
	queue *waitQueue
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
	log   logger.Logger
}

// NewLoop creates and starts a Loop. The goroutine exits when ctx is
// cancelled or Close is called.
func NewLoop(ctx context.Context, l logger.Logger) *Loop {
	loop := &Loop{
		queue: newWaitQueue(),
		tasks: make(chan func(), 64),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		log:   logger.OrNop(l),
	}
	go loop.run(ctx)
	return loop
}

func (l *Loop) Arm(d time.Duration, fn func()) (Token, error) {
	if l.Closed() {
		return 0, ErrLoopClosed
	}
	return l.queue.push(time.Now().Add(d), fn)
}

func (l *Loop) Cancel(t Token) bool {
	return l.queue.cancel(t)
}

func (l *Loop) Now() time.Time {
	return time.Now()
}

// Submit queues fn to run on the loop goroutine.
func (l *Loop) Submit(fn func()) error {
	select {
	case <-l.done:
		return ErrLoopClosed
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.done:
		return ErrLoopClosed
	}
}

// Do runs fn on the loop goroutine and waits for its result. A panic in fn
// is returned as an error.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	err := l.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("scheduler: panic in loop task: %v", r)
			}
		}()
		result <- fn()
	})
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrLoopClosed
		}
	}
}

// Close stops the goroutine and waits for it to exit. Pending waits are
// dropped. Safe to call multiple times.
func (l *Loop) Close() error {
	l.once.Do(func() {
		close(l.quit)
	})
	<-l.done
	return nil
}

// Done is closed once the loop goroutine exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Closed reports whether the loop goroutine exited.
func (l *Loop) Closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		next, ok := l.queue.next()
		if !ok {
			// nothing armed, block on channels
			return nil
		}
		dur := time.Until(next)
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.quit:
			return
		case fn := <-l.tasks:
			l.safeRun("task", fn)
			timerCh = resetTimer()
		case <-timerCh:
			now := time.Now()
			for {
				fn, ok := l.queue.popDue(now)
				if !ok {
					break
				}
				l.safeRun("timer", fn)
			}
			timerCh = resetTimer()
		}
	}
}

func (l *Loop) safeRun(label string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("PANIC [%s]: %v\n%s", label, r, debug.Stack())
		}
	}()
	fn()
}

var _ Host = (*Loop)(nil)
