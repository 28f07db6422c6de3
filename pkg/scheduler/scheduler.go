package scheduler

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/warpdl/keypool/pkg/keypool"
	"github.com/warpdl/keypool/pkg/logger"
)

// timer is the record behind one handle. It doubles as the Dispatcher passed
// to its own callback.
type timer struct {
	s        *Scheduler
	handle   keypool.Handle
	duration time.Duration
	cron     string
	count    int
	limit    int
	state    State
	tag      string
	payload  any
	cb       Callback
	token    Token
	armed    bool
}

func (t *timer) Stop()                  { t.s.stop(t) }
func (t *timer) Handle() keypool.Handle { return t.handle }
func (t *timer) Count() int             { return t.count }

func (t *timer) info() Info {
	return Info{
		Handle:   t.handle,
		Duration: t.duration,
		Cron:     t.cron,
		Count:    t.count,
		Limit:    t.limit,
		State:    t.state,
		Tag:      t.tag,
	}
}

// Scheduler runs repeating timers on a Host. Each active timer holds one
// handle of the scheduler's own pool until it stops.
type Scheduler struct {
	host    Host
	pool    *keypool.Pool[*timer]
	log     logger.Logger
	ceiling keypool.Handle
	closed  bool
}

// New returns a scheduler arming its waits on host.
func New(host Host, opts ...Option) *Scheduler {
	s := &Scheduler{
		host:    host,
		log:     logger.NopLogger{},
		ceiling: keypool.Unbounded,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pool = keypool.New[*timer](keypool.WithCeiling(s.ceiling))
	return s
}

// Schedule starts a timer firing every d. It returns the timer's handle.
func (s *Scheduler) Schedule(d time.Duration, cb Callback, opts ...TimerOption) (keypool.Handle, error) {
	if d <= 0 {
		return 0, fmt.Errorf("scheduler: duration %s: %w", d, ErrInvalidArgument)
	}
	return s.start(&timer{duration: d}, cb, opts)
}

// ScheduleCron starts a timer firing at every occurrence of the cron
// expression expr, evaluated against the host clock.
func (s *Scheduler) ScheduleCron(expr string, cb Callback, opts ...TimerOption) (keypool.Handle, error) {
	if !gronx.IsValid(expr) {
		return 0, fmt.Errorf("scheduler: cron expression %q: %w", expr, ErrInvalidArgument)
	}
	return s.start(&timer{cron: expr}, cb, opts)
}

func (s *Scheduler) start(t *timer, cb Callback, opts []TimerOption) (keypool.Handle, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if cb == nil {
		return 0, fmt.Errorf("scheduler: nil callback: %w", ErrInvalidArgument)
	}
	cfg := timerConfig{tag: DefaultTag}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.repeat < 0 {
		return 0, fmt.Errorf("scheduler: repeat %d: %w", cfg.repeat, ErrInvalidArgument)
	}
	t.s = s
	t.cb = cb
	t.limit = cfg.repeat
	t.tag = cfg.tag
	t.payload = cfg.payload
	t.state = Armed

	h, err := s.pool.AllocateWith(t)
	if err != nil {
		return 0, fmt.Errorf("scheduler: %w", err)
	}
	t.handle = h
	if err := s.arm(t); err != nil {
		_ = s.pool.Release(h)
		return 0, err
	}
	s.log.Debug("timer %d armed (%s)", h, t.describe())
	return h, nil
}

func (t *timer) describe() string {
	if t.cron != "" {
		return "cron " + t.cron
	}
	return "every " + t.duration.String()
}

func (s *Scheduler) arm(t *timer) error {
	d := t.duration
	if t.cron != "" {
		now := s.host.Now()
		next, err := gronx.NextTickAfter(t.cron, now, false)
		if err != nil {
			return fmt.Errorf("scheduler: next occurrence of %q: %w", t.cron, err)
		}
		d = next.Sub(now)
	}
	token, err := s.host.Arm(d, func() { s.fire(t) })
	if err != nil {
		return fmt.Errorf("scheduler: arm timer %d: %w", t.handle, err)
	}
	t.token = token
	t.armed = true
	return nil
}

func (s *Scheduler) fire(t *timer) {
	t.armed = false
	if t.state != Armed {
		return
	}
	t.state = Firing
	t.count++

	returned := false
	defer func() {
		if !returned {
			// the callback panicked: stop the timer, the panic keeps going
			t.state = Stopped
		}
		s.settle(t)
	}()
	t.cb(Event{Type: t.tag, Payload: t.payload, Dispatcher: t})
	returned = true
}

// settle moves a timer out of Firing once its callback is done.
func (s *Scheduler) settle(t *timer) {
	switch {
	case t.state == Stopped:
	case t.limit > 0 && t.count >= t.limit:
		t.state = Stopped
	case s.closed:
		t.state = Stopped
	default:
		t.state = Armed
		if err := s.arm(t); err != nil {
			s.log.Error("timer %d: %v", t.handle, err)
			t.state = Stopped
		}
	}
	if t.state == Stopped {
		s.release(t)
	}
}

func (s *Scheduler) release(t *timer) {
	if err := s.pool.Release(t.handle); err != nil {
		s.log.Error("timer %d: %v", t.handle, err)
		return
	}
	s.log.Debug("timer %d released after %d firings", t.handle, t.count)
}

// Stop cancels the timer behind h. A timer stopped from its own callback
// keeps its handle until the callback returns. Stopping an unknown or
// already stopped handle is a no-op; the result reports whether a timer was
// stopped.
func (s *Scheduler) Stop(h keypool.Handle) bool {
	t, ok := s.pool.Get(h)
	if !ok {
		return false
	}
	return s.stop(t)
}

func (s *Scheduler) stop(t *timer) bool {
	switch t.state {
	case Firing:
		t.state = Stopped
		return true
	case Armed:
		if t.armed {
			s.host.Cancel(t.token)
			t.armed = false
		}
		t.state = Stopped
		s.release(t)
		return true
	default:
		return false
	}
}

// StopAll stops every active timer and returns how many were stopped.
func (s *Scheduler) StopAll() int {
	n := 0
	for _, h := range s.pool.Handles() {
		if t, ok := s.pool.Get(h); ok && s.stop(t) {
			n++
		}
	}
	return n
}

// Lookup returns a snapshot of the timer behind h.
func (s *Scheduler) Lookup(h keypool.Handle) (Info, bool) {
	t, ok := s.pool.Get(h)
	if !ok {
		return Info{}, false
	}
	return t.info(), true
}

// Dispatcher returns the timer behind h as a Dispatcher. Unlike Stop(h), the
// returned value keeps referring to that timer after its handle is reused.
func (s *Scheduler) Dispatcher(h keypool.Handle) (Dispatcher, bool) {
	t, ok := s.pool.Get(h)
	if !ok || t.state == Stopped {
		return nil, false
	}
	return t, true
}

// Active returns a snapshot of every timer still holding a handle, in
// handle order.
func (s *Scheduler) Active() []Info {
	infos := make([]Info, 0, s.pool.Len())
	s.pool.Range(func(_ keypool.Handle, t *timer) bool {
		infos = append(infos, t.info())
		return true
	})
	return infos
}

// Len returns the number of timers holding a handle.
func (s *Scheduler) Len() int {
	return s.pool.Len()
}

// Audit checks the partition of the handle pool over [0, limit).
func (s *Scheduler) Audit(limit keypool.Handle) error {
	return s.pool.Audit(limit)
}

// Close stops every timer and rejects further Schedule calls.
func (s *Scheduler) Close() error {
	s.closed = true
	if n := s.StopAll(); n > 0 {
		s.log.Info("scheduler closed, %d timers stopped", n)
	}
	return nil
}
