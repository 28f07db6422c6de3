package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/warpdl/keypool/common"
	"github.com/warpdl/keypool/pkg/keypool"
	"github.com/warpdl/keypool/pkg/logger"
	"github.com/warpdl/keypool/pkg/scheduler"
)

// JSON-RPC error codes for pool and timer operations.
const (
	codeInvalidKey    = jrpc2.Code(-32001)
	codePoolExhausted = jrpc2.Code(-32002)
	codePartition     = jrpc2.Code(-32003)
	codeInvalidParams = jrpc2.Code(-32602)
)

const firedBacklog = 256

// RPCConfig holds configuration for the JSON-RPC endpoints.
type RPCConfig struct {
	Secret    string         // Bearer token, required: empty rejects every call
	ListenAll bool           // bind to 0.0.0.0 instead of 127.0.0.1
	Ceiling   keypool.Handle // highest handle of the pool and timer domains, 0 means unbounded
	Version   string
	Commit    string
	BuildType string
}

// RPCServer exposes one pool and one scheduler over JSON-RPC. Both are owned
// by the loop goroutine; every handler runs its body there through Loop.Do.
type RPCServer struct {
	bridge    jhttp.Bridge
	methods   handler.Map
	notifier  *RPCNotifier
	loop      *scheduler.Loop
	pool      *keypool.Pool[json.RawMessage]
	sched     *scheduler.Scheduler
	log       logger.Logger
	fired     chan TimerFiredNotification
	closeOnce sync.Once
	version   string
	commit    string
	buildType string
}

// VersionResult is the response for system.getVersion.
type VersionResult struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildType string `json:"buildType,omitempty"`
}

// AllocateParams is the input for pool.allocate.
type AllocateParams struct {
	Value json.RawMessage `json:"value,omitempty"`
}

// HandleParam is a common input with just a handle.
type HandleParam struct {
	Handle keypool.Handle `json:"handle"`
}

// HandleResult is a common output with just a handle.
type HandleResult struct {
	Handle keypool.Handle `json:"handle"`
}

// AssignParams is the input for pool.assign.
type AssignParams struct {
	Handle keypool.Handle  `json:"handle"`
	Value  json.RawMessage `json:"value"`
}

// GetResult is the response for pool.get.
type GetResult struct {
	Handle keypool.Handle  `json:"handle"`
	Found  bool            `json:"found"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// AuditParams is the input for pool.audit.
type AuditParams struct {
	Limit keypool.Handle `json:"limit"`
}

// AuditResult is the response for pool.audit.
type AuditResult struct {
	Allocated []keypool.Handle `json:"allocated"`
	Free      []keypool.Range  `json:"free"`
}

// ScheduleParams is the input for timer.schedule. Exactly one of
// DurationMs and Cron must be set.
type ScheduleParams struct {
	DurationMs int64           `json:"durationMs,omitempty"`
	Cron       string          `json:"cron,omitempty"`
	Repeat     int             `json:"repeat,omitempty"`
	Tag        string          `json:"tag,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// StopResult is the response for timer.stop.
type StopResult struct {
	Stopped bool `json:"stopped"`
}

// TimerStatus describes one timer in timer.status and timer.list.
type TimerStatus struct {
	Handle     keypool.Handle `json:"handle"`
	DurationMs int64          `json:"durationMs,omitempty"`
	Cron       string         `json:"cron,omitempty"`
	Count      int            `json:"count"`
	Limit      int            `json:"limit"`
	State      string         `json:"state"`
	Tag        string         `json:"tag"`
}

// ListResult is the response for timer.list.
type ListResult struct {
	Timers []*TimerStatus `json:"timers"`
}

// EmptyResult is a placeholder for methods that return no data.
type EmptyResult struct{}

// NewRPCServer creates the method handlers and the HTTP bridge. Firings are
// pushed to WebSocket sessions in order by a background goroutine that
// exits on Close.
func NewRPCServer(cfg *RPCConfig, loop *scheduler.Loop, l logger.Logger) *RPCServer {
	ceiling := keypool.Unbounded
	if cfg.Ceiling > 0 {
		ceiling = cfg.Ceiling
	}
	l = logger.OrNop(l)
	rs := &RPCServer{
		notifier:  NewRPCNotifier(l),
		loop:      loop,
		pool:      keypool.New[json.RawMessage](keypool.WithCeiling(ceiling)),
		sched:     scheduler.New(loop, scheduler.WithLogger(l), scheduler.WithHandleCeiling(ceiling)),
		log:       l,
		fired:     make(chan TimerFiredNotification, firedBacklog),
		version:   cfg.Version,
		commit:    cfg.Commit,
		buildType: cfg.BuildType,
	}

	rs.methods = handler.Map{
		common.MethodGetVersion:  handler.New(rs.systemGetVersion),
		common.MethodPoolAlloc:   handler.New(rs.poolAllocate),
		common.MethodPoolGet:     handler.New(rs.poolGet),
		common.MethodPoolRelease: handler.New(rs.poolRelease),
		common.MethodPoolAssign:  handler.New(rs.poolAssign),
		common.MethodPoolReserve: handler.New(rs.poolReserve),
		common.MethodPoolAudit:   handler.New(rs.poolAudit),
		common.MethodTimerAdd:    handler.New(rs.timerSchedule),
		common.MethodTimerStop:   handler.New(rs.timerStop),
		common.MethodTimerStatus: handler.New(rs.timerStatus),
		common.MethodTimerList:   handler.New(rs.timerList),
	}
	rs.bridge = jhttp.NewBridge(rs.methods, nil)
	go rs.pushFired()
	return rs
}

// Notifier returns the WebSocket session registry.
func (rs *RPCServer) Notifier() *RPCNotifier {
	return rs.notifier
}

// Close stops every timer, the push goroutine, the WebSocket sessions and
// the bridge.
func (rs *RPCServer) Close() error {
	var err error
	rs.closeOnce.Do(func() {
		// a closed loop has no timers left to fire
		if derr := rs.loop.Do(context.Background(), rs.sched.Close); derr != nil && !errors.Is(derr, scheduler.ErrLoopClosed) {
			rs.log.Warning("close scheduler: %v", derr)
		}
		close(rs.fired)
		rs.notifier.StopAll()
		err = rs.bridge.Close()
	})
	return err
}

func (rs *RPCServer) pushFired() {
	for n := range rs.fired {
		rs.notifier.Broadcast(common.NotifyTimerFired, n)
	}
}

// rpcError maps pool and scheduler errors to JSON-RPC error codes.
func rpcError(err error) error {
	var code jrpc2.Code
	switch {
	case errors.Is(err, keypool.ErrInvalidKey):
		code = codeInvalidKey
	case errors.Is(err, keypool.ErrPoolExhausted):
		code = codePoolExhausted
	case errors.Is(err, keypool.ErrPartition):
		code = codePartition
	case errors.Is(err, scheduler.ErrInvalidArgument), errors.Is(err, keypool.ErrAuditWindow):
		code = codeInvalidParams
	default:
		return err
	}
	return &jrpc2.Error{Code: code, Message: err.Error()}
}

var errMissingParams = &jrpc2.Error{Code: codeInvalidParams, Message: "missing params"}

// do runs fn on the loop and maps its error.
func (rs *RPCServer) do(ctx context.Context, fn func() error) error {
	if err := rs.loop.Do(ctx, fn); err != nil {
		return rpcError(err)
	}
	return nil
}

func (rs *RPCServer) systemGetVersion(_ context.Context) (*VersionResult, error) {
	return &VersionResult{
		Version:   rs.version,
		Commit:    rs.commit,
		BuildType: rs.buildType,
	}, nil
}

// poolAllocate takes the lowest free handle, storing value when given.
func (rs *RPCServer) poolAllocate(ctx context.Context, p *AllocateParams) (*HandleResult, error) {
	var h keypool.Handle
	err := rs.do(ctx, func() (err error) {
		if p != nil && len(p.Value) > 0 {
			h, err = rs.pool.AllocateWith(p.Value)
		} else {
			h, err = rs.pool.Allocate()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &HandleResult{Handle: h}, nil
}

// poolGet misses without an error, lookups are expected to miss.
func (rs *RPCServer) poolGet(ctx context.Context, p *HandleParam) (*GetResult, error) {
	if p == nil {
		return nil, errMissingParams
	}
	res := &GetResult{Handle: p.Handle}
	err := rs.do(ctx, func() error {
		res.Value, res.Found = rs.pool.Get(p.Handle)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (rs *RPCServer) poolRelease(ctx context.Context, p *HandleParam) (*EmptyResult, error) {
	if p == nil {
		return nil, errMissingParams
	}
	if err := rs.do(ctx, func() error { return rs.pool.Release(p.Handle) }); err != nil {
		return nil, err
	}
	return &EmptyResult{}, nil
}

func (rs *RPCServer) poolAssign(ctx context.Context, p *AssignParams) (*EmptyResult, error) {
	if p == nil {
		return nil, errMissingParams
	}
	if len(p.Value) == 0 {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "missing required param: value"}
	}
	if err := rs.do(ctx, func() error { return rs.pool.Assign(p.Handle, p.Value) }); err != nil {
		return nil, err
	}
	return &EmptyResult{}, nil
}

func (rs *RPCServer) poolReserve(ctx context.Context, p *HandleParam) (*EmptyResult, error) {
	if p == nil {
		return nil, errMissingParams
	}
	if err := rs.do(ctx, func() error { return rs.pool.Reserve(p.Handle) }); err != nil {
		return nil, err
	}
	return &EmptyResult{}, nil
}

// poolAudit verifies the free/allocated partition over [0, limit) and
// returns the pool's layout.
func (rs *RPCServer) poolAudit(ctx context.Context, p *AuditParams) (*AuditResult, error) {
	if p == nil {
		return nil, errMissingParams
	}
	if p.Limit <= 0 || p.Limit > keypool.MaxAuditWindow {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: fmt.Sprintf("limit must be in [1, %d]", keypool.MaxAuditWindow)}
	}
	res := &AuditResult{}
	err := rs.do(ctx, func() error {
		if err := rs.pool.Audit(p.Limit); err != nil {
			return err
		}
		res.Allocated = rs.pool.Handles()
		res.Free = rs.pool.FreeRanges()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (rs *RPCServer) timerSchedule(ctx context.Context, p *ScheduleParams) (*HandleResult, error) {
	if p == nil {
		return nil, errMissingParams
	}
	if (p.DurationMs > 0) == (p.Cron != "") {
		return nil, &jrpc2.Error{Code: codeInvalidParams, Message: "exactly one of durationMs and cron is required"}
	}
	opts := []scheduler.TimerOption{scheduler.WithRepeat(p.Repeat)}
	if p.Tag != "" {
		opts = append(opts, scheduler.WithTag(p.Tag))
	}
	if len(p.Payload) > 0 {
		opts = append(opts, scheduler.WithPayload(p.Payload))
	}
	var h keypool.Handle
	err := rs.do(ctx, func() (err error) {
		if p.Cron != "" {
			h, err = rs.sched.ScheduleCron(p.Cron, rs.onFire, opts...)
		} else {
			h, err = rs.sched.Schedule(time.Duration(p.DurationMs)*time.Millisecond, rs.onFire, opts...)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &HandleResult{Handle: h}, nil
}

// onFire runs on the loop goroutine and must not block on the network.
func (rs *RPCServer) onFire(e scheduler.Event) {
	n := TimerFiredNotification{
		Handle: e.Dispatcher.Handle(),
		Tag:    e.Type,
		Count:  e.Dispatcher.Count(),
	}
	if info, ok := rs.sched.Lookup(n.Handle); ok {
		n.Limit = info.Limit
	}
	if raw, ok := e.Payload.(json.RawMessage); ok {
		n.Payload = raw
	}
	select {
	case rs.fired <- n:
	default:
		rs.log.Warning("timer %d: push backlog full, dropping firing %d", n.Handle, n.Count)
	}
}

func (rs *RPCServer) timerStop(ctx context.Context, p *HandleParam) (*StopResult, error) {
	if p == nil {
		return nil, errMissingParams
	}
	res := &StopResult{}
	if err := rs.do(ctx, func() error {
		res.Stopped = rs.sched.Stop(p.Handle)
		return nil
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (rs *RPCServer) timerStatus(ctx context.Context, p *HandleParam) (*TimerStatus, error) {
	if p == nil {
		return nil, errMissingParams
	}
	var (
		info  scheduler.Info
		found bool
	)
	if err := rs.do(ctx, func() error {
		info, found = rs.sched.Lookup(p.Handle)
		return nil
	}); err != nil {
		return nil, err
	}
	if !found {
		return nil, &jrpc2.Error{Code: codeInvalidKey, Message: "timer not found"}
	}
	return newTimerStatus(info), nil
}

func (rs *RPCServer) timerList(ctx context.Context) (*ListResult, error) {
	var infos []scheduler.Info
	if err := rs.do(ctx, func() error {
		infos = rs.sched.Active()
		return nil
	}); err != nil {
		return nil, err
	}
	res := &ListResult{Timers: make([]*TimerStatus, 0, len(infos))}
	for _, info := range infos {
		res.Timers = append(res.Timers, newTimerStatus(info))
	}
	return res, nil
}

func newTimerStatus(info scheduler.Info) *TimerStatus {
	return &TimerStatus{
		Handle:     info.Handle,
		DurationMs: info.Duration.Milliseconds(),
		Cron:       info.Cron,
		Count:      info.Count,
		Limit:      info.Limit,
		State:      info.State.String(),
		Tag:        info.Tag,
	}
}
