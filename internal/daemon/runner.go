// Package daemon runs the handle pool service: one scheduler loop owning the
// pool and timers, and the JSON-RPC web server in front of it.
package daemon

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/warpdl/keypool/common"
	"github.com/warpdl/keypool/internal/server"
	"github.com/warpdl/keypool/pkg/keypool"
	"github.com/warpdl/keypool/pkg/logger"
	"github.com/warpdl/keypool/pkg/scheduler"
	"golang.org/x/net/netutil"
)

var (
	// ErrAlreadyRunning is returned when Start() is called on a running daemon.
	ErrAlreadyRunning = errors.New("daemon is already running")

	// ErrNotRunning is returned when Shutdown() is called on a stopped daemon.
	ErrNotRunning = errors.New("daemon is not running")

	// ErrShutdownTimeout is returned when shutdown exceeds the configured timeout.
	ErrShutdownTimeout = errors.New("shutdown timed out")
)

// DefaultPort is the JSON-RPC port used when Config.Port is negative.
const DefaultPort = common.DefaultPort

// Config holds the configuration for the daemon runner.
type Config struct {
	// Port is the TCP port of the JSON-RPC endpoints. Use 0 for an
	// ephemeral port.
	Port int

	// ListenAll binds every interface instead of loopback only.
	ListenAll bool

	// MaxConns caps simultaneous connections. Zero means no limit.
	MaxConns int

	// Secret is the bearer token required by every RPC call.
	Secret string

	// Ceiling bounds the pool and timer handles. Zero means unbounded.
	Ceiling keypool.Handle

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// A zero value means no timeout.
	ShutdownTimeout time.Duration

	Version   string
	Commit    string
	BuildType string
}

// Dependencies holds the external dependencies for the daemon runner.
type Dependencies struct {
	// ListenerFactory creates network listeners. If nil, net.Listen is used.
	ListenerFactory func(network, address string) (net.Listener, error)

	// ShutdownFunc is called during shutdown after the web server stopped.
	ShutdownFunc func() error

	// Logger receives lifecycle messages. If nil, nothing is logged.
	Logger logger.Logger
}

// Runner manages the daemon lifecycle.
type Runner struct {
	config   *Config
	deps     *Dependencies
	running  bool
	mu       sync.Mutex
	cancel   context.CancelFunc
	listener net.Listener
	web      *server.WebServer
	loop     *scheduler.Loop
	stopped  chan struct{}
}

// New creates a daemon runner. Nil config and deps get defaults.
func New(config *Config, deps *Dependencies) *Runner {
	return &Runner{
		config: applyConfigDefaults(config),
		deps:   applyDependencyDefaults(deps),
	}
}

func applyConfigDefaults(config *Config) *Config {
	if config == nil {
		config = &Config{}
	}
	if config.Port < 0 {
		config.Port = DefaultPort
	}
	return config
}

func applyDependencyDefaults(deps *Dependencies) *Dependencies {
	if deps == nil {
		deps = &Dependencies{}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}
	deps.Logger = logger.OrNop(deps.Logger)
	return deps
}

// Config returns the runner's configuration.
func (r *Runner) Config() *Config {
	return r.config
}

// Start listens, serves JSON-RPC and blocks until the context is canceled,
// Shutdown is called or the server fails.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)

	// the loop outlives ctx so draining requests can still reach it;
	// cleanupOnStop closes it after the web server stopped
	loop := scheduler.NewLoop(context.Background(), r.deps.Logger)
	web := server.NewWebServer(r.deps.Logger, loop, &server.RPCConfig{
		Secret:    r.config.Secret,
		ListenAll: r.config.ListenAll,
		Ceiling:   r.config.Ceiling,
		Version:   r.config.Version,
		Commit:    r.config.Commit,
		BuildType: r.config.BuildType,
	}, r.config.Port)

	// listen before reporting running so a failed bind leaves no state
	listener, err := r.deps.ListenerFactory("tcp", web.Addr())
	if err != nil {
		r.mu.Unlock()
		cancel()
		_ = loop.Close()
		return err
	}
	if r.config.MaxConns > 0 {
		listener = netutil.LimitListener(listener, r.config.MaxConns)
	}
	r.cancel = cancel
	r.listener = listener
	r.web = web
	r.loop = loop
	r.stopped = make(chan struct{})
	r.running = true
	stopped := r.stopped
	r.mu.Unlock()
	r.deps.Logger.Info("JSON-RPC listening on %s", listener.Addr())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- web.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-serveErr:
		cancel()
	}
	r.cleanupOnStop(web, loop)
	close(stopped)
	return err
}

// Addr returns the bound address while running.
func (r *Runner) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// cleanupOnStop stops the web server, runs the shutdown hook and stops the
// loop.
func (r *Runner) cleanupOnStop(web *server.WebServer, loop *scheduler.Loop) {
	ctx := context.Background()
	if r.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.ShutdownTimeout)
		defer cancel()
	}
	if err := web.Shutdown(ctx); err != nil {
		r.deps.Logger.Warning("web server shutdown: %v", err)
	}
	if r.deps.ShutdownFunc != nil {
		if err := r.deps.ShutdownFunc(); err != nil {
			r.deps.Logger.Warning("shutdown hook: %v", err)
		}
	}
	_ = loop.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.closeListener()
	r.deps.Logger.Info("daemon stopped")
}

// closeListener closes the listener if it exists. Caller must hold the mutex.
func (r *Runner) closeListener() {
	if r.listener != nil {
		_ = r.listener.Close()
		r.listener = nil
	}
}

// Shutdown stops a running daemon and waits for Start to finish its
// cleanup, up to ShutdownTimeout.
func (r *Runner) Shutdown() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return ErrNotRunning
	}
	cancel, stopped := r.cancel, r.stopped
	r.mu.Unlock()

	cancel()
	wait := func() error {
		<-stopped
		return nil
	}
	if r.config.ShutdownTimeout > 0 {
		return r.executeWithTimeout(wait, r.config.ShutdownTimeout)
	}
	return wait()
}

// executeWithTimeout runs fn and gives up after timeout, forcing the runner
// into the stopped state.
func (r *Runner) executeWithTimeout(fn func() error, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		r.forceStop()
		return ErrShutdownTimeout
	}
}

func (r *Runner) forceStop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.closeListener()
}

// IsRunning returns true if the daemon is currently running.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
