// Package behavior runs JavaScript behaviors against a handle pool and a
// timer scheduler. Scripts get keyPool, timer, unique, forget, uuid4, print
// and require as globals.
//
// A Runtime is not safe for concurrent use. Every method, and every timer it
// schedules, must run on the thread of the scheduler.Host it was built on.
package behavior

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
	requirePkg "github.com/dop251/goja_nodejs/require"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/warpdl/keypool/pkg/keypool"
	"github.com/warpdl/keypool/pkg/logger"
	"github.com/warpdl/keypool/pkg/scheduler"
)

type options struct {
	fs      afero.Fs
	out     io.Writer
	log     logger.Logger
	ceiling keypool.Handle
}

// Option configures a Runtime.
type Option func(*options)

// WithFs sets the filesystem scripts and modules are read from.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithOutput sets where print writes.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithLogger sets the logger for require failures and callback errors.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = logger.OrNop(l) }
}

// WithCeiling bounds every pool a script creates, including the timer and
// unique id pools.
func WithCeiling(ceiling keypool.Handle) Option {
	return func(o *options) { o.ceiling = ceiling }
}

// Runtime is one JavaScript VM wired to its own scheduler and id pool.
type Runtime struct {
	vm      *goja.Runtime
	req     *requirePkg.RequireModule
	fs      afero.Fs
	out     io.Writer
	log     logger.Logger
	ceiling keypool.Handle
	sched   *scheduler.Scheduler
	unique  *keypool.Pool[struct{}]
	// dir is the directory of the running script, require resolves against it
	dir string
	// imported lists the modules loaded through require
	imported []string
}

// New creates a runtime whose timers are armed on host.
func New(host scheduler.Host, opts ...Option) (*Runtime, error) {
	o := options{
		fs:      afero.NewOsFs(),
		out:     os.Stdout,
		log:     logger.NopLogger{},
		ceiling: keypool.Unbounded,
	}
	for _, opt := range opts {
		opt(&o)
	}
	r := &Runtime{
		vm:      goja.New(),
		fs:      o.fs,
		out:     o.out,
		log:     o.log,
		ceiling: o.ceiling,
		unique:  keypool.New[struct{}](keypool.WithCeiling(o.ceiling)),
		dir:     ".",
	}
	r.sched = scheduler.New(host,
		scheduler.WithLogger(o.log),
		scheduler.WithHandleCeiling(o.ceiling),
	)
	registry := requirePkg.NewRegistry(requirePkg.WithLoader(r.load))
	r.req = registry.Enable(r.vm)

	globals := map[string]interface{}{
		"print":   r.print,
		"require": r.require,
		"keyPool": r.keyPool,
		"timer":   r.timer,
		"unique":  r.newUnique,
		"forget":  r.forget,
		"uuid4":   func() string { return uuid.NewString() },
	}
	for name, fn := range globals {
		if err := r.vm.Set(name, fn); err != nil {
			return nil, fmt.Errorf("behavior: set %s: %w", name, err)
		}
	}
	return r, nil
}

// Scheduler returns the scheduler behind the timer global.
func (r *Runtime) Scheduler() *scheduler.Scheduler {
	return r.sched
}

// Idle reports whether no timer is left running.
func (r *Runtime) Idle() bool {
	return r.sched.Len() == 0
}

// Imported returns the modules loaded through require, in load order.
func (r *Runtime) Imported() []string {
	return append([]string(nil), r.imported...)
}

// RunFile runs the script at path. Relative require calls resolve against
// the script's directory.
func (r *Runtime) RunFile(path string) (goja.Value, error) {
	src, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("behavior: %w", err)
	}
	r.dir = filepath.Dir(path)
	return r.RunString(path, string(src))
}

// RunString runs src; name is used in stack traces.
func (r *Runtime) RunString(name, src string) (goja.Value, error) {
	v, err := r.vm.RunScript(name, src)
	if err != nil {
		return nil, fmt.Errorf("behavior: %s: %w", name, err)
	}
	return v, nil
}

// Get returns the value of a script global.
func (r *Runtime) Get(name string) goja.Value {
	return r.vm.Get(name)
}

// Close stops every timer the scripts started.
func (r *Runtime) Close() error {
	return r.sched.Close()
}

func (r *Runtime) load(path string) ([]byte, error) {
	b, err := afero.ReadFile(r.fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, requirePkg.ModuleFileDoesNotExistError
	}
	return b, err
}

func (r *Runtime) print(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, v := range call.Arguments {
		parts[i] = v.String()
	}
	fmt.Fprintln(r.out, strings.Join(parts, " "))
	return goja.Undefined()
}

func (r *Runtime) require(call goja.FunctionCall) goja.Value {
	modName := call.Argument(0).String()
	modPath := modName
	if !filepath.IsAbs(modName) {
		modPath = filepath.Join(r.dir, modName)
	}
	v, err := r.req.Require(modPath)
	if err != nil {
		r.log.Warning("require: failed to import module %s: %v", modName, err)
		panic(r.vm.NewGoError(err))
	}
	r.imported = append(r.imported, modName)
	return v
}

// throwKey raises err as a JS Error.
func (r *Runtime) throwKey(err error) {
	panic(r.vm.NewGoError(err))
}

// handleArg reads argument i as a handle, throwing a TypeError when it is
// not an integer.
func (r *Runtime) handleArg(call goja.FunctionCall, i int) keypool.Handle {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		panic(r.vm.NewTypeError("expected a key, got %s", v.String()))
	}
	f := v.ToFloat()
	if f != float64(int64(f)) {
		panic(r.vm.NewTypeError("expected an integer key, got %s", v.String()))
	}
	return keypool.Handle(v.ToInteger())
}
