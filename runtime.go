package wasync

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasync/engine"
	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/executor"
	"github.com/wippyai/wasync/logging"
	"github.com/wippyai/wasync/wasi"
	"github.com/wippyai/wasync/wasi/host"
)

// Config describes the world a runtime's tasks and guests see.
type Config struct {
	// Logger overrides the stderr logger built from LogLevel.
	Logger *zap.Logger

	// Stdin feeds stdin when InheritStdio is false. Nil means empty stdin.
	Stdin io.Reader

	// Env and Args are visible to guests through wasi:cli.
	Env  map[string]string
	Args []string

	// Preopens maps guest paths to host directories.
	Preopens map[string]string

	// LogLevel is one of error, warn, info, debug, trace or off. Empty reads
	// WASYNC_LOG and falls back to off.
	LogLevel string

	// MemoryLimitPages caps guest memory; 0 keeps the engine default.
	MemoryLimitPages uint32

	// GuestThreads enables the threads proposal for guests.
	GuestThreads bool

	// InheritStdio connects stdio to the process's own streams. Otherwise
	// stdout and stderr are captured.
	InheritStdio bool
}

// Runtime owns a host, its executor and the logger writing to its stderr.
type Runtime struct {
	cfg    Config
	wasi   *wasi.WASI
	host   *host.WASIHost
	exec   *executor.Executor
	log    *zap.Logger
	engine *engine.Engine
	mu     sync.Mutex
	closed bool
}

// New builds a runtime from cfg.
func New(cfg Config) *Runtime {
	w := wasi.New().
		WithArgs(cfg.Args).
		WithEnv(cfg.Env).
		WithPreopens(cfg.Preopens)
	switch {
	case cfg.InheritStdio:
		w.WithInheritedStdio()
	case cfg.Stdin != nil:
		w.WithStdinReader(cfg.Stdin)
	}
	h := host.New(w)

	log := cfg.Logger
	if log == nil {
		log = logging.Init(h, levelOf(cfg.LogLevel))
	}

	return &Runtime{
		cfg:  cfg,
		wasi: w,
		host: h,
		exec: executor.New(h, executor.WithLogger(log.Named("executor"))),
		log:  log,
	}
}

func levelOf(s string) zapcore.Level {
	if s != "" {
		if level, ok := logging.ParseLevel(s); ok {
			return level
		}
		return logging.Off
	}
	if level, ok := logging.LevelFromEnv(); ok {
		return level
	}
	return logging.Off
}

func (r *Runtime) Host() *host.WASIHost         { return r.host }
func (r *Runtime) Executor() *executor.Executor { return r.exec }
func (r *Runtime) Logger() *zap.Logger          { return r.log }

// Registry lists the host's WASI interfaces and functions by namespace.
func (r *Runtime) Registry() (*host.Registry, error) {
	reg := host.NewRegistry()
	if err := r.host.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Stdout returns captured stdout, nil when stdio is inherited.
func (r *Runtime) Stdout() []byte { return r.wasi.Stdout() }

// Stderr returns captured stderr, nil when stdio is inherited.
func (r *Runtime) Stderr() []byte { return r.wasi.Stderr() }

// Run spawns main as the first task and drives the executor until every
// task has finished.
func (r *Runtime) Run(ctx context.Context, main func(ctx context.Context) error) error {
	if err := r.checkOpen("run"); err != nil {
		return err
	}
	err := r.exec.Run(ctx, func(s *executor.Spawner) {
		s.Spawn("main", main)
	})
	stats := r.exec.Stats()
	r.log.Debug("run finished",
		zap.Uint64("spawned", stats.Spawned),
		zap.Uint64("failed", stats.Failed),
		zap.Uint64("polls", stats.Polls))
	return err
}

// RunGuest runs a WASI preview1 module against the runtime's host and
// returns its exit code.
func (r *Runtime) RunGuest(ctx context.Context, wasm []byte) (uint32, error) {
	if err := r.checkOpen("run-guest"); err != nil {
		return 0, err
	}
	e, err := r.guestEngine(ctx)
	if err != nil {
		return 0, err
	}
	mod, err := e.Load(ctx, wasm)
	if err != nil {
		return 0, err
	}
	return mod.Run(ctx, r.host)
}

func (r *Runtime) guestEngine(ctx context.Context) (*engine.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.engine == nil {
		e, err := engine.New(ctx, &engine.Config{
			MemoryLimitPages: r.cfg.MemoryLimitPages,
			EnableThreads:    r.cfg.GuestThreads,
		})
		if err != nil {
			return nil, err
		}
		r.engine = e
	}
	return r.engine, nil
}

func (r *Runtime) checkOpen(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.Closed(errors.PhaseRuntime, op)
	}
	return nil
}

// Close releases the engine and drops every remaining resource.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	e := r.engine
	r.mu.Unlock()

	_ = r.log.Sync()
	var errs []error
	if e != nil {
		errs = append(errs, e.Close(context.Background()))
	}
	errs = append(errs, r.host.Close())
	return errors.Join(errs...)
}
