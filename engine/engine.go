package engine

import (
	"context"
	"crypto/rand"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/wasi/host"
)

// Engine owns a wazero runtime shared by every module it loads.
type Engine struct {
	runtime      wazero.Runtime
	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal (experimental).
	EnableThreads bool
}

// New creates an engine. A nil cfg selects the defaults.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)

	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.EnableThreads {
			runtimeCfg = runtimeCfg.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
		}
	}

	return &Engine{runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}, nil
}

func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// initWASI instantiates the WASI singleton for this engine's runtime.
// Safe for concurrent calls from multiple modules sharing the same engine.
func (e *Engine) initWASI(ctx context.Context) error {
	if e.wasiInitDone.Load() {
		return nil
	}

	e.wasiInitMu.Lock()
	defer e.wasiInitMu.Unlock()

	if e.wasiInitDone.Load() {
		return nil
	}

	if e.runtime.Module(wasi_snapshot_preview1.ModuleName) == nil {
		if _, err := instantiateWASI(ctx, e.runtime); err != nil {
			return errors.Instantiation(err)
		}
	}

	e.wasiInitDone.Store(true)
	return nil
}

// Load compiles a core module.
func (e *Engine) Load(ctx context.Context, wasm []byte) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	return &Module{engine: e, compiled: compiled}, nil
}

// Module is a compiled guest. It can be run any number of times.
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
}

// Imports lists the module's imports as "module.name".
func (m *Module) Imports() []string {
	defs := m.compiled.ImportedFunctions()
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		mod, name, _ := d.Import()
		out = append(out, mod+"."+name)
	}
	return out
}

// Run instantiates the module against h's configuration and runs _start.
// It returns the guest's exit code; a guest that returns from _start exits
// with 0.
func (m *Module) Run(ctx context.Context, h *host.WASIHost) (uint32, error) {
	if err := m.engine.initWASI(ctx); err != nil {
		return 0, err
	}

	stdio := openStdio(ctx, h)
	defer stdio.close()

	cfg := moduleConfig(h).
		WithStdin(stdio.in).
		WithStdout(stdio.out).
		WithStderr(stdio.err)

	Logger().Debug("running guest", zap.Strings("args", h.Config().Args()))
	mod, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, cfg)
	if err != nil {
		var exit *sys.ExitError
		if errors.As(err, &exit) {
			Logger().Debug("guest exited", zap.Uint32("code", exit.ExitCode()))
			if ctx.Err() != nil {
				return exit.ExitCode(), errors.Cancelled(errors.PhaseRuntime, "run", ctx.Err())
			}
			return exit.ExitCode(), nil
		}
		return 0, errors.Instantiation(err)
	}
	return 0, mod.Close(ctx)
}

func moduleConfig(h *host.WASIHost) wazero.ModuleConfig {
	w := h.Config()
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader)

	args := w.Args()
	if len(args) > 0 {
		cfg = cfg.WithArgs(args...)
	}
	for k, v := range w.Env() {
		cfg = cfg.WithEnv(k, v)
	}

	fsCfg := wazero.NewFSConfig()
	for guest, dir := range w.Preopens() {
		// a "." preopen serves relative paths, which wazero roots at "/"
		if guest == "." {
			guest = "/"
		}
		fsCfg = fsCfg.WithDirMount(dir, guest)
	}
	return cfg.WithFSConfig(fsCfg)
}
