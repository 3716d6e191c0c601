package host

import (
	"context"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/resource"
	"github.com/wippyai/wasync/wasi"
	"github.com/wippyai/wasync/wasi/cli"
	"github.com/wippyai/wasync/wasi/clocks"
	"github.com/wippyai/wasync/wasi/filesystem"
	"github.com/wippyai/wasync/wasi/io"
	"github.com/wippyai/wasync/wasi/sockets"
)

const version = "@0.2.8"

// WASIHost is every preview2 host interface sharing one resource table.
// It is what async code holds: handles it receives from one host are valid
// arguments to every other.
type WASIHost struct {
	config    *wasi.WASI
	Resources *wasi.ResourceTable
	IO        *io.Host
	Monotonic *clocks.MonotonicClockHost
	Wall      *clocks.WallClockHost
	Env       *cli.EnvironmentHost
	Exit      *cli.ExitHost
	Stdio     *cli.StdioHost
	Terminal  *cli.TerminalHost
	Types     *filesystem.TypesHost
	Preopens  *filesystem.PreopensHost
	Network   *sockets.InstanceNetworkHost
	TCPCreate *sockets.TCPCreateSocketHost
	TCP       *sockets.TCPHost
}

// New wires every host over w's resource table and streams.
func New(w *wasi.WASI) *WASIHost {
	resources := w.Resources()
	return &WASIHost{
		config:    w,
		Resources: resources,
		IO:        io.NewHost(resources),
		Monotonic: clocks.NewMonotonicClockHost(resources),
		Wall:      clocks.NewWallClockHost(),
		Env:       cli.NewEnvironmentHost(w.Env(), w.Args(), w.Cwd()),
		Exit:      cli.NewExitHost(),
		Stdio:     cli.NewStdioHost(resources, w.StdinStream(), w.StdoutStream(), w.StderrStream()),
		Terminal:  cli.NewTerminalHost(resources, w.InheritsStdio()),
		Types:     filesystem.NewTypesHost(resources),
		Preopens:  filesystem.NewPreopensHost(resources, w.Preopens()),
		Network:   sockets.NewInstanceNetworkHost(resources),
		TCPCreate: sockets.NewTCPCreateSocketHost(resources),
		TCP:       sockets.NewTCPHost(resources),
	}
}

// Config returns the configuration the host was built from.
func (h *WASIHost) Config() *wasi.WASI {
	return h.config
}

// Ready reports whether a pollable handle is ready without blocking.
func (h *WASIHost) Ready(handle uint32) bool {
	return h.IO.Poll.Ready(handle)
}

// Poll blocks until at least one pollable is ready and returns their indices.
func (h *WASIHost) Poll(ctx context.Context, handles []uint32) ([]uint32, error) {
	return h.IO.Poll.Poll(ctx, handles)
}

// WatchDrops calls fn with the handle of every resource dropped from the
// table until stop is called.
func (h *WASIHost) WatchDrops(fn func(handle uint32)) (stop func()) {
	w := &dropWatch{fn: fn}
	h.Resources.Subscribe(w)
	return func() { h.Resources.Unsubscribe(w) }
}

type dropWatch struct {
	fn func(uint32)
}

func (w *dropWatch) OnResourceEvent(e resource.Event) {
	if e.Type == resource.EventDropped {
		w.fn(uint32(e.Handle))
	}
}

// Close drops every live resource, children before parents.
func (h *WASIHost) Close() error {
	return h.config.Close()
}

// Register adds every host interface to reg.
func (h *WASIHost) Register(reg *Registry) error {
	registerHost := func(hh Host) error {
		if err := reg.RegisterHost(hh); err != nil {
			return errors.Registration(errors.PhaseHost, hh.Namespace(), "host", err)
		}
		return nil
	}
	registerFunc := func(ns, name string, fn any) error {
		if err := reg.RegisterFunc(ns, name, fn); err != nil {
			return errors.Registration(errors.PhaseHost, ns, name, err)
		}
		return nil
	}

	for _, hh := range []Host{
		h.IO.Error,
		h.IO.Poll,
		h.IO.Streams,
		h.Monotonic,
		h.Wall,
		h.Env,
		h.Exit,
		h.Types,
		h.Preopens,
		h.Network,
		h.TCPCreate,
		h.TCP,
	} {
		if err := registerHost(hh); err != nil {
			return err
		}
	}

	// stdio and terminal hosts each serve three interfaces
	std := h.Stdio.Register()
	term := h.Terminal.Register()
	for ns, fns := range map[string]map[string]any{
		"wasi:cli/stdin" + version:  {"get-stdin": std["get-stdin"]},
		"wasi:cli/stdout" + version: {"get-stdout": std["get-stdout"]},
		"wasi:cli/stderr" + version: {"get-stderr": std["get-stderr"]},
		"wasi:cli/terminal-input" + version: {
			"[resource-drop]terminal-input": term["[resource-drop]terminal-input"],
		},
		"wasi:cli/terminal-output" + version: {
			"[resource-drop]terminal-output": term["[resource-drop]terminal-output"],
		},
		"wasi:cli/terminal-stdin" + version:  {"get-terminal-stdin": term["get-terminal-stdin"]},
		"wasi:cli/terminal-stdout" + version: {"get-terminal-stdout": term["get-terminal-stdout"]},
		"wasi:cli/terminal-stderr" + version: {"get-terminal-stderr": term["get-terminal-stderr"]},
	} {
		for name, fn := range fns {
			if err := registerFunc(ns, name, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
