package engine

import (
	"context"
	"encoding/hex"
	"slices"
	"testing"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/executor"
	"github.com/wippyai/wasync/wasi"
	"github.com/wippyai/wasync/wasi/host"
)

// Hand-assembled guests. Each exports _start.
const (
	// empty _start
	emptyWasm = "0061736d0100000001040160000003020100070a01065f737461727400000a040102000b"
	// proc_exit(3)
	exitWasm = "0061736d0100000001080260017f0060000002240116776173695f736e617073686f745f70726576696577310970726f635f65786974000003020101070a01065f737461727400010a08010600410310000b"
	// fd_write(1, "hello\n")
	helloWasm = "0061736d01000000010c0260047f7f7f7f017f60000002230116776173695f736e617073686f745f70726576696577310866645f77726974650000030201010503010001071302066d656d6f72790200065f737461727400010a0f010d00410141004101411410001a0b0b14010041000b0e080000000600000068656c6c6f0a"
	// one fd_read from stdin, written back to stdout
	echoWasm = "0061736d01000000010c0260047f7f7f7f017f60000002440216776173695f736e617073686f745f70726576696577310766645f72656164000016776173695f736e617073686f745f70726576696577310866645f77726974650000030201010503010001071302066d656d6f72790200065f737461727400020a24012200410041004101411010001a41244110280200360200410141204101413010011a0b0b17020041000b0840000000400000000041200b0440000000"
)

func load(t *testing.T, e *Engine, src string) *Module {
	t.Helper()
	b, err := hex.DecodeString(src)
	if err != nil {
		t.Fatal(err)
	}
	m, err := e.Load(context.Background(), b)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(context.Background(), &Config{MemoryLimitPages: 16})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func TestRun_Empty(t *testing.T) {
	e := newEngine(t)
	h := host.New(wasi.New())
	defer h.Close()

	code, err := load(t, e, emptyWasm).Run(context.Background(), h)
	if err != nil || code != 0 {
		t.Fatalf("Run = %d, %v", code, err)
	}
	if n := h.Resources.Len(); n != 0 {
		t.Fatalf("%d stdio handles left", n)
	}
}

func TestRun_ExitCode(t *testing.T) {
	e := newEngine(t)
	h := host.New(wasi.New())
	defer h.Close()

	m := load(t, e, exitWasm)
	if !slices.Contains(m.Imports(), "wasi_snapshot_preview1.proc_exit") {
		t.Fatalf("imports = %v", m.Imports())
	}
	code, err := m.Run(context.Background(), h)
	if err != nil || code != 3 {
		t.Fatalf("Run = %d, %v", code, err)
	}
}

func TestRun_StdoutBridged(t *testing.T) {
	e := newEngine(t)
	w := wasi.New()
	h := host.New(w)
	defer h.Close()

	m := load(t, e, helloWasm)
	for range 2 {
		if _, err := m.Run(context.Background(), h); err != nil {
			t.Fatal(err)
		}
	}
	if got := string(w.Stdout()); got != "hello\nhello\n" {
		t.Fatalf("stdout = %q", got)
	}
}

func TestRun_EchoInsideTask(t *testing.T) {
	e := newEngine(t)
	w := wasi.New().WithStdin([]byte("ping\n"))
	h := host.New(w)
	defer h.Close()

	m := load(t, e, echoWasm)
	err := executor.New(h).Run(context.Background(), func(s *executor.Spawner) {
		s.Spawn("guest", func(ctx context.Context) error {
			_, err := m.Run(ctx, h)
			return err
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := string(w.Stdout()); got != "ping\n" {
		t.Fatalf("stdout = %q", got)
	}
}

func TestLoad_Invalid(t *testing.T) {
	e := newEngine(t)
	_, err := e.Load(context.Background(), []byte("not wasm"))
	want := &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindIO}
	if !errors.Is(err, want) {
		t.Fatalf("expected load error, got %v", err)
	}
}
