package wasi

import (
	"bytes"
	"testing"
)

func TestWASI_Environment(t *testing.T) {
	wasi := New().WithEnv(map[string]string{
		"USER": "testuser",
		"HOME": "/home/testuser",
	})
	defer wasi.Close()

	env := wasi.Env()
	if len(env) != 2 || env["USER"] != "testuser" || env["HOME"] != "/home/testuser" {
		t.Errorf("unexpected env %v", env)
	}
}

func TestWASI_ArgsCwdPreopens(t *testing.T) {
	wasi := New().
		WithArgs([]string{"program", "arg1"}).
		WithCwd("/workspace").
		WithPreopens(map[string]string{"/data": "/tmp/data"})
	defer wasi.Close()

	if len(wasi.Args()) != 2 || wasi.Args()[1] != "arg1" {
		t.Errorf("unexpected args %v", wasi.Args())
	}
	if wasi.Cwd() != "/workspace" {
		t.Errorf("unexpected cwd %q", wasi.Cwd())
	}
	if wasi.Preopens()["/data"] != "/tmp/data" {
		t.Errorf("unexpected preopens %v", wasi.Preopens())
	}
}

func TestWASI_CapturedOutput(t *testing.T) {
	wasi := New()
	defer wasi.Close()

	if err := wasi.StdoutStream().Write([]byte("out")); err != nil {
		t.Fatal(err)
	}
	if err := wasi.StderrStream().Write([]byte("err")); err != nil {
		t.Fatal(err)
	}
	if string(wasi.Stdout()) != "out" || string(wasi.Stderr()) != "err" {
		t.Fatalf("captured %q / %q", wasi.Stdout(), wasi.Stderr())
	}
}

func TestWASI_StreamedOutputIsNotCaptured(t *testing.T) {
	var out bytes.Buffer
	wasi := New().WithStdout(&out)
	defer wasi.Close()

	if wasi.Stdout() != nil {
		t.Fatal("streamed stdout should not report a capture")
	}
}

func TestWASI_Stdin(t *testing.T) {
	wasi := New().WithStdin([]byte("input"))
	defer wasi.Close()

	data, err := wasi.StdinStream().Read(100)
	if err != nil || string(data) != "input" {
		t.Fatalf("Read = %q, %v", data, err)
	}
}

func TestSharedStreamSurvivesHandleDrop(t *testing.T) {
	wasi := New().WithStdin([]byte("abc"))
	defer wasi.Close()

	table := wasi.Resources()
	h := table.Add(SharedInputStream{wasi.StdinStream()})
	if err := table.Remove(h); err != nil {
		t.Fatal(err)
	}

	data, err := wasi.StdinStream().Read(3)
	if err != nil || string(data) != "abc" {
		t.Fatalf("underlying stdin should still be readable, got %q, %v", data, err)
	}
}
