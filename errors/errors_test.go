package errors

import (
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseFilesystem,
				Kind:   KindNotFound,
				Op:     "open-at",
				Path:   "/data/missing.txt",
				Handle: 7,
				Detail: "no such file",
			},
			contains: []string{"[filesystem]", "not_found", "open-at", "handle 7", "/data/missing.txt", "no such file"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhasePoll,
				Kind:  KindInvalidInput,
			},
			contains: []string{"[poll]", "invalid_input"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseStream,
				Kind:   KindIO,
				Detail: "write failed",
				Cause:  errors.New("broken pipe"),
			},
			contains: []string{"[stream]", "io", "write failed", "caused by", "broken pipe"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	err := WrapOp(PhaseFilesystem, KindNotFound, "open", "/x", fs.ErrNotExist)

	if !errors.Is(err, fs.ErrNotExist) {
		t.Error("errors.Is should reach the wrapped sentinel")
	}
	if !errors.Is(errors.Unwrap(err), fs.ErrNotExist) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseStream,
		Kind:  KindClosed,
		Op:    "read",
	}

	if !err.Is(&Error{Phase: PhaseStream, Kind: KindClosed}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseNetwork, Kind: KindClosed}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseStream, Kind: KindWouldBlock}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseStream, Kind: KindClosed}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseNetwork, KindInvalidState).
		Op("finish-bind").
		Path("127.0.0.1:0").
		Handle(3).
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "bind-started", "unbound").
		Build()

	if err.Phase != PhaseNetwork {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseNetwork)
	}
	if err.Kind != KindInvalidState {
		t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidState)
	}
	if err.Op != "finish-bind" || err.Path != "127.0.0.1:0" || err.Handle != 3 {
		t.Errorf("Op=%q Path=%q Handle=%d", err.Op, err.Path, err.Handle)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected bind-started, got unbound" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("InvalidHandle", func(t *testing.T) {
		err := InvalidHandle(PhasePoll, "poll", 9)
		if err.Kind != KindInvalidHandle || err.Handle != 9 {
			t.Errorf("Kind=%v Handle=%d", err.Kind, err.Handle)
		}
	})

	t.Run("HasChildren", func(t *testing.T) {
		cause := errors.New("child live")
		err := HasChildren(PhaseStream, "drop-input-stream", 4, cause)
		if err.Kind != KindHasChildren {
			t.Errorf("Kind = %v, want %v", err.Kind, KindHasChildren)
		}
		if !errors.Is(err, cause) {
			t.Error("cause should be reachable")
		}
	})

	t.Run("InvalidUTF8", func(t *testing.T) {
		data := []byte{'o', 'k', 0xff, 0xfe}
		err := InvalidUTF8(PhaseFilesystem, "/bad.txt", data)
		if err.Kind != KindInvalidUTF8 {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidUTF8)
		}
		if err.Value != 2 {
			t.Errorf("Value = %v, want offset 2", err.Value)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseFilesystem, "seek", -1, 0)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
		}
		if err.Value != int64(-1) {
			t.Errorf("Value = %v, want -1", err.Value)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		err := Cancelled(PhaseExecutor, "wait", io.ErrUnexpectedEOF)
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Error("cause should be reachable")
		}
	})

	t.Run("Panic", func(t *testing.T) {
		err := Panic(PhaseExecutor, "task", "boom")
		if err.Kind != KindPanic || !strings.Contains(err.Error(), "boom") {
			t.Errorf("unexpected panic error: %v", err)
		}
	})

	t.Run("InvalidState", func(t *testing.T) {
		err := InvalidState(PhaseNetwork, "accept", "unbound")
		if !strings.Contains(err.Detail, "unbound") {
			t.Errorf("Detail = %q", err.Detail)
		}
	})
}

func TestMultiError(t *testing.T) {
	var m MultiError
	if m.ErrorOrNil() != nil {
		t.Fatal("empty MultiError should be nil")
	}

	m.Append(nil)
	m.Append(io.EOF)
	if m.ErrorOrNil() == nil || m.Error() != io.EOF.Error() {
		t.Fatalf("single error should format as itself, got %q", m.Error())
	}

	m.Append(fs.ErrNotExist)
	err := m.ErrorOrNil()
	if !strings.Contains(err.Error(), "2 errors occurred") {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, io.EOF) || !errors.Is(err, fs.ErrNotExist) {
		t.Error("errors.Is should see every collected error")
	}
}

func TestStdlibShims(t *testing.T) {
	sentinel := Sentinel("boom")
	wrapped := Wrap(PhaseStream, KindIO, sentinel, "write")

	if !Is(wrapped, sentinel) {
		t.Error("Is should see through *Error")
	}
	var e *Error
	if !As(Join(io.EOF, wrapped), &e) || e.Kind != KindIO {
		t.Error("As should find *Error inside a join")
	}
}
