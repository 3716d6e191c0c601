// Package logging builds zap loggers that write to the host's stderr stream.
//
// Each entry is one line:
//
//	[1718000000000] [INFO] [wasync.tcp] listening {"addr": "127.0.0.1:8080"}
//
// Writes go through executor.BlockOn, so logging works both inside and
// outside executor tasks. Failures to write are dropped.
package logging

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasync/executor"
	"github.com/wippyai/wasync/stream"
	"github.com/wippyai/wasync/wasi/host"
)

// EnvVar names the environment variable read by LevelFromEnv.
const EnvVar = "WASYNC_LOG"

// Off disables logging when passed to Init.
const Off = zapcore.FatalLevel + 1

// DefaultName is the name of the logger returned by Init.
const DefaultName = "wasync"

// ParseLevel maps error, warn, info, debug, trace and off to a level.
// trace is reported as debug.
func ParseLevel(s string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return zapcore.ErrorLevel, true
	case "warn":
		return zapcore.WarnLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "debug", "trace":
		return zapcore.DebugLevel, true
	case "off":
		return Off, true
	}
	return zapcore.DebugLevel, false
}

// LevelFromEnv reads WASYNC_LOG. ok is false if it is unset or unknown.
func LevelFromEnv() (level zapcore.Level, ok bool) {
	v, set := os.LookupEnv(EnvVar)
	if !set {
		return zapcore.DebugLevel, false
	}
	return ParseLevel(v)
}

// EncoderConfig lays entries out as "[millis] [LEVEL] [name] message".
func EncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		NameKey:          "logger",
		MessageKey:       "msg",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " ",
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + strconv.FormatInt(t.UnixMilli(), 10) + "]")
		},
		EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + l.CapitalString() + "]")
		},
		EncodeName: func(name string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + name + "]")
		},
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

// Init returns a logger named DefaultName writing to h's stderr at level
// and above. Off yields a no-op logger.
func Init(h *host.WASIHost, level zapcore.Level) *zap.Logger {
	if level >= Off {
		return zap.NewNop()
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(EncoderConfig()),
		NewSink(h),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core).Named(DefaultName)
}

// Sink is a zapcore.WriteSyncer over the host's stderr stream.
type Sink struct {
	h   *host.WASIHost
	out *stream.BufWriter
	mu  sync.Mutex
}

func NewSink(h *host.WASIHost) *Sink {
	return &Sink{h: h}
}

// Write writes and flushes one entry. Errors are swallowed so a broken
// stderr never fails the caller.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		s.out = stream.Stderr(s.h)
	}
	_ = executor.BlockOn(context.Background(), s.h, func(ctx context.Context) error {
		if _, err := s.out.Write(ctx, p); err != nil {
			return err
		}
		return s.out.Flush(ctx)
	})
	return len(p), nil
}

// Sync flushes anything still buffered.
func (s *Sink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return nil
	}
	_ = executor.BlockOn(context.Background(), s.h, s.out.Flush)
	return nil
}
