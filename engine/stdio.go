package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/executor"
	"github.com/wippyai/wasync/stream"
	"github.com/wippyai/wasync/wasi/host"
)

// guestStdio holds the stream handles a guest's stdio is bridged onto for
// the duration of one Run.
type guestStdio struct {
	in  *guestReader
	out *guestWriter
	err *guestWriter
}

func openStdio(ctx context.Context, h *host.WASIHost) *guestStdio {
	return &guestStdio{
		in:  &guestReader{ctx: ctx, h: h, s: stream.NewInputStream(h, h.Stdio.GetStdin(ctx))},
		out: &guestWriter{ctx: ctx, h: h, s: stream.NewOutputStream(h, h.Stdio.GetStdout(ctx))},
		err: &guestWriter{ctx: ctx, h: h, s: stream.NewOutputStream(h, h.Stdio.GetStderr(ctx))},
	}
}

func (g *guestStdio) close() {
	if err := errors.Join(g.in.s.Close(), g.out.s.Close(), g.err.s.Close()); err != nil {
		Logger().Warn("release guest stdio", zap.Error(err))
	}
}

// guestReader is the io.Reader wazero reads guest stdin from.
type guestReader struct {
	ctx context.Context
	h   *host.WASIHost
	s   *stream.InputStream
}

func (r *guestReader) Read(p []byte) (n int, err error) {
	err = executor.BlockOn(r.ctx, r.h, func(ctx context.Context) error {
		var rerr error
		n, rerr = r.s.Read(ctx, p)
		return rerr
	})
	return n, err
}

// guestWriter is the io.Writer wazero writes guest stdout or stderr to.
type guestWriter struct {
	ctx context.Context
	h   *host.WASIHost
	s   *stream.OutputStream
}

func (w *guestWriter) Write(p []byte) (n int, err error) {
	err = executor.BlockOn(w.ctx, w.h, func(ctx context.Context) error {
		var werr error
		n, werr = w.s.Write(ctx, p)
		return werr
	})
	return n, err
}
