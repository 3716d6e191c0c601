package tcp

import (
	"context"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/executor"
	"github.com/wippyai/wasync/wasi/host"
)

// socket is a tcp-socket handle plus its lazily created subscription.
type socket struct {
	h      *host.WASIHost
	handle uint32
	sub    uint32
}

// wait blocks until the socket's current step can make progress.
func (s *socket) wait(ctx context.Context) error {
	if s.sub == 0 {
		sub, err := s.h.TCP.MethodTCPSocketSubscribe(ctx, s.handle)
		if err != nil {
			return err
		}
		s.sub = sub
	}
	return executor.WaitPollable(ctx, s.sub)
}

// release drops the subscription and then the socket.
func (s *socket) release() error {
	ctx := context.Background()
	var errs []error
	if s.sub != 0 {
		errs = append(errs, s.h.IO.Poll.ResourceDropPollable(ctx, s.sub))
		s.sub = 0
	}
	if s.handle != 0 {
		errs = append(errs, s.h.TCP.ResourceDropTCPSocket(ctx, s.handle))
		s.handle = 0
	}
	return errors.Join(errs...)
}
