package executor

import (
	"context"

	"github.com/wippyai/wasync/errors"
)

// frame is one BlockOn call. Its waits poll their own handle and nothing else.
type frame struct {
	poller Poller
	id     uint64
}

// BlockOn runs fn on the calling goroutine under a fresh wait context.
// WaitPollable calls inside fn block on poller for just the awaited handle;
// pollables registered by executor tasks are neither polled nor disturbed,
// and a task calling BlockOn keeps the baton until fn returns.
func BlockOn(ctx context.Context, poller Poller, fn func(ctx context.Context) error) (err error) {
	if poller == nil {
		return errors.NotInitialized(errors.PhaseExecutor, "poller")
	}
	f := &frame{poller: poller, id: contextIDs.Add(1)}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Panic(errors.PhaseExecutor, "block-on", r)
		}
	}()
	return fn(withScope(ctx, f))
}

func (f *frame) contextID() uint64 { return f.id }

func (f *frame) wait(ctx context.Context, handle uint32) error {
	for !f.poller.Ready(handle) {
		if _, err := f.poller.Poll(ctx, []uint32{handle}); err != nil {
			return err
		}
	}
	return nil
}

func (f *frame) yield(ctx context.Context) error {
	return ctx.Err()
}
