// Package clock suspends tasks on host timers.
package clock

import (
	"context"
	"time"

	"github.com/wippyai/wasync/executor"
	"github.com/wippyai/wasync/wasi/host"
)

// Now reads the host's monotonic clock. Readings are only comparable with
// each other.
func Now(h *host.WASIHost) time.Duration {
	return time.Duration(h.Monotonic.Now(context.Background()))
}

// Wall returns the host's wall-clock time.
func Wall(h *host.WASIHost) time.Time {
	return h.Wall.Now(context.Background()).Time()
}

// Sleep suspends the calling task for at least d. A non-positive d yields
// once instead.
func Sleep(ctx context.Context, h *host.WASIHost, d time.Duration) error {
	if d <= 0 {
		return executor.Yield(ctx)
	}
	return wait(ctx, h, h.Monotonic.SubscribeDuration(ctx, uint64(d)))
}

// SleepUntil suspends the calling task until the monotonic clock reaches t.
func SleepUntil(ctx context.Context, h *host.WASIHost, t time.Duration) error {
	if t <= Now(h) {
		return executor.Yield(ctx)
	}
	return wait(ctx, h, h.Monotonic.SubscribeInstant(ctx, uint64(t)))
}

func wait(ctx context.Context, h *host.WASIHost, timer uint32) error {
	defer func() { _ = h.IO.Poll.ResourceDropPollable(context.Background(), timer) }()
	return executor.WaitPollable(ctx, timer)
}
