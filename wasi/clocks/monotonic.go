package clocks

import (
	"context"
	"math"
	"time"

	"github.com/wippyai/wasync/wasi"
)

type MonotonicClockHost struct {
	resources *wasi.ResourceTable
	startTime time.Time
}

func NewMonotonicClockHost(resources *wasi.ResourceTable) *MonotonicClockHost {
	return &MonotonicClockHost{
		resources: resources,
		startTime: time.Now(),
	}
}

func (h *MonotonicClockHost) Namespace() string {
	return "wasi:clocks/monotonic-clock@0.2.8"
}

// Now returns nanoseconds since the host was created.
func (h *MonotonicClockHost) Now(_ context.Context) uint64 {
	return uint64(time.Since(h.startTime).Nanoseconds())
}

func (h *MonotonicClockHost) Resolution(_ context.Context) uint64 {
	return 1
}

// SubscribeInstant returns a pollable that is ready once Now reaches when.
func (h *MonotonicClockHost) SubscribeInstant(_ context.Context, when uint64) uint32 {
	deadline := h.startTime.Add(clampDuration(when))
	return h.resources.Add(wasi.NewTimerPollable(deadline))
}

// SubscribeDuration returns a pollable that is ready after duration nanoseconds.
func (h *MonotonicClockHost) SubscribeDuration(_ context.Context, duration uint64) uint32 {
	deadline := time.Now().Add(clampDuration(duration))
	return h.resources.Add(wasi.NewTimerPollable(deadline))
}

func clampDuration(ns uint64) time.Duration {
	if ns > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}

func (h *MonotonicClockHost) Register() map[string]any {
	return map[string]any{
		"now":                h.Now,
		"resolution":         h.Resolution,
		"subscribe-instant":  h.SubscribeInstant,
		"subscribe-duration": h.SubscribeDuration,
	}
}
