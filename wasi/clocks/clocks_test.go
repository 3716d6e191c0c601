package clocks

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/wippyai/wasync/wasi"
)

func TestMonotonicClockHost_Now(t *testing.T) {
	host := NewMonotonicClockHost(wasi.NewResourceTable())
	ctx := context.Background()

	t1 := host.Now(ctx)
	time.Sleep(time.Millisecond)
	t2 := host.Now(ctx)

	if t2 <= t1 {
		t.Errorf("monotonic clock went backwards: %d then %d", t1, t2)
	}
	if host.Resolution(ctx) != 1 {
		t.Errorf("expected resolution 1")
	}
}

func pollableOf(t *testing.T, resources *wasi.ResourceTable, h uint32) wasi.Pollable {
	t.Helper()
	r, ok := resources.GetTyped(h, wasi.ResourcePollable)
	if !ok {
		t.Fatalf("handle %d is not a pollable", h)
	}
	return r.(wasi.Pollable)
}

func TestMonotonicClockHost_SubscribeDuration(t *testing.T) {
	resources := wasi.NewResourceTable()
	host := NewMonotonicClockHost(resources)
	ctx := context.Background()

	p := pollableOf(t, resources, host.SubscribeDuration(ctx, uint64(20*time.Millisecond)))
	if p.Ready() {
		t.Fatal("timer should not be ready immediately")
	}

	bctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := p.Block(bctx); err != nil {
		t.Fatalf("block: %v", err)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Error("timer fired too early")
	}
	if !p.Ready() {
		t.Error("timer should be ready after firing")
	}
}

func TestMonotonicClockHost_SubscribeInstant(t *testing.T) {
	resources := wasi.NewResourceTable()
	host := NewMonotonicClockHost(resources)
	ctx := context.Background()

	past := pollableOf(t, resources, host.SubscribeInstant(ctx, 0))
	if !past.Ready() {
		t.Error("instant in the past should be ready")
	}

	far := pollableOf(t, resources, host.SubscribeInstant(ctx, math.MaxUint64))
	if far.Ready() {
		t.Error("far instant should not be ready")
	}
	resources.Clear()
}

func TestWallClockHost(t *testing.T) {
	host := NewWallClockHost()
	ctx := context.Background()

	now := host.Now(ctx)
	if d := time.Since(now.Time()); d < 0 || d > time.Minute {
		t.Errorf("wall clock far from time.Now: %v", d)
	}
	if res := host.Resolution(ctx); res.Seconds != 0 || res.Nanoseconds != 1 {
		t.Errorf("unexpected resolution %+v", res)
	}

	ts := time.Date(2024, 3, 1, 12, 0, 0, 500, time.UTC)
	if got := DatetimeOf(ts).Time(); !got.Equal(ts) {
		t.Errorf("round trip: %v != %v", got, ts)
	}
}
