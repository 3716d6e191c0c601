package clocks

import (
	"context"
	"time"
)

type WallClockHost struct{}

func NewWallClockHost() *WallClockHost {
	return &WallClockHost{}
}

func (h *WallClockHost) Namespace() string {
	return "wasi:clocks/wall-clock@0.2.8"
}

type Datetime struct {
	Seconds     uint64
	Nanoseconds uint32
}

// DatetimeOf converts a Go time to a wall-clock datetime.
func DatetimeOf(t time.Time) Datetime {
	return Datetime{
		Seconds:     uint64(t.Unix()),
		Nanoseconds: uint32(t.Nanosecond()),
	}
}

// Time converts back to a Go time in UTC.
func (d Datetime) Time() time.Time {
	return time.Unix(int64(d.Seconds), int64(d.Nanoseconds)).UTC()
}

func (h *WallClockHost) Now(_ context.Context) Datetime {
	return DatetimeOf(time.Now())
}

func (h *WallClockHost) Resolution(_ context.Context) Datetime {
	return Datetime{
		Seconds:     0,
		Nanoseconds: 1,
	}
}

func (h *WallClockHost) Register() map[string]any {
	return map[string]any{
		"now":        h.Now,
		"resolution": h.Resolution,
	}
}
