package io

import "github.com/wippyai/wasync/wasi"

// Host aggregates all IO hosts for convenience.
type Host struct {
	Error   *ErrorHost
	Poll    *PollHost
	Streams *StreamsHost
}

// NewHost creates all IO hosts
func NewHost(resources *wasi.ResourceTable) *Host {
	return &Host{
		Error:   NewErrorHost(resources),
		Poll:    NewPollHost(resources),
		Streams: NewStreamsHost(resources),
	}
}
