package io

import (
	"context"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/wasi"
)

type ErrorHost struct {
	resources *wasi.ResourceTable
}

func NewErrorHost(resources *wasi.ResourceTable) *ErrorHost {
	return &ErrorHost{resources: resources}
}

func (h *ErrorHost) Namespace() string {
	return "wasi:io/error@0.2.8"
}

func (h *ErrorHost) MethodErrorToDebugString(_ context.Context, self uint32) string {
	r, ok := h.resources.Get(self)
	if !ok {
		return "unknown error"
	}
	if err, ok := r.(*wasi.ErrorResource); ok {
		return err.ToDebugString()
	}
	return "unknown error"
}

func (h *ErrorHost) ResourceDropError(_ context.Context, self uint32) error {
	return wasi.DropError(errors.PhaseStream, "drop-error", self, h.resources.Remove(self))
}

func (h *ErrorHost) Register() map[string]any {
	return map[string]any{
		"[method]error.to-debug-string": h.MethodErrorToDebugString,
		"[resource-drop]error":          h.ResourceDropError,
	}
}
