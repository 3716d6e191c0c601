package cli

import (
	"context"
	"maps"
	"slices"
)

type EnvironmentHost struct {
	env  map[string]string
	cwd  string
	args []string
}

func NewEnvironmentHost(env map[string]string, args []string, cwd string) *EnvironmentHost {
	if env == nil {
		env = make(map[string]string)
	}
	if cwd == "" {
		cwd = "/"
	}
	return &EnvironmentHost{
		env:  env,
		args: args,
		cwd:  cwd,
	}
}

func (h *EnvironmentHost) Namespace() string {
	return "wasi:cli/environment@0.2.8"
}

// GetEnvironment returns the variables sorted by name.
func (h *EnvironmentHost) GetEnvironment(_ context.Context) [][2]string {
	result := make([][2]string, 0, len(h.env))
	for _, k := range slices.Sorted(maps.Keys(h.env)) {
		result = append(result, [2]string{k, h.env[k]})
	}
	return result
}

// Getenv looks up a single variable.
func (h *EnvironmentHost) Getenv(name string) (string, bool) {
	v, ok := h.env[name]
	return v, ok
}

func (h *EnvironmentHost) GetArguments(_ context.Context) []string {
	return h.args
}

func (h *EnvironmentHost) InitialCwd(_ context.Context) *string {
	return &h.cwd
}

func (h *EnvironmentHost) Register() map[string]any {
	return map[string]any{
		"get-environment": h.GetEnvironment,
		"get-arguments":   h.GetArguments,
		"initial-cwd":     h.InitialCwd,
	}
}
