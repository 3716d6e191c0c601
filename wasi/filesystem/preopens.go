package filesystem

import (
	"cmp"
	"context"
	"maps"
	"slices"

	"github.com/wippyai/wasync/wasi"
)

// Preopens get every permission; the host directory's own mode still applies.
const preopenFlags = wasi.DescriptorRead | wasi.DescriptorWrite | wasi.DescriptorMutateDirectory

// Preopen pairs a directory descriptor with the guest path it is mounted at.
type Preopen struct {
	Path   string
	Handle uint32
}

type PreopensHost struct {
	resources *wasi.ResourceTable
	preopens  map[string]string
}

func NewPreopensHost(resources *wasi.ResourceTable, preopens map[string]string) *PreopensHost {
	if preopens == nil {
		preopens = make(map[string]string)
	}
	return &PreopensHost{
		resources: resources,
		preopens:  preopens,
	}
}

func (h *PreopensHost) Namespace() string {
	return "wasi:filesystem/preopens@0.2.8"
}

// GetDirectories returns a fresh descriptor per preopen. Longer guest paths
// come first so a prefix search finds the most specific mount.
func (h *PreopensHost) GetDirectories(_ context.Context) []Preopen {
	guests := slices.SortedFunc(maps.Keys(h.preopens), func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	result := make([]Preopen, 0, len(guests))
	for _, guest := range guests {
		desc := wasi.NewDirectoryDescriptor(h.preopens[guest], preopenFlags)
		result = append(result, Preopen{Path: guest, Handle: h.resources.Add(desc)})
	}
	return result
}

func (h *PreopensHost) Register() map[string]any {
	return map[string]any{
		"get-directories": h.GetDirectories,
	}
}
