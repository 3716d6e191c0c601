package wasi

import (
	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/resource"
)

// MaxAllocationSize is the maximum size for single allocations (1 GB) to prevent DoS
const MaxAllocationSize = 1 << 30

// DefaultBufferSize is the default buffer size for streams and sockets (64 KB)
const DefaultBufferSize = 65536

// ResourceTable manages WASI resource handles.
// It is an adapter over resource.UnifiedTable that keeps parent/child ownership.
type ResourceTable struct {
	table *resource.UnifiedTable
}

// Resource is a WASI resource that can be managed by ResourceTable.
type Resource interface {
	// Type returns the resource type identifier.
	Type() ResourceType
	// Drop releases any underlying resources.
	Drop()
}

// ResourceType identifies the type of a WASI resource for type-safe handle management.
type ResourceType uint8

const (
	ResourcePollable ResourceType = iota
	ResourceInputStream
	ResourceOutputStream
	ResourceError
	ResourceDescriptor
	ResourceDirectoryEntryStream
	ResourceNetwork
	ResourceTCPSocket
	ResourceTerminalInput
	ResourceTerminalOutput
)

var resourceTypeNames = [...]string{
	ResourcePollable:             "pollable",
	ResourceInputStream:          "input-stream",
	ResourceOutputStream:         "output-stream",
	ResourceError:                "error",
	ResourceDescriptor:           "descriptor",
	ResourceDirectoryEntryStream: "directory-entry-stream",
	ResourceNetwork:              "network",
	ResourceTCPSocket:            "tcp-socket",
	ResourceTerminalInput:        "terminal-input",
	ResourceTerminalOutput:       "terminal-output",
}

func (t ResourceType) String() string {
	if int(t) < len(resourceTypeNames) {
		return resourceTypeNames[t]
	}
	return "unknown"
}

// NewResourceTable creates a new resource table
func NewResourceTable() *ResourceTable {
	return &ResourceTable{
		table: resource.NewTable(),
	}
}

// Add stores a resource and returns a stable handle.
func (t *ResourceTable) Add(r Resource) uint32 {
	return uint32(t.table.Insert(uint32(r.Type()), &resourceAdapter{r}))
}

// AddChild stores a resource owned by parent. The parent cannot be removed
// until the child has been removed.
func (t *ResourceTable) AddChild(parent uint32, r Resource) (uint32, error) {
	h, err := t.table.InsertChild(resource.Handle(parent), uint32(r.Type()), &resourceAdapter{r})
	return uint32(h), err
}

// Get returns the resource for a handle, or (nil, false) if invalid.
func (t *ResourceTable) Get(handle uint32) (Resource, bool) {
	res, ok := t.table.Get(resource.Handle(handle))
	if !ok {
		return nil, false
	}
	if adapter, ok := res.(*resourceAdapter); ok {
		return adapter.resource, true
	}
	return nil, false
}

// GetTyped returns the resource only if it has the expected type.
func (t *ResourceTable) GetTyped(handle uint32, typ ResourceType) (Resource, bool) {
	res, ok := t.table.GetTyped(resource.Handle(handle), uint32(typ))
	if !ok {
		return nil, false
	}
	if adapter, ok := res.(*resourceAdapter); ok {
		return adapter.resource, true
	}
	return nil, false
}

// Parent returns the owner of handle, 0 for root resources.
func (t *ResourceTable) Parent(handle uint32) (uint32, bool) {
	p, ok := t.table.Parent(resource.Handle(handle))
	return uint32(p), ok
}

// Remove calls Drop on the resource and removes it from the table.
// Removal is refused while the resource is borrowed or owns live children.
func (t *ResourceTable) Remove(handle uint32) error {
	_, err := t.table.Remove(resource.Handle(handle))
	return err
}

// RemoveTree removes handle and everything it owns, children first.
func (t *ResourceTable) RemoveTree(handle uint32) error {
	return t.table.RemoveTree(resource.Handle(handle))
}

// Borrow pins handle so it cannot be removed until ReturnBorrow.
func (t *ResourceTable) Borrow(handle uint32) bool {
	return t.table.Borrow(resource.Handle(handle))
}

// ReturnBorrow releases a pin taken with Borrow.
func (t *ResourceTable) ReturnBorrow(handle uint32) {
	t.table.ReturnBorrow(resource.Handle(handle))
}

// Len returns the number of live handles.
func (t *ResourceTable) Len() int {
	return t.table.Len()
}

// Subscribe registers an observer of handle lifecycle events.
func (t *ResourceTable) Subscribe(o resource.Observer) {
	t.table.Subscribe(o)
}

// Unsubscribe removes an observer.
func (t *ResourceTable) Unsubscribe(o resource.Observer) {
	t.table.Unsubscribe(o)
}

// Clear drops and removes all resources, children before parents. Used during shutdown.
func (t *ResourceTable) Clear() {
	t.table.Clear()
}

// Close clears the table and rejects later inserts.
func (t *ResourceTable) Close() error {
	return t.table.Close()
}

// resourceAdapter lets the unified table run Drop on WASI resources
type resourceAdapter struct {
	resource Resource
}

// Drop implements resource.Dropper to ensure resource cleanup
func (a *resourceAdapter) Drop() {
	if a.resource != nil {
		a.resource.Drop()
	}
}

// Unwrap returns the WASI resource held by an observer event value.
func Unwrap(v any) (Resource, bool) {
	a, ok := v.(*resourceAdapter)
	if !ok {
		return nil, false
	}
	return a.resource, true
}

// DropError converts a refused removal into a structured error.
func DropError(phase errors.Phase, op string, handle uint32, err error) error {
	if err == nil {
		return nil
	}
	kind := errors.KindInvalidHandle
	switch {
	case errors.Is(err, resource.ErrHasChildren):
		return errors.HasChildren(phase, op, handle, err)
	case errors.Is(err, resource.ErrOutstandingBorrow):
		kind = errors.KindBorrowed
	case errors.Is(err, resource.ErrClosed):
		kind = errors.KindClosed
	}
	return &errors.Error{Phase: phase, Kind: kind, Op: op, Handle: handle, Cause: err}
}
