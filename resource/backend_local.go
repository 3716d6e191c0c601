package resource

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrClosed            = errors.New("resource backend closed")
	ErrInvalidHandle     = errors.New("invalid resource handle")
	ErrInvalidParent     = errors.New("invalid parent resource handle")
	ErrOutstandingBorrow = errors.New("cannot drop resource with outstanding borrows")
	ErrHasChildren       = errors.New("cannot drop resource with live child resources")
)

// LocalBackend is an in-memory resource backend with borrow and ownership tracking.
type LocalBackend struct {
	entries  []entry
	freeList []Handle
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value       any
	typeID      uint32
	parent      Handle
	depth       uint32
	children    uint32
	borrowCount uint32
	valid       bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

// Create stores a value and returns a handle.
func (b *LocalBackend) Create(typeID uint32, value any) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	return b.store(entry{typeID: typeID, value: value, valid: true}), nil
}

// CreateChild stores a value owned by parent.
func (b *LocalBackend) CreateChild(parent Handle, typeID uint32, value any) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	p := b.lookup(parent)
	if p == nil {
		return 0, ErrInvalidParent
	}
	p.children++
	return b.store(entry{
		typeID: typeID,
		value:  value,
		parent: parent,
		depth:  p.depth + 1,
		valid:  true,
	}), nil
}

// store must be called with mu held.
func (b *LocalBackend) store(e entry) Handle {
	if len(b.freeList) > 0 {
		handle := b.freeList[len(b.freeList)-1]
		b.freeList = b.freeList[:len(b.freeList)-1]
		b.entries[handle-1] = e
		return handle
	}
	b.entries = append(b.entries, e)
	return Handle(len(b.entries))
}

// lookup must be called with mu held.
func (b *LocalBackend) lookup(handle Handle) *entry {
	if handle == 0 || int(handle) > len(b.entries) {
		return nil
	}
	e := &b.entries[handle-1]
	if !e.valid {
		return nil
	}
	return e
}

// Get retrieves a value by handle.
func (b *LocalBackend) Get(handle Handle) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// Drop removes a resource and returns its value.
func (b *LocalBackend) Drop(handle Handle) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil {
		return nil, ErrInvalidHandle
	}
	if e.borrowCount > 0 {
		return nil, ErrOutstandingBorrow
	}
	if e.children > 0 {
		return nil, ErrHasChildren
	}

	if p := b.lookup(e.parent); p != nil && p.children > 0 {
		p.children--
	}

	value := e.value
	*e = entry{}
	b.freeList = append(b.freeList, handle)
	return value, nil
}

// Close releases all resources, deepest first.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, h := range b.dropOrder() {
		e := &b.entries[h-1]
		if d, ok := e.value.(Dropper); ok {
			d.Drop()
		}
		*e = entry{}
	}
	b.entries = nil
	b.freeList = nil
	return nil
}

// dropOrder returns live handles with children ahead of their parents.
// Must be called with mu held.
func (b *LocalBackend) dropOrder() []Handle {
	handles := make([]Handle, 0, len(b.entries))
	for i := range b.entries {
		if b.entries[i].valid {
			handles = append(handles, Handle(i+1))
		}
	}
	sort.SliceStable(handles, func(i, j int) bool {
		return b.entries[handles[i]-1].depth > b.entries[handles[j]-1].depth
	})
	return handles
}

// DropOrder returns live handles ordered so that every child precedes its parent.
func (b *LocalBackend) DropOrder() []Handle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropOrder()
}

// Parent returns the owner of handle, or 0 for root resources.
func (b *LocalBackend) Parent(handle Handle) (Handle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return 0, false
	}
	return e.parent, true
}

// Children returns the live handles directly owned by handle.
func (b *LocalBackend) Children(handle Handle) []Handle {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p := b.lookup(handle)
	if p == nil || p.children == 0 {
		return nil
	}
	out := make([]Handle, 0, p.children)
	for i := range b.entries {
		if b.entries[i].valid && b.entries[i].parent == handle {
			out = append(out, Handle(i+1))
		}
	}
	return out
}

// Borrow increments the borrow count for a handle.
func (b *LocalBackend) Borrow(handle Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil {
		return false
	}
	e.borrowCount++
	return true
}

// ReturnBorrow decrements the borrow count for a handle.
func (b *LocalBackend) ReturnBorrow(handle Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.lookup(handle)
	if e == nil || e.borrowCount == 0 {
		return false
	}
	e.borrowCount--
	return true
}

// TypeID returns the type ID for a handle.
func (b *LocalBackend) TypeID(handle Handle) (uint32, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e := b.lookup(handle)
	if e == nil {
		return 0, false
	}
	return e.typeID, true
}

// Len returns the number of active resources.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, e := range b.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over all active resources.
func (b *LocalBackend) Each(fn func(Handle, uint32, any) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(Handle(i+1), e.typeID, e.value) {
				break
			}
		}
	}
}
