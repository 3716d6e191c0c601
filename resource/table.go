package resource

import (
	"errors"
	"sync"
)

// UnifiedTable implements the Table interface using a LocalBackend for storage.
type UnifiedTable struct {
	backend   *LocalBackend
	observers []Observer
	obsMu     sync.RWMutex
	closed    bool
	closeMu   sync.RWMutex
}

// NewTable creates a new unified table with a LocalBackend.
func NewTable() *UnifiedTable {
	return &UnifiedTable{
		backend: NewLocalBackend(),
	}
}

func (t *UnifiedTable) isClosed() bool {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	return t.closed
}

// Insert adds a value and returns its handle. Returns 0 once the table is closed.
func (t *UnifiedTable) Insert(typeID uint32, value any) Handle {
	if t.isClosed() {
		return 0
	}

	handle, err := t.backend.Create(typeID, value)
	if err != nil {
		return 0
	}

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		TypeID: typeID,
		Value:  value,
	})

	return handle
}

// InsertChild adds a value owned by parent.
func (t *UnifiedTable) InsertChild(parent Handle, typeID uint32, value any) (Handle, error) {
	if t.isClosed() {
		return 0, ErrClosed
	}

	handle, err := t.backend.CreateChild(parent, typeID, value)
	if err != nil {
		return 0, err
	}

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		Parent: parent,
		TypeID: typeID,
		Value:  value,
	})

	return handle, nil
}

// Get retrieves a value by handle.
func (t *UnifiedTable) Get(handle Handle) (any, bool) {
	return t.backend.Get(handle)
}

// GetTyped retrieves a value only if it matches the expected type.
func (t *UnifiedTable) GetTyped(handle Handle, typeID uint32) (any, bool) {
	actualTypeID, ok := t.backend.TypeID(handle)
	if !ok || actualTypeID != typeID {
		return nil, false
	}
	return t.backend.Get(handle)
}

// Parent returns the owner of handle, or 0 for root resources.
func (t *UnifiedTable) Parent(handle Handle) (Handle, bool) {
	return t.backend.Parent(handle)
}

// Children returns the live handles directly owned by handle.
func (t *UnifiedTable) Children(handle Handle) []Handle {
	return t.backend.Children(handle)
}

// Remove drops a resource, runs its destructor and returns its value.
func (t *UnifiedTable) Remove(handle Handle) (any, error) {
	typeID, _ := t.backend.TypeID(handle)
	parent, _ := t.backend.Parent(handle)

	value, err := t.backend.Drop(handle)
	if err != nil {
		return nil, err
	}

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		Parent: parent,
		TypeID: typeID,
		Value:  value,
	})

	return value, nil
}

// RemoveTree drops every descendant of handle depth-first and then handle itself.
func (t *UnifiedTable) RemoveTree(handle Handle) error {
	if _, ok := t.backend.Get(handle); !ok {
		return ErrInvalidHandle
	}
	var errs []error
	for _, child := range t.backend.Children(handle) {
		if err := t.RemoveTree(child); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	_, err := t.Remove(handle)
	return err
}

// Borrow marks handle as in use; a borrowed resource cannot be dropped.
func (t *UnifiedTable) Borrow(handle Handle) bool {
	if !t.backend.Borrow(handle) {
		return false
	}
	t.notify(Event{Type: EventBorrowed, Handle: handle})
	return true
}

// ReturnBorrow releases a borrow taken with Borrow.
func (t *UnifiedTable) ReturnBorrow(handle Handle) bool {
	if !t.backend.ReturnBorrow(handle) {
		return false
	}
	t.notify(Event{Type: EventBorrowReturned, Handle: handle})
	return true
}

// Subscribe adds an observer for lifecycle events.
func (t *UnifiedTable) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *UnifiedTable) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of active resources.
func (t *UnifiedTable) Len() int {
	return t.backend.Len()
}

// Clear drops all resources, children before parents.
// Borrowed resources are skipped.
func (t *UnifiedTable) Clear() {
	for _, h := range t.backend.DropOrder() {
		_, _ = t.Remove(h)
	}
}

// Close releases all resources and stops accepting operations.
func (t *UnifiedTable) Close() error {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return nil
	}
	t.closed = true
	t.closeMu.Unlock()

	t.Clear()
	return t.backend.Close()
}

// Backend returns the underlying backend.
func (t *UnifiedTable) Backend() *LocalBackend {
	return t.backend
}

func (t *UnifiedTable) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
