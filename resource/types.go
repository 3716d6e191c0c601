package resource

// Handle is an opaque reference to a resource in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventBorrowed
	EventBorrowReturned
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	case EventBorrowed:
		return "borrowed"
	case EventBorrowReturned:
		return "borrow-returned"
	default:
		return "unknown"
	}
}

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Parent Handle
	TypeID uint32
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Backend provides the underlying storage mechanism for resources.
type Backend interface {
	// Create stores a value and returns a handle.
	Create(typeID uint32, value any) (Handle, error)

	// CreateChild stores a value owned by parent and returns a handle.
	// The parent cannot be dropped while the child is live.
	CreateChild(parent Handle, typeID uint32, value any) (Handle, error)

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// Drop removes a resource and returns its value so the caller can run the destructor.
	// Fails if the handle is invalid, borrowed, or still owns live children.
	Drop(handle Handle) (any, error)

	// Close releases all resources held by the backend.
	Close() error
}

// Table manages resources with type information and observer support.
type Table interface {
	// Insert adds a value and returns its handle.
	Insert(typeID uint32, value any) Handle

	// InsertChild adds a value owned by parent.
	InsertChild(parent Handle, typeID uint32, value any) (Handle, error)

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// GetTyped retrieves a value only if it matches the expected type.
	GetTyped(handle Handle, typeID uint32) (any, bool)

	// Remove drops a resource and returns its value.
	Remove(handle Handle) (any, error)

	// RemoveTree drops a resource after all of its descendants.
	RemoveTree(handle Handle) error

	// Subscribe adds an observer for lifecycle events.
	Subscribe(Observer)

	// Unsubscribe removes an observer.
	Unsubscribe(Observer)

	// Len returns the number of active resources.
	Len() int

	// Clear drops all resources, children before parents.
	Clear()

	// Close releases all resources and stops accepting operations.
	Close() error
}

// Dropper is optionally implemented by resource values that need cleanup.
type Dropper interface {
	Drop()
}
