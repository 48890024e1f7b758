package resource

// Handle is an opaque reference to a resource in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

const (
	indexBits  = 24
	indexMask  = 1<<indexBits - 1
	maxEntries = indexMask
)

func makeHandle(index uint32, gen uint8) Handle {
	return Handle(uint32(gen)<<indexBits | (index & indexMask))
}

// index returns the 1-based slot index.
func (h Handle) index() uint32 { return uint32(h) & indexMask }

// generation returns the slot generation the handle was issued for.
func (h Handle) generation() uint8 { return uint8(uint32(h) >> indexBits) }

// Valid reports whether h could refer to an entry. It does not check liveness.
func (h Handle) Valid() bool { return h.index() != 0 }

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Backend provides the underlying storage mechanism for resources.
type Backend interface {
	// Create stores a value and returns a handle.
	Create(kind Kind, value any) (Handle, error)

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// Drop removes a resource and returns (value, true) if destructor should be called.
	// Returns (nil, false) if handle is stale or has outstanding borrows.
	Drop(handle Handle) (any, bool)

	// Borrow pins a live handle for the duration of a call.
	Borrow(handle Handle) bool

	// ReturnBorrow releases a pin taken by Borrow.
	ReturnBorrow(handle Handle) bool

	// Close releases all resources held by the backend.
	Close() error
}

// Table manages resources with kind information and observer support.
type Table interface {
	// Insert adds a value and returns its handle.
	Insert(kind Kind, value any) Handle

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// GetTyped retrieves a value only if it matches the expected kind.
	GetTyped(handle Handle, kind Kind) (any, bool)

	// Remove drops a resource and returns (value, true) if found.
	Remove(handle Handle) (any, bool)

	// Subscribe adds an observer for lifecycle events.
	Subscribe(Observer)

	// Unsubscribe removes an observer.
	Unsubscribe(Observer)

	// Len returns the number of active resources.
	Len() int

	// Clear drops all resources.
	Clear()

	// Close releases all resources and stops accepting operations.
	Close() error
}

// Dropper is optionally implemented by resource values that need cleanup.
type Dropper interface {
	Drop()
}
