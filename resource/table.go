package resource

import (
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

// Insert adds a value and returns its handle. It returns 0 once the table is closed.
func (t *UnifiedTable) Insert(kind Kind, value any) Handle {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return 0
	}
	t.closeMu.RUnlock()

	handle, err := t.backend.Create(kind, value)
	if err != nil {
		return 0
	}

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		Kind:   kind,
		Value:  value,
	})

	return handle
}

// Get retrieves a value by handle.
func (t *UnifiedTable) Get(handle Handle) (any, bool) {
	return t.backend.Get(handle)
}

// GetTyped retrieves a value only if it matches the expected kind.
func (t *UnifiedTable) GetTyped(handle Handle, kind Kind) (any, bool) {
	actual, ok := t.backend.Kind(handle)
	if !ok || actual != kind {
		return nil, false
	}
	return t.backend.Get(handle)
}

// KindOf returns the kind of a live handle.
func (t *UnifiedTable) KindOf(handle Handle) (Kind, bool) {
	return t.backend.Kind(handle)
}

// Borrow pins a live handle of the expected kind and returns its value.
// The caller must call ReturnBorrow when the call using it completes.
func (t *UnifiedTable) Borrow(handle Handle, kind Kind) (any, bool) {
	actual, ok := t.backend.Kind(handle)
	if !ok || actual != kind {
		return nil, false
	}
	if !t.backend.Borrow(handle) {
		return nil, false
	}
	v, ok := t.backend.Get(handle)
	if !ok {
		t.backend.ReturnBorrow(handle)
		return nil, false
	}
	return v, true
}

// ReturnBorrow releases a pin taken by Borrow.
func (t *UnifiedTable) ReturnBorrow(handle Handle) bool {
	return t.backend.ReturnBorrow(handle)
}

// Remove drops a resource and returns (value, true) if found.
func (t *UnifiedTable) Remove(handle Handle) (any, bool) {
	kind, _ := t.backend.Kind(handle)
	value, ok := t.backend.Drop(handle)
	if !ok {
		return nil, false
	}

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		Kind:   kind,
		Value:  value,
	})

	return value, true
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

// Clear drops all resources.
func (t *UnifiedTable) Clear() {
	// Collect handles first to avoid holding lock during Remove
	var handles []Handle
	t.backend.Each(func(h Handle, _ Kind, _ any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Close releases all resources and stops accepting operations.
func (t *UnifiedTable) Close() error {
	t.closeMu.Lock()
	t.closed = true
	t.closeMu.Unlock()

	return t.backend.Close()
}

func (t *UnifiedTable) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}

// Typed provides type-safe access to the resources of one kind.
type Typed[T any] struct {
	table *UnifiedTable
	kind  Kind
}

// NewTyped returns a view over table restricted to kind.
func NewTyped[T any](table *UnifiedTable, kind Kind) Typed[T] {
	return Typed[T]{table: table, kind: kind}
}

// Insert adds a value and returns its handle.
func (t Typed[T]) Insert(value T) Handle {
	return t.table.Insert(t.kind, value)
}

// Get retrieves a value by handle.
func (t Typed[T]) Get(handle Handle) (T, bool) {
	var zero T
	v, ok := t.table.GetTyped(handle, t.kind)
	if !ok {
		return zero, false
	}
	out, ok := v.(T)
	return out, ok
}

// Borrow pins a handle and returns its value.
func (t Typed[T]) Borrow(handle Handle) (T, bool) {
	var zero T
	v, ok := t.table.Borrow(handle, t.kind)
	if !ok {
		return zero, false
	}
	out, ok := v.(T)
	if !ok {
		t.table.ReturnBorrow(handle)
		return zero, false
	}
	return out, true
}

// ReturnBorrow releases a pin taken by Borrow.
func (t Typed[T]) ReturnBorrow(handle Handle) {
	t.table.ReturnBorrow(handle)
}

// Remove drops a resource of this kind and returns (value, true) if found.
func (t Typed[T]) Remove(handle Handle) (T, bool) {
	var zero T
	if kind, ok := t.table.KindOf(handle); !ok || kind != t.kind {
		return zero, false
	}
	v, ok := t.table.Remove(handle)
	if !ok {
		return zero, false
	}
	out, ok := v.(T)
	return out, ok
}

// Each iterates over all live resources of this kind.
func (t Typed[T]) Each(fn func(Handle, T) bool) {
	t.table.backend.Each(func(h Handle, kind Kind, v any) bool {
		if kind != t.kind {
			return true
		}
		out, ok := v.(T)
		if !ok {
			return true
		}
		return fn(h, out)
	})
}
