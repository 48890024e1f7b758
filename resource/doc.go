// Package resource provides the opaque handle table that guards every object
// crossing the host boundary.
//
// Hosts never see Go pointers. Each engine, client, session, event loop,
// server and node id lives in a table entry and the host holds a Handle: a
// uint32 encoding the slot index and a generation counter.
//
// # Handle Lifecycle
//
//	table := resource.NewTable()
//
//	// Creation transfers exclusive ownership of the handle to the caller
//	h := table.Insert(resource.KindSession, session)
//
//	// Typed lookup fails for stale handles and for handles of another kind
//	v, ok := table.GetTyped(h, resource.KindSession)
//
//	// Destruction removes the entry; the handle is dead from now on
//	v, ok = table.Remove(h)
//
// A removed handle fails every later lookup. Freed slots are reused, but the
// generation stored in the handle is bumped, so a stale handle does not
// alias the object that now occupies its slot until the 8-bit generation
// wraps.
//
// # Borrows
//
// Operations that use a handle for the duration of a blocking call borrow it.
// Remove refuses to drop an entry with outstanding borrows, so a concurrent
// destroy cannot free a session while a read is still using it.
//
// # Observers
//
// Register observers to track resource lifecycle events:
//
//	table.Subscribe(observer) // EventCreated, EventDropped
//
// The bridge uses this to export live handle counts as metrics.
//
// # Memory Management
//
// Entries are not garbage collected. Values implementing Dropper are dropped
// on Remove and on table Close.
package resource
