package opcuabridge

import "time"

// Buffer is a host-owned byte buffer.
type Buffer interface {
	// Resize sets the buffer length to n bytes.
	Resize(n int) error
	// Copy writes data at offset 0. The buffer must already hold len(data) bytes.
	Copy(data []byte) error
}

// Record is one browse result as the host receives it.
type Record struct {
	DisplayName string
	NodeID      string
	Class       uint32
}

// RecordArray is a host-owned array of browse records.
type RecordArray interface {
	// Resize sets the array length to n records.
	Resize(n int) error
	// Set stores r at index i.
	Set(i int, r Record) error
}

// Event is a data change delivered to the host.
type Event struct {
	SourceTime     time.Time
	Value          any
	NodeID         string
	SubscriptionID uint32
	ClientHandle   uint32
	Status         uint32
}

// EventSink receives subscription notifications on the event loop goroutine.
type EventSink interface {
	Post(Event) error
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(Event) error

func (f EventSinkFunc) Post(e Event) error { return f(e) }

// Memory represents guest linear memory
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
}

// Allocator allocates memory in guest linear memory
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Realloc(ptr, oldSize, align, newSize uint32) (uint32, error)
}
