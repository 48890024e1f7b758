package opcuabridge

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/wippyai/opcua-bridge/errors"
)

// Bytes is an in-process Buffer.
type Bytes struct {
	data []byte
	mu   sync.Mutex
}

func (b *Bytes) Resize(n int) error {
	if n < 0 {
		return fmt.Errorf("resize to negative length %d", n)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cap(b.data) >= n {
		b.data = b.data[:n]
		return nil
	}
	grown := make([]byte, n)
	copy(grown, b.data)
	b.data = grown
	return nil
}

func (b *Bytes) Copy(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(data) > len(b.data) {
		return fmt.Errorf("copy of %d bytes into buffer of %d", len(data), len(b.data))
	}
	copy(b.data, data)
	return nil
}

// Len returns the current length.
func (b *Bytes) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// String returns the buffer contents.
func (b *Bytes) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

// Records is an in-process RecordArray.
type Records struct {
	items []Record
	mu    sync.Mutex
	// Resized is set once Resize has been called.
	Resized bool
}

func (r *Records) Resize(n int) error {
	if n < 0 {
		return fmt.Errorf("resize to negative length %d", n)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Resized = true
	if cap(r.items) >= n {
		r.items = r.items[:n]
		clear(r.items)
		return nil
	}
	r.items = make([]Record, n)
	return nil
}

func (r *Records) Set(i int, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.items) {
		return fmt.Errorf("record index %d out of range [0,%d)", i, len(r.items))
	}
	r.items[i] = rec
	return nil
}

// Items returns a copy of the records.
func (r *Records) Items() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.items))
	copy(out, r.items)
	return out
}

// Len returns the current record count.
func (r *Records) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// ErrBufferFailed reports a host buffer that refused a resize or copy.
var ErrBufferFailed = errors.Sentinel(errors.PhaseHost, errors.KindBuffer, errors.StatusBufferFailed, "host buffer operation failed")

// WriteString resizes buf to len(s) and copies s into it.
func WriteString(buf Buffer, s string) error {
	if buf == nil {
		return errors.NilPointer(errors.PhaseHost, "write string", "buffer")
	}
	if !utf8.ValidString(s) {
		return errors.InvalidUTF8(errors.PhaseHost, "write string", []byte(s))
	}
	if err := buf.Resize(len(s)); err != nil {
		return fmt.Errorf("%w: resize to %d: %w", ErrBufferFailed, len(s), err)
	}
	if len(s) == 0 {
		return nil
	}
	if err := buf.Copy([]byte(s)); err != nil {
		return fmt.Errorf("%w: copy: %w", ErrBufferFailed, err)
	}
	return nil
}

// WriteRecords resizes arr to len(recs) and stores every record.
func WriteRecords(arr RecordArray, recs []Record) error {
	if arr == nil {
		return errors.NilPointer(errors.PhaseHost, "write records", "record array")
	}
	if err := arr.Resize(len(recs)); err != nil {
		return fmt.Errorf("%w: resize to %d: %w", ErrBufferFailed, len(recs), err)
	}
	for i, r := range recs {
		if err := arr.Set(i, r); err != nil {
			return fmt.Errorf("%w: set %d: %w", ErrBufferFailed, i, err)
		}
	}
	return nil
}
