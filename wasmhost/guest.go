package wasmhost

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"

	opcuabridge "github.com/wippyai/opcua-bridge"
	"github.com/wippyai/opcua-bridge/errors"
)

// ReallocExport is the guest export used to grow host-filled buffers.
const ReallocExport = "cabi_realloc"

var (
	ErrNoMemory    = errors.Sentinel(errors.PhaseHost, errors.KindBuffer, errors.StatusBufferFailed, "guest exports no memory")
	ErrNoAllocator = errors.Sentinel(errors.PhaseHost, errors.KindBuffer, errors.StatusBufferFailed, "guest exports no "+ReallocExport)
	ErrGuestMemory = errors.Sentinel(errors.PhaseHost, errors.KindBuffer, errors.StatusBufferFailed, "guest memory access failed")
)

// Guest is the calling module's memory and allocator.
type Guest struct {
	Mem   opcuabridge.Memory
	Alloc opcuabridge.Allocator
}

// NewGuest binds the memory and cabi_realloc export of mod.
func NewGuest(ctx context.Context, mod api.Module) *Guest {
	return &Guest{
		Mem:   WrapMemory(mod.Memory()),
		Alloc: WrapAllocator(ctx, mod.ExportedFunction(ReallocExport)),
	}
}

// String copies a UTF-8 string out of guest memory.
func (g *Guest) String(op string, ptr, n uint32) (string, error) {
	if n == 0 {
		return "", nil
	}
	if g.Mem == nil {
		return "", ErrNoMemory
	}
	data, err := g.Mem.Read(ptr, n)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrGuestMemory, op, err)
	}
	if !utf8.Valid(data) {
		return "", errors.InvalidUTF8(errors.PhaseHost, op, data)
	}
	return string(data), nil
}

// PutU32 stores v at ptr.
func (g *Guest) PutU32(ptr, v uint32) error {
	if g.Mem == nil {
		return ErrNoMemory
	}
	if err := g.Mem.WriteU32(ptr, v); err != nil {
		return fmt.Errorf("%w: %w", ErrGuestMemory, err)
	}
	return nil
}

// Put stores raw bytes at ptr.
func (g *Guest) Put(ptr uint32, data []byte) error {
	if g.Mem == nil {
		return ErrNoMemory
	}
	if err := g.Mem.Write(ptr, data); err != nil {
		return fmt.Errorf("%w: %w", ErrGuestMemory, err)
	}
	return nil
}

// slot is a {ptr, len} pair in guest memory.
type slot struct {
	g    *Guest
	addr uint32
}

func (s slot) load() (ptr, n uint32, err error) {
	if s.g.Mem == nil {
		return 0, 0, ErrNoMemory
	}
	if ptr, err = s.g.Mem.ReadU32(s.addr); err != nil {
		return 0, 0, err
	}
	n, err = s.g.Mem.ReadU32(s.addr + 4)
	return ptr, n, err
}

func (s slot) store(ptr, n uint32) error {
	if err := s.g.PutU32(s.addr, ptr); err != nil {
		return err
	}
	return s.g.PutU32(s.addr+4, n)
}

// grow reallocates the slot's block to size bytes and records n as its
// element count.
func (s slot) grow(n, size, elem, align uint32) (uint32, error) {
	ptr, old, err := s.load()
	if err != nil {
		return 0, err
	}
	if s.g.Alloc == nil {
		return 0, ErrNoAllocator
	}
	if size > 0 {
		ptr, err = s.g.Alloc.Realloc(ptr, old*elem, align, size)
		if err != nil {
			return 0, err
		}
	}
	return ptr, s.store(ptr, n)
}

// Buffer is a guest {ptr, len} byte slot at a fixed address. Resize
// reallocates through cabi_realloc and updates both words.
type Buffer struct {
	slot
}

// NewBuffer returns the byte buffer described by the slot at addr.
func NewBuffer(g *Guest, addr uint32) *Buffer {
	return &Buffer{slot{g: g, addr: addr}}
}

func (b *Buffer) Resize(n int) error {
	if n < 0 {
		return fmt.Errorf("resize to negative length %d", n)
	}
	_, err := b.grow(uint32(n), uint32(n), 1, 1)
	return err
}

func (b *Buffer) Copy(data []byte) error {
	ptr, n, err := b.load()
	if err != nil {
		return err
	}
	if uint32(len(data)) > n {
		return fmt.Errorf("copy of %d bytes into buffer of %d", len(data), n)
	}
	return b.g.Put(ptr, data)
}

// Bytes returns the current contents.
func (b *Buffer) Bytes() ([]byte, error) {
	ptr, n, err := b.load()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return b.g.Mem.Read(ptr, n)
}

// RecordSize is the guest layout of one browse record:
//
//	0  class        u32
//	4  display ptr  u32
//	8  display len  u32
//	12 node id ptr  u32
//	16 node id len  u32
const RecordSize = 20

// Records is a guest {ptr, len} slot holding an array of browse records.
type Records struct {
	slot
}

// NewRecords returns the record array described by the slot at addr.
func NewRecords(g *Guest, addr uint32) *Records {
	return &Records{slot{g: g, addr: addr}}
}

func (r *Records) Resize(n int) error {
	if n < 0 {
		return fmt.Errorf("resize to negative length %d", n)
	}
	_, err := r.grow(uint32(n), uint32(n)*RecordSize, RecordSize, 4)
	return err
}

func (r *Records) Set(i int, rec opcuabridge.Record) error {
	base, n, err := r.load()
	if err != nil {
		return err
	}
	if i < 0 || uint32(i) >= n {
		return fmt.Errorf("record index %d out of range [0,%d)", i, n)
	}
	at := base + uint32(i)*RecordSize

	display, err := r.g.alloc(rec.DisplayName)
	if err != nil {
		return err
	}
	node, err := r.g.alloc(rec.NodeID)
	if err != nil {
		return err
	}
	for off, v := range []uint32{rec.Class, display, uint32(len(rec.DisplayName)), node, uint32(len(rec.NodeID))} {
		if err := r.g.PutU32(at+uint32(off)*4, v); err != nil {
			return err
		}
	}
	return nil
}

// Record reads back the record at index i.
func (r *Records) Record(i int) (opcuabridge.Record, error) {
	base, n, err := r.load()
	if err != nil {
		return opcuabridge.Record{}, err
	}
	if i < 0 || uint32(i) >= n {
		return opcuabridge.Record{}, fmt.Errorf("record index %d out of range [0,%d)", i, n)
	}
	at := base + uint32(i)*RecordSize

	var words [5]uint32
	for k := range words {
		if words[k], err = r.g.Mem.ReadU32(at + uint32(k)*4); err != nil {
			return opcuabridge.Record{}, err
		}
	}
	display, err := r.g.String("record", words[1], words[2])
	if err != nil {
		return opcuabridge.Record{}, err
	}
	node, err := r.g.String("record", words[3], words[4])
	if err != nil {
		return opcuabridge.Record{}, err
	}
	return opcuabridge.Record{Class: words[0], DisplayName: display, NodeID: node}, nil
}

// alloc copies s into a fresh guest block.
func (g *Guest) alloc(s string) (uint32, error) {
	if len(s) == 0 {
		return 0, nil
	}
	if g.Alloc == nil {
		return 0, ErrNoAllocator
	}
	ptr, err := g.Alloc.Alloc(uint32(len(s)), 1)
	if err != nil {
		return 0, err
	}
	return ptr, g.Put(ptr, []byte(s))
}
