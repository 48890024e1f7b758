package wasmhost

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	opcuabridge "github.com/wippyai/opcua-bridge"
)

// WrapMemory wraps a wazero api.Memory to implement opcuabridge.Memory.
func WrapMemory(mem api.Memory) opcuabridge.Memory {
	if mem == nil {
		return nil
	}
	return &Wrapper{Mem: mem}
}

// WrapAllocator wraps the guest's cabi_realloc export to implement
// opcuabridge.Allocator.
func WrapAllocator(ctx context.Context, fn api.Function) opcuabridge.Allocator {
	if fn == nil {
		return nil
	}
	return &AllocatorWrapper{Ctx: ctx, Fn: fn}
}

// Wrapper adapts wazero api.Memory to opcuabridge.Memory.
type Wrapper struct {
	Mem api.Memory
}

// Read reads bytes from memory. The returned slice aliases guest memory.
func (m *Wrapper) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("memory read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

// Write writes bytes to memory.
func (m *Wrapper) Write(offset uint32, data []byte) error {
	if !m.Mem.Write(offset, data) {
		return fmt.Errorf("memory write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (m *Wrapper) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.Mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (m *Wrapper) WriteU32(offset uint32, value uint32) error {
	if !m.Mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// AllocatorWrapper adapts a cabi_realloc api.Function to opcuabridge.Allocator.
type AllocatorWrapper struct {
	Ctx context.Context
	Fn  api.Function
}

// Alloc allocates memory using cabi_realloc.
func (a *AllocatorWrapper) Alloc(size, align uint32) (uint32, error) {
	return a.Realloc(0, 0, align, size)
}

// Realloc grows or shrinks a block using cabi_realloc.
func (a *AllocatorWrapper) Realloc(ptr, oldSize, align, newSize uint32) (uint32, error) {
	results, err := a.Fn.Call(a.Ctx, uint64(ptr), uint64(oldSize), uint64(align), uint64(newSize))
	if err != nil {
		return 0, fmt.Errorf("allocation failed: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("allocation returned no result")
	}
	return uint32(results[0]), nil
}
