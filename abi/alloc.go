package abi

import (
	"context"
	"fmt"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/errors"
)

// Allocator reserves guest memory for lowered values.
type Allocator interface {
	Alloc(ctx context.Context, size, align uint32) (uint32, error)
}

// ReallocAllocator allocates through the guest's cabi_realloc export:
// realloc(old_ptr, old_size, align, new_size) -> ptr.
type ReallocAllocator struct {
	fn wasmhost.Function
}

func NewReallocAllocator(fn wasmhost.Function) *ReallocAllocator {
	return &ReallocAllocator{fn: fn}
}

func (a *ReallocAllocator) Alloc(ctx context.Context, size, align uint32) (uint32, error) {
	res, err := a.fn.Call(ctx, 0, 0, uint64(align), uint64(size))
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseLower, size, align, err)
	}
	if len(res) != 1 {
		return 0, errors.AllocationFailed(errors.PhaseLower, size, align,
			fmt.Errorf("realloc returned %d values", len(res)))
	}
	ptr := uint32(res[0])
	if align > 0 && ptr%align != 0 {
		return 0, errors.AllocationFailed(errors.PhaseLower, size, align,
			fmt.Errorf("realloc returned misaligned pointer %#x", ptr))
	}
	return ptr, nil
}

// BumpAllocator hands out space from a fixed scratch region [base, limit)
// of guest memory. Reset makes the region reusable.
type BumpAllocator struct {
	base  uint32
	limit uint32
	next  uint32
}

func NewBumpAllocator(base, limit uint32) *BumpAllocator {
	return &BumpAllocator{base: base, limit: limit, next: base}
}

func (a *BumpAllocator) Alloc(_ context.Context, size, align uint32) (uint32, error) {
	ptr := alignTo(a.next, align)
	end, ok := safeAdd(ptr, size)
	if !ok || ptr < a.next || end > a.limit {
		return 0, errors.AllocationFailed(errors.PhaseLower, size, align,
			fmt.Errorf("scratch region [%d, %d) exhausted", a.base, a.limit))
	}
	a.next = end
	return ptr, nil
}

// Used returns the number of bytes handed out since the last Reset.
func (a *BumpAllocator) Used() uint32 {
	return a.next - a.base
}

func (a *BumpAllocator) Reset() {
	a.next = a.base
}

var (
	_ Allocator = (*ReallocAllocator)(nil)
	_ Allocator = (*BumpAllocator)(nil)
)
