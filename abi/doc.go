// Package abi implements the canonical ABI lift and lower operations.
//
// A Type describes the shape of one value. Layout (size, alignment, field
// offsets, discriminant width, payload offset) and the flattened core value
// types are computed once when the Type is built and never change:
//
//	Type            Size    Alignment
//	──────────────────────────────────
//	bool            1       1
//	u8/s8           1       1
//	u16/s16         2       2
//	u32/s32/f32     4       4
//	u64/s64/f64     8       8
//	char            4       4
//	string          8       4 (ptr + len)
//	list<T>         8       4 (ptr + len)
//	record          sum     max field align
//	variant         disc + max case, aligned to max(disc, case align)
//
// # Lifting
//
// Results arrive either as flat core values (Direct) or as a single pointer
// into memory where the guest stored the value (Indirect):
//
//	v, err := abi.LiftResult(abi.String(), abi.Direct, []uint64{1024, 5}, view)
//
// Lifted values never alias guest memory.
//
// # Lowering
//
// A Lowerer writes Go values into guest memory through an Allocator,
// revalidating its memory view after each allocation:
//
//	l := abi.NewLowerer(ctx, binding, abi.NewReallocAllocator(realloc))
//	flat, err := l.LowerParams([]*abi.Type{abi.String()}, []any{"World"})
//
// # Host values
//
//	bool, uint8..uint64, int8..int64, float32, float64, rune (char), string,
//	[]byte (list<u8>), []any (other lists), map[string]any (record),
//	VariantValue (variant, enum, option, result)
package abi
