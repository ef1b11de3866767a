package abi

import (
	"math"

	"github.com/tetratelabs/wazero/api"
)

const (
	// MaxFlatParams is the most core values params may flatten to before
	// they are passed through memory.
	MaxFlatParams = 16
	// MaxFlatResults is the canonical limit for direct results.
	MaxFlatResults = 1

	MaxStringSize = 1 << 30
	MaxListLength = 1 << 27
)

func alignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

func discriminantSize(cases int) uint32 {
	switch {
	case cases <= 1<<8:
		return 1
	case cases <= 1<<16:
		return 2
	default:
		return 4
	}
}

func safeMul(a, b uint32) (uint32, bool) {
	if b != 0 && a > math.MaxUint32/b {
		return 0, false
	}
	return a * b, true
}

func safeAdd(a, b uint32) (uint32, bool) {
	if a > math.MaxUint32-b {
		return 0, false
	}
	return a + b, true
}

// joinFlat merges a case's flat types into the shared variant payload slots.
func joinFlat(acc, next []api.ValueType) []api.ValueType {
	for i, vt := range next {
		if i < len(acc) {
			acc[i] = join(acc[i], vt)
		} else {
			acc = append(acc, vt)
		}
	}
	return acc
}

func join(a, b api.ValueType) api.ValueType {
	if a == b {
		return a
	}
	if (a == api.ValueTypeI32 && b == api.ValueTypeF32) || (a == api.ValueTypeF32 && b == api.ValueTypeI32) {
		return api.ValueTypeI32
	}
	return api.ValueTypeI64
}
