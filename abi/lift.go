package abi

import (
	stderrors "errors"
	"math"
	"unicode/utf8"

	"github.com/wippyai/wasm-host/errors"
)

// Reader is the read side of a memory view. *memory.View implements it.
type Reader interface {
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	ReadBytes(offset, length uint32) ([]byte, error)
}

// LiftResult decodes a call's raw result words under the declared convention.
// A nil t means the function returns nothing.
func LiftResult(t *Type, conv Convention, raw []uint64, r Reader) (any, error) {
	if t == nil {
		return nil, nil
	}
	switch conv {
	case Direct:
		return LiftFlat(t, raw, r)
	case Indirect:
		if len(raw) != 1 {
			return nil, errors.New(errors.PhaseLift, errors.KindTypeMismatch).
				ABIType(t.String()).
				Detail("indirect return expects 1 pointer word, got %d", len(raw)).
				Build()
		}
		ptr := uint32(raw[0])
		if ptr%t.align != 0 {
			return nil, errors.InvalidData(errors.PhaseLift, nil, "misaligned return pointer")
		}
		return Load(t, r, ptr)
	default:
		return nil, errors.Unsupported(errors.PhaseLift, "calling convention "+conv.String())
	}
}

// LiftFlat decodes a value from its flattened core values.
func LiftFlat(t *Type, flat []uint64, r Reader) (any, error) {
	if len(flat) < len(t.flat) {
		return nil, errors.New(errors.PhaseLift, errors.KindTypeMismatch).
			ABIType(t.String()).
			Detail("expected %d flat values, got %d", len(t.flat), len(flat)).
			Build()
	}
	v, _, err := liftFlat(t, flat, r, nil)
	return v, err
}

// liftFlat returns the value and the number of flat words consumed.
func liftFlat(t *Type, flat []uint64, r Reader, path []string) (any, int, error) {
	switch t.kind {
	case KindString:
		s, err := loadString(r, uint32(flat[0]), uint32(flat[1]), path)
		return s, 2, err
	case KindList:
		l, err := loadList(t, r, uint32(flat[0]), uint32(flat[1]), path)
		return l, 2, err
	case KindRecord:
		out := make(map[string]any, len(t.fields))
		pos := 0
		for _, f := range t.fields {
			v, n, err := liftFlat(f.Type, flat[pos:], r, append(path, f.Name))
			if err != nil {
				return nil, 0, err
			}
			out[f.Name] = v
			pos += n
		}
		return out, pos, nil
	case KindVariant:
		disc := uint32(flat[0])
		if int(disc) >= len(t.cases) {
			return nil, 0, errors.InvalidDiscriminant(errors.PhaseLift, path, disc, len(t.cases))
		}
		c := t.cases[disc]
		vv := VariantValue{Case: c.Name, Index: disc}
		if c.Type != nil {
			v, _, err := liftFlat(c.Type, flat[1:], r, append(path, c.Name))
			if err != nil {
				return nil, 0, err
			}
			vv.Value = v
		}
		return vv, len(t.flat), nil
	default:
		v, err := liftScalar(t.kind, flat[0], path)
		return v, 1, err
	}
}

// liftScalar converts one core value word. Words carry raw bit patterns, so
// variant payload coercion reduces to truncation to the scalar's width.
func liftScalar(k Kind, w uint64, path []string) (any, error) {
	switch k {
	case KindBool:
		return uint32(w) != 0, nil
	case KindU8:
		return uint8(w), nil
	case KindS8:
		return int8(w), nil
	case KindU16:
		return uint16(w), nil
	case KindS16:
		return int16(w), nil
	case KindU32:
		return uint32(w), nil
	case KindS32:
		return int32(uint32(w)), nil
	case KindU64:
		return w, nil
	case KindS64:
		return int64(w), nil
	case KindF32:
		return math.Float32frombits(uint32(w)), nil
	case KindF64:
		return math.Float64frombits(w), nil
	case KindChar:
		r := rune(uint32(w))
		if !validChar(uint32(w)) {
			return nil, errors.New(errors.PhaseLift, errors.KindInvalidData).
				Path(path...).
				Value(uint32(w)).
				Detail("invalid char code point %#x", uint32(w)).
				Build()
		}
		return r, nil
	default:
		return nil, errors.Unsupported(errors.PhaseLift, "scalar lift of "+k.String())
	}
}

// Load decodes a value stored at offset.
func Load(t *Type, r Reader, offset uint32) (any, error) {
	return load(t, r, offset, nil)
}

func load(t *Type, r Reader, offset uint32, path []string) (any, error) {
	switch t.kind {
	case KindBool:
		b, err := r.ReadU8(offset)
		return b != 0, liftErr(err, path)
	case KindU8:
		b, err := r.ReadU8(offset)
		return b, liftErr(err, path)
	case KindS8:
		b, err := r.ReadU8(offset)
		return int8(b), liftErr(err, path)
	case KindU16:
		v, err := r.ReadU16(offset)
		return v, liftErr(err, path)
	case KindS16:
		v, err := r.ReadU16(offset)
		return int16(v), liftErr(err, path)
	case KindU32, KindS32, KindF32, KindChar:
		v, err := r.ReadU32(offset)
		if err != nil {
			return nil, liftErr(err, path)
		}
		return liftScalar(t.kind, uint64(v), path)
	case KindU64, KindS64, KindF64:
		v, err := r.ReadU64(offset)
		if err != nil {
			return nil, liftErr(err, path)
		}
		return liftScalar(t.kind, v, path)
	case KindString, KindList:
		ptr, err := r.ReadU32(offset)
		if err != nil {
			return nil, liftErr(err, path)
		}
		lenAt, err := fieldOffset(offset, 4, path)
		if err != nil {
			return nil, err
		}
		n, err := r.ReadU32(lenAt)
		if err != nil {
			return nil, liftErr(err, path)
		}
		if t.kind == KindString {
			return loadString(r, ptr, n, path)
		}
		return loadList(t, r, ptr, n, path)
	case KindRecord:
		out := make(map[string]any, len(t.fields))
		for _, f := range t.fields {
			at, err := fieldOffset(offset, f.Offset, path)
			if err != nil {
				return nil, err
			}
			v, err := load(f.Type, r, at, append(path, f.Name))
			if err != nil {
				return nil, err
			}
			out[f.Name] = v
		}
		return out, nil
	case KindVariant:
		disc, err := loadDiscriminant(t, r, offset)
		if err != nil {
			return nil, liftErr(err, path)
		}
		if int(disc) >= len(t.cases) {
			return nil, errors.InvalidDiscriminant(errors.PhaseLift, path, disc, len(t.cases))
		}
		c := t.cases[disc]
		vv := VariantValue{Case: c.Name, Index: disc}
		if c.Type != nil {
			at, err := fieldOffset(offset, t.payloadOffset, path)
			if err != nil {
				return nil, err
			}
			v, err := load(c.Type, r, at, append(path, c.Name))
			if err != nil {
				return nil, err
			}
			vv.Value = v
		}
		return vv, nil
	default:
		return nil, errors.Unsupported(errors.PhaseLift, "load of "+t.kind.String())
	}
}

// fieldOffset adds delta to base, faulting instead of wrapping past 4 GiB.
func fieldOffset(base, delta uint32, path []string) (uint32, error) {
	at, ok := safeAdd(base, delta)
	if !ok {
		return 0, errors.MemoryFault(errors.PhaseLift, path, uint64(base), uint64(delta), 0)
	}
	return at, nil
}

func loadDiscriminant(t *Type, r Reader, offset uint32) (uint32, error) {
	switch t.discSize {
	case 1:
		v, err := r.ReadU8(offset)
		return uint32(v), err
	case 2:
		v, err := r.ReadU16(offset)
		return uint32(v), err
	default:
		return r.ReadU32(offset)
	}
}

// loadString copies [ptr, ptr+n) out of guest memory. A zero length never
// touches memory, whatever ptr holds. Out-of-range bytes fault before any
// limit applies.
func loadString(r Reader, ptr, n uint32, path []string) (string, error) {
	if n == 0 {
		return "", nil
	}
	data, err := r.ReadBytes(ptr, n)
	if err != nil {
		return "", liftErr(err, path)
	}
	if n > MaxStringSize {
		return "", errors.InvalidData(errors.PhaseLift, path, "string length exceeds limit")
	}
	if !utf8.Valid(data) {
		return "", errors.InvalidUTF8(errors.PhaseLift, path, data)
	}
	return string(data), nil
}

func loadList(t *Type, r Reader, ptr, n uint32, path []string) (any, error) {
	elem := t.elem
	if n == 0 {
		if elem.kind == KindU8 {
			return []byte{}, nil
		}
		return []any{}, nil
	}
	total, ok := safeMul(n, elem.size)
	if !ok {
		return nil, errors.MemoryFault(errors.PhaseLift, path, uint64(ptr), uint64(n)*uint64(elem.size), 0)
	}
	// The whole range is bounds-checked before the limit and alignment.
	data, err := r.ReadBytes(ptr, total)
	if err != nil {
		return nil, liftErr(err, path)
	}
	if n > MaxListLength {
		return nil, errors.InvalidData(errors.PhaseLift, path, "list length exceeds limit")
	}
	if ptr%elem.align != 0 {
		return nil, errors.InvalidData(errors.PhaseLift, path, "misaligned list pointer")
	}

	if elem.kind == KindU8 {
		return append([]byte(nil), data...), nil
	}

	out := make([]any, n)
	for i := uint32(0); i < n; i++ {
		v, err := load(elem, r, ptr+i*elem.size, path)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// liftErr re-attributes raw memory errors to the lift phase and path.
func liftErr(err error, path []string) error {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if stderrors.As(err, &e) && e.Phase == errors.PhaseMemory {
		e.Phase = errors.PhaseLift
		if len(e.Path) == 0 && len(path) > 0 {
			e.Path = append([]string(nil), path...)
		}
	}
	return err
}

func validChar(c uint32) bool {
	return c < 0xD800 || (c > 0xDFFF && c < 0x110000)
}
