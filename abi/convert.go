package abi

import (
	"math"
	"reflect"

	"github.com/wippyai/wasm-host/errors"
)

const (
	canonicalNaN32 = 0x7fc00000
	canonicalNaN64 = 0x7ff8000000000000
)

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

func mismatch(path []string, v any, t *Type) error {
	return errors.TypeMismatch(errors.PhaseLower, path, typeName(v), t.String())
}

// toUint accepts any Go integer that fits in bits unsigned bits.
func toUint(v any, bits int, t *Type, path []string) (uint64, error) {
	var u uint64
	switch n := v.(type) {
	case uint8:
		u = uint64(n)
	case uint16:
		u = uint64(n)
	case uint32:
		u = uint64(n)
	case uint64:
		u = n
	case uint:
		u = uint64(n)
	case int, int8, int16, int32, int64:
		i := reflect.ValueOf(n).Int()
		if i < 0 {
			return 0, errors.Overflow(errors.PhaseLower, path, v, t.String())
		}
		u = uint64(i)
	default:
		return 0, mismatch(path, v, t)
	}
	if bits < 64 && u >= 1<<bits {
		return 0, errors.Overflow(errors.PhaseLower, path, v, t.String())
	}
	return u, nil
}

// toInt accepts any Go integer that fits in bits signed bits.
func toInt(v any, bits int, t *Type, path []string) (int64, error) {
	var i int64
	switch n := v.(type) {
	case int8:
		i = int64(n)
	case int16:
		i = int64(n)
	case int32:
		i = int64(n)
	case int64:
		i = n
	case int:
		i = int64(n)
	case uint, uint8, uint16, uint32, uint64:
		u := reflect.ValueOf(n).Uint()
		if u > math.MaxInt64 {
			return 0, errors.Overflow(errors.PhaseLower, path, v, t.String())
		}
		i = int64(u)
	default:
		return 0, mismatch(path, v, t)
	}
	if bits < 64 {
		lim := int64(1) << (bits - 1)
		if i < -lim || i >= lim {
			return 0, errors.Overflow(errors.PhaseLower, path, v, t.String())
		}
	}
	return i, nil
}

func toFloat(v any, t *Type, path []string) (float64, error) {
	switch f := v.(type) {
	case float32:
		return float64(f), nil
	case float64:
		return f, nil
	default:
		return 0, mismatch(path, v, t)
	}
}

func f32Bits(f float64) uint32 {
	if math.IsNaN(f) {
		return canonicalNaN32
	}
	return math.Float32bits(float32(f))
}

func f64Bits(f float64) uint64 {
	if math.IsNaN(f) {
		return canonicalNaN64
	}
	return math.Float64bits(f)
}

func toChar(v any, t *Type, path []string) (uint32, error) {
	var c uint32
	switch r := v.(type) {
	case rune:
		c = uint32(r)
	case string:
		rs := []rune(r)
		if len(rs) != 1 {
			return 0, mismatch(path, v, t)
		}
		c = uint32(rs[0])
	default:
		return 0, mismatch(path, v, t)
	}
	if !validChar(c) {
		return 0, errors.New(errors.PhaseLower, errors.KindInvalidData).
			Path(path...).
			Value(c).
			Detail("invalid char code point %#x", c).
			Build()
	}
	return c, nil
}

// scalarWord converts a scalar host value to its flat core value.
func scalarWord(t *Type, v any, path []string) (uint64, error) {
	switch t.kind {
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return 0, mismatch(path, v, t)
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case KindU8:
		return toUint(v, 8, t, path)
	case KindU16:
		return toUint(v, 16, t, path)
	case KindU32:
		return toUint(v, 32, t, path)
	case KindU64:
		return toUint(v, 64, t, path)
	case KindS8, KindS16, KindS32:
		i, err := toInt(v, int(t.size)*8, t, path)
		return uint64(uint32(int32(i))), err
	case KindS64:
		i, err := toInt(v, 64, t, path)
		return uint64(i), err
	case KindF32:
		f, err := toFloat(v, t, path)
		return uint64(f32Bits(f)), err
	case KindF64:
		f, err := toFloat(v, t, path)
		return f64Bits(f), err
	case KindChar:
		c, err := toChar(v, t, path)
		return uint64(c), err
	default:
		return 0, errors.Unsupported(errors.PhaseLower, "scalar lower of "+t.kind.String())
	}
}

// listElems normalizes a host list value to a slice of elements.
func listElems(t *Type, v any, path []string) ([]any, error) {
	switch l := v.(type) {
	case []any:
		return l, nil
	case nil:
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, mismatch(path, v, t)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// variantCase resolves the case index and payload of a host variant value.
func variantCase(t *Type, v any, path []string) (uint32, any, error) {
	switch vv := v.(type) {
	case VariantValue:
		idx := int(vv.Index)
		if vv.Case != "" {
			idx = t.CaseIndex(vv.Case)
		}
		if idx < 0 || idx >= len(t.cases) {
			return 0, nil, errors.New(errors.PhaseLower, errors.KindInvalidVariant).
				Path(path...).
				ABIType(t.String()).
				Detail("unknown case %q (index %d)", vv.Case, vv.Index).
				Build()
		}
		return uint32(idx), vv.Value, nil
	case *VariantValue:
		if vv == nil {
			return variantCase(t, nil, path)
		}
		return variantCase(t, *vv, path)
	case string:
		if idx := t.CaseIndex(vv); idx >= 0 && t.cases[idx].Type == nil {
			return uint32(idx), nil, nil
		}
	case nil:
		if idx := t.CaseIndex("none"); idx >= 0 {
			return uint32(idx), nil, nil
		}
	}
	return 0, nil, mismatch(path, v, t)
}
