package abi

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"
)

// Kind is the shape of a Type.
type Kind uint8

const (
	KindBool Kind = iota
	KindU8
	KindS8
	KindU16
	KindS16
	KindU32
	KindS32
	KindU64
	KindS64
	KindF32
	KindF64
	KindChar
	KindString
	KindList
	KindRecord
	KindVariant
)

var kindNames = [...]string{
	KindBool:    "bool",
	KindU8:      "u8",
	KindS8:      "s8",
	KindU16:     "u16",
	KindS16:     "s16",
	KindU32:     "u32",
	KindS32:     "s32",
	KindU64:     "u64",
	KindS64:     "s64",
	KindF32:     "f32",
	KindF64:     "f64",
	KindChar:    "char",
	KindString:  "string",
	KindList:    "list",
	KindRecord:  "record",
	KindVariant: "variant",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Field is one named record field. Offset is filled in by Record.
type Field struct {
	Name   string
	Type   *Type
	Offset uint32
}

// Case is one variant case. A nil Type means the case has no payload.
type Case struct {
	Name string
	Type *Type
}

// Type is an immutable value descriptor. Build Types with the constructors
// in this package; the zero Type is not valid.
type Type struct {
	elem          *Type
	name          string
	fields        []Field
	cases         []Case
	flat          []api.ValueType
	size          uint32
	align         uint32
	discSize      uint32
	payloadOffset uint32
	kind          Kind
}

func (t *Type) Kind() Kind { return t.kind }

// Elem returns the element type of a list.
func (t *Type) Elem() *Type { return t.elem }

// Fields returns record fields in declared order. Do not modify.
func (t *Type) Fields() []Field { return t.fields }

// Cases returns variant cases in discriminant order. Do not modify.
func (t *Type) Cases() []Case { return t.cases }

func (t *Type) Size() uint32  { return t.size }
func (t *Type) Align() uint32 { return t.align }

// DiscriminantSize is the width in bytes of a variant's discriminant.
func (t *Type) DiscriminantSize() uint32 { return t.discSize }

// PayloadOffset is the offset of a variant's payload from its start.
func (t *Type) PayloadOffset() uint32 { return t.payloadOffset }

// Flat returns the core value types the type flattens to. Do not modify.
func (t *Type) Flat() []api.ValueType { return t.flat }

// Name returns the declared name, or "" for anonymous types.
func (t *Type) Name() string { return t.name }

// Named returns a copy of t carrying a display name.
func (t *Type) Named(name string) *Type {
	c := *t
	c.name = name
	return &c
}

// CaseIndex returns the discriminant of the named case, or -1.
func (t *Type) CaseIndex(name string) int {
	for i, c := range t.cases {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	if t.name != "" {
		return t.name
	}
	switch t.kind {
	case KindList:
		return "list<" + t.elem.String() + ">"
	case KindRecord:
		parts := make([]string, len(t.fields))
		for i, f := range t.fields {
			parts[i] = f.Name + ": " + f.Type.String()
		}
		return "record{" + strings.Join(parts, ", ") + "}"
	case KindVariant:
		parts := make([]string, len(t.cases))
		for i, c := range t.cases {
			parts[i] = c.Name
			if c.Type != nil {
				parts[i] += "(" + c.Type.String() + ")"
			}
		}
		return "variant{" + strings.Join(parts, ", ") + "}"
	default:
		return t.kind.String()
	}
}

func scalar(k Kind, size uint32, flat api.ValueType) *Type {
	return &Type{kind: k, size: size, align: size, flat: []api.ValueType{flat}}
}

var (
	boolType   = scalar(KindBool, 1, api.ValueTypeI32)
	u8Type     = scalar(KindU8, 1, api.ValueTypeI32)
	s8Type     = scalar(KindS8, 1, api.ValueTypeI32)
	u16Type    = scalar(KindU16, 2, api.ValueTypeI32)
	s16Type    = scalar(KindS16, 2, api.ValueTypeI32)
	u32Type    = scalar(KindU32, 4, api.ValueTypeI32)
	s32Type    = scalar(KindS32, 4, api.ValueTypeI32)
	u64Type    = scalar(KindU64, 8, api.ValueTypeI64)
	s64Type    = scalar(KindS64, 8, api.ValueTypeI64)
	f32Type    = scalar(KindF32, 4, api.ValueTypeF32)
	f64Type    = scalar(KindF64, 8, api.ValueTypeF64)
	charType   = scalar(KindChar, 4, api.ValueTypeI32)
	stringType = &Type{kind: KindString, size: 8, align: 4, flat: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}}
)

func Bool() *Type   { return boolType }
func U8() *Type     { return u8Type }
func S8() *Type     { return s8Type }
func U16() *Type    { return u16Type }
func S16() *Type    { return s16Type }
func U32() *Type    { return u32Type }
func S32() *Type    { return s32Type }
func U64() *Type    { return u64Type }
func S64() *Type    { return s64Type }
func F32() *Type    { return f32Type }
func F64() *Type    { return f64Type }
func Char() *Type   { return charType }
func String() *Type { return stringType }

// List describes list<elem>.
func List(elem *Type) *Type {
	return &Type{
		kind:  KindList,
		elem:  elem,
		size:  8,
		align: 4,
		flat:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
	}
}

// Record describes a record with fields laid out in the given order.
// The Offset of each given field is ignored and recomputed.
func Record(fields ...Field) *Type {
	t := &Type{kind: KindRecord, fields: make([]Field, len(fields)), align: 1}
	offset := uint32(0)
	for i, f := range fields {
		offset = alignTo(offset, f.Type.align)
		t.fields[i] = Field{Name: f.Name, Type: f.Type, Offset: offset}
		offset += f.Type.size
		t.align = max(t.align, f.Type.align)
		t.flat = append(t.flat, f.Type.flat...)
	}
	t.size = alignTo(offset, t.align)
	return t
}

// Tuple describes tuple<types...> as a record with fields "0", "1", ...
func Tuple(types ...*Type) *Type {
	fields := make([]Field, len(types))
	for i, ft := range types {
		fields[i] = Field{Name: fmt.Sprint(i), Type: ft}
	}
	t := Record(fields...)
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, ft := range types {
			names[i] = ft.String()
		}
		t.name = "tuple<" + strings.Join(names, ", ") + ">"
	}
	return t
}

// Variant describes a variant whose discriminant is the case index.
func Variant(cases ...Case) *Type {
	t := &Type{
		kind:     KindVariant,
		cases:    append([]Case(nil), cases...),
		discSize: discriminantSize(len(cases)),
	}

	maxAlign := t.discSize
	maxSize := uint32(0)
	var payload []api.ValueType
	for _, c := range cases {
		if c.Type == nil {
			continue
		}
		maxAlign = max(maxAlign, c.Type.align)
		maxSize = max(maxSize, c.Type.size)
		payload = joinFlat(payload, c.Type.flat)
	}

	t.align = maxAlign
	t.payloadOffset = alignTo(t.discSize, maxAlign)
	t.size = alignTo(t.payloadOffset+maxSize, maxAlign)
	t.flat = append([]api.ValueType{api.ValueTypeI32}, payload...)
	return t
}

// Enum describes a variant with no payloads.
func Enum(names ...string) *Type {
	cases := make([]Case, len(names))
	for i, n := range names {
		cases[i] = Case{Name: n}
	}
	t := Variant(cases...)
	t.name = "enum{" + strings.Join(names, ", ") + "}"
	return t
}

// Option describes option<t> as variant{none, some(t)}.
func Option(t *Type) *Type {
	v := Variant(Case{Name: "none"}, Case{Name: "some", Type: t})
	v.name = "option<" + t.String() + ">"
	return v
}

// Result describes result<ok, err> as variant{ok(ok), err(err)}.
// Either side may be nil.
func Result(ok, err *Type) *Type {
	v := Variant(Case{Name: "ok", Type: ok}, Case{Name: "err", Type: err})
	switch {
	case ok == nil && err == nil:
		v.name = "result"
	case err == nil:
		v.name = "result<" + ok.String() + ">"
	case ok == nil:
		v.name = "result<_, " + err.String() + ">"
	default:
		v.name = "result<" + ok.String() + ", " + err.String() + ">"
	}
	return v
}

// VariantValue is the host form of a variant value.
type VariantValue struct {
	Value any
	Case  string
	Index uint32
}

func (v VariantValue) String() string {
	if v.Value == nil {
		return v.Case
	}
	return fmt.Sprintf("%s(%v)", v.Case, v.Value)
}
