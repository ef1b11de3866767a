package abi

import (
	"fmt"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/errors"
)

// FromWIT converts a resolved WIT type into a Type. Named type definitions
// keep their WIT name for display. Flags and resource handles are not
// supported.
func FromWIT(t wit.Type) (*Type, error) {
	c := witConverter{seen: make(map[*wit.TypeDef]*Type)}
	return c.convert(t, nil)
}

type witConverter struct {
	seen map[*wit.TypeDef]*Type
}

func (c *witConverter) convert(t wit.Type, path []string) (*Type, error) {
	switch t := t.(type) {
	case wit.Bool:
		return boolType, nil
	case wit.U8:
		return u8Type, nil
	case wit.S8:
		return s8Type, nil
	case wit.U16:
		return u16Type, nil
	case wit.S16:
		return s16Type, nil
	case wit.U32:
		return u32Type, nil
	case wit.S32:
		return s32Type, nil
	case wit.U64:
		return u64Type, nil
	case wit.S64:
		return s64Type, nil
	case wit.F32:
		return f32Type, nil
	case wit.F64:
		return f64Type, nil
	case wit.Char:
		return charType, nil
	case wit.String:
		return stringType, nil
	case *wit.TypeDef:
		if out, ok := c.seen[t]; ok {
			return out, nil
		}
		out, err := c.typeDef(t, path)
		if err != nil {
			return nil, err
		}
		if t.Name != nil && *t.Name != "" {
			out = out.Named(*t.Name)
		}
		c.seen[t] = out
		return out, nil
	case nil:
		return nil, errors.InvalidInput(errors.PhaseParse, "nil WIT type")
	default:
		return nil, errors.New(errors.PhaseParse, errors.KindUnsupported).
			Path(path...).
			Detail("unsupported WIT type %T", t).
			Build()
	}
}

func (c *witConverter) typeDef(td *wit.TypeDef, path []string) (*Type, error) {
	switch k := td.Kind.(type) {
	case *wit.Record:
		fields := make([]Field, len(k.Fields))
		for i, f := range k.Fields {
			ft, err := c.convert(f.Type, append(path, f.Name))
			if err != nil {
				return nil, err
			}
			fields[i] = Field{Name: f.Name, Type: ft}
		}
		return Record(fields...), nil
	case *wit.Tuple:
		types := make([]*Type, len(k.Types))
		for i, et := range k.Types {
			tt, err := c.convert(et, append(path, fmt.Sprint(i)))
			if err != nil {
				return nil, err
			}
			types[i] = tt
		}
		return Tuple(types...), nil
	case *wit.List:
		elem, err := c.convert(k.Type, append(path, "[]"))
		if err != nil {
			return nil, err
		}
		return List(elem), nil
	case *wit.Option:
		elem, err := c.convert(k.Type, append(path, "some"))
		if err != nil {
			return nil, err
		}
		return Option(elem), nil
	case *wit.Result:
		var ok, errType *Type
		var err error
		if k.OK != nil {
			if ok, err = c.convert(k.OK, append(path, "ok")); err != nil {
				return nil, err
			}
		}
		if k.Err != nil {
			if errType, err = c.convert(k.Err, append(path, "err")); err != nil {
				return nil, err
			}
		}
		return Result(ok, errType), nil
	case *wit.Enum:
		names := make([]string, len(k.Cases))
		for i, ec := range k.Cases {
			names[i] = ec.Name
		}
		return Enum(names...), nil
	case *wit.Variant:
		cases := make([]Case, len(k.Cases))
		for i, vc := range k.Cases {
			cases[i] = Case{Name: vc.Name}
			if vc.Type != nil {
				ct, err := c.convert(vc.Type, append(path, vc.Name))
				if err != nil {
					return nil, err
				}
				cases[i].Type = ct
			}
		}
		return Variant(cases...), nil
	case wit.Type:
		// type alias
		return c.convert(k, path)
	default:
		return nil, errors.New(errors.PhaseParse, errors.KindUnsupported).
			Path(path...).
			Detail("unsupported WIT type definition %T", k).
			Build()
	}
}
