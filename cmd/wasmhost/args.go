package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-host/abi"
)

// parseArgs converts command-line arguments to host values.
func parseArgs(types []*abi.Type, texts []string) ([]any, error) {
	if len(texts) != len(types) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(types), len(texts))
	}
	args := make([]any, len(texts))
	for i, text := range texts {
		v, err := parseArg(text, types[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

// parseArg converts text to a host value of type t. Strings and chars are
// taken verbatim; everything else is JSON.
func parseArg(text string, t *abi.Type) (any, error) {
	switch t.Kind() {
	case abi.KindString, abi.KindChar:
		return text, nil
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%s argument %q: %w", t, text, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%s argument %q: trailing data", t, text)
	}
	return fromJSON(v, t)
}

func fromJSON(v any, t *abi.Type) (any, error) {
	switch t.Kind() {
	case abi.KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case abi.KindU8, abi.KindU16, abi.KindU32, abi.KindU64:
		if n, ok := v.(json.Number); ok {
			return strconv.ParseUint(n.String(), 10, 64)
		}
	case abi.KindS8, abi.KindS16, abi.KindS32, abi.KindS64:
		if n, ok := v.(json.Number); ok {
			return strconv.ParseInt(n.String(), 10, 64)
		}
	case abi.KindF32, abi.KindF64:
		if n, ok := v.(json.Number); ok {
			return n.Float64()
		}
	case abi.KindString, abi.KindChar:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case abi.KindList:
		return listFromJSON(v, t)
	case abi.KindRecord:
		return recordFromJSON(v, t)
	case abi.KindVariant:
		return variantFromJSON(v, t)
	}
	return nil, fmt.Errorf("cannot use %v as %s", v, t)
}

func listFromJSON(v any, t *abi.Type) (any, error) {
	if s, ok := v.(string); ok && t.Elem().Kind() == abi.KindU8 {
		return []byte(s), nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("cannot use %v as %s", v, t)
	}
	out := make([]any, len(arr))
	for i, e := range arr {
		ev, err := fromJSON(e, t.Elem())
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = ev
	}
	return out, nil
}

// recordFromJSON accepts an object, or an array for tuples.
func recordFromJSON(v any, t *abi.Type) (any, error) {
	fields := t.Fields()
	var obj map[string]any
	switch x := v.(type) {
	case map[string]any:
		obj = x
	case []any:
		if len(x) != len(fields) {
			return nil, fmt.Errorf("%s needs %d elements, got %d", t, len(fields), len(x))
		}
		obj = make(map[string]any, len(x))
		for i, e := range x {
			obj[fields[i].Name] = e
		}
	default:
		return nil, fmt.Errorf("cannot use %v as %s", v, t)
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		raw, ok := obj[f.Name]
		if !ok {
			return nil, fmt.Errorf("%s: missing field %q", t, f.Name)
		}
		fv, err := fromJSON(raw, f.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		out[f.Name] = fv
	}
	return out, nil
}

// variantFromJSON accepts a case name, a {"case": payload} object, null for
// none, or any other value as the payload of some.
func variantFromJSON(v any, t *abi.Type) (any, error) {
	cases := t.Cases()
	switch x := v.(type) {
	case nil:
		if t.CaseIndex("none") >= 0 {
			return nil, nil
		}
	case string:
		if i := t.CaseIndex(x); i >= 0 && cases[i].Type == nil {
			return abi.VariantValue{Case: x, Index: uint32(i)}, nil
		}
	case map[string]any:
		for name, payload := range x {
			if i := t.CaseIndex(name); i >= 0 && len(x) == 1 {
				return caseValue(cases[i], uint32(i), payload)
			}
		}
	}
	if i := t.CaseIndex("some"); i >= 0 {
		return caseValue(cases[i], uint32(i), v)
	}
	return nil, fmt.Errorf("cannot use %v as %s", v, t)
}

func caseValue(c abi.Case, idx uint32, payload any) (any, error) {
	vv := abi.VariantValue{Case: c.Name, Index: idx}
	if c.Type == nil {
		return vv, nil
	}
	p, err := fromJSON(payload, c.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name, err)
	}
	vv.Value = p
	return vv, nil
}

// formatValue renders a lifted value for the terminal.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "()"
	case string:
		return strconv.Quote(x)
	case []byte:
		return fmt.Sprintf("%q", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
