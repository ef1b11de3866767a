package main

import (
	"fmt"
	"sort"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-host/abi"
)

// witSignature is an export signature resolved from a WIT function.
type witSignature struct {
	params []*abi.Type
	result *abi.Type
}

// bindWIT resolves every export without explicit params or result against
// the manifest's WIT world. Exports are matched by their wit key, or by name
// when the key is empty. A named wit key that the world lacks is an error.
func (m *Manifest) bindWIT(res *wit.Resolve) error {
	w, err := m.witWorld(res)
	if err != nil {
		return err
	}
	funcs := worldFunctions(w)

	for i := range m.Exports {
		e := &m.Exports[i]
		explicit := len(e.Params) > 0 || e.Result != ""
		if explicit {
			if e.WIT != "" {
				return fmt.Errorf("export %q: wit and params/result are exclusive", e.Name)
			}
			continue
		}
		key := e.WIT
		if key == "" {
			key = e.Name
		}
		fn, ok := funcs[key]
		if !ok {
			if e.WIT != "" {
				return fmt.Errorf("export %q: world %s exports no function %q (have %v)",
					e.Name, w.Name, key, functionKeys(funcs))
			}
			continue
		}
		if err := e.applyWIT(fn); err != nil {
			return fmt.Errorf("export %q: %w", e.Name, err)
		}
	}
	return nil
}

func (m *Manifest) witWorld(res *wit.Resolve) (*wit.World, error) {
	if m.World == "" {
		if len(res.Worlds) != 1 {
			return nil, fmt.Errorf("wit document has %d worlds, set world to choose one", len(res.Worlds))
		}
		return res.Worlds[0], nil
	}
	for _, w := range res.Worlds {
		if w.Name == m.World {
			return w, nil
		}
	}
	return nil, fmt.Errorf("wit document has no world %q", m.World)
}

// worldFunctions indexes the functions a world exports. Functions of an
// exported interface are keyed <export>#<func>.
func worldFunctions(w *wit.World) map[string]*wit.Function {
	funcs := make(map[string]*wit.Function)
	for name, item := range w.Exports.All() {
		switch item := item.(type) {
		case *wit.Function:
			funcs[name] = item
		case *wit.InterfaceRef:
			if item.Interface == nil {
				continue
			}
			for fname, fn := range item.Interface.Functions.All() {
				funcs[name+"#"+fname] = fn
			}
		}
	}
	return funcs
}

// applyWIT records the resolved types and fills the display fields.
func (e *ExportDecl) applyWIT(fn *wit.Function) error {
	sig := &witSignature{}
	params := make([]ParamDecl, len(fn.Params))
	for i, p := range fn.Params {
		t, err := abi.FromWIT(p.Type)
		if err != nil {
			return fmt.Errorf("param %q: %w", p.Name, err)
		}
		sig.params = append(sig.params, t)
		params[i] = ParamDecl{Name: p.Name, Type: t.String()}
	}
	switch len(fn.Results) {
	case 0:
	case 1:
		t, err := abi.FromWIT(fn.Results[0].Type)
		if err != nil {
			return fmt.Errorf("result: %w", err)
		}
		sig.result = t
		e.Result = t.String()
	default:
		return fmt.Errorf("%d results; at most one is supported", len(fn.Results))
	}
	e.Params = params
	e.resolved = sig
	return nil
}

func functionKeys(funcs map[string]*wit.Function) []string {
	keys := make([]string, 0, len(funcs))
	for k := range funcs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
