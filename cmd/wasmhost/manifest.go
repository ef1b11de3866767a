package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/abi"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/world"
)

// Manifest describes a world on disk:
//
//	dir = "build"
//	modules = ["app", "lib"]
//
//	[[exports]]
//	name = "greet"
//	params = [{ name = "who", type = "string" }]
//	result = "string"
//
//	[[host]]
//	module = "env"
//	name = "log"
//	action = "log"
//
// With wit naming a WIT JSON document (as printed by wasm-tools component
// wit -j), exports that omit params and result take their signature from
// the world's exported function of the same name.
type Manifest struct {
	// Dir holds <module>.wasm files, relative to the manifest.
	Dir              string       `toml:"dir"`
	Primary          string       `toml:"primary"`
	Modules          []string     `toml:"modules"`
	Exports          []ExportDecl `toml:"exports"`
	Host             []HostDecl   `toml:"host"`
	MemoryLimitPages uint32       `toml:"memory_limit_pages"`
	// WIT is a WIT JSON document, relative to the manifest.
	WIT string `toml:"wit"`
	// World selects the WIT world; optional when the document has one.
	World string `toml:"world"`
}

type ExportDecl struct {
	Name   string      `toml:"name"`
	Module string      `toml:"module"`
	Func   string      `toml:"func"`
	Params []ParamDecl `toml:"params"`
	Result string      `toml:"result"`
	// Convention is "direct" or "indirect". Empty applies the canonical
	// flattening rule to the result type.
	Convention string `toml:"convention"`
	// PostReturn defaults to cabi_post_<func>.
	PostReturn string `toml:"post_return"`
	// WIT names the world function giving the signature, either a direct
	// export or <interface>#<func>. Defaults to Name.
	WIT string `toml:"wit"`

	resolved *witSignature
}

type ParamDecl struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
}

// HostDecl stubs one host import. Actions: "log" logs the arguments,
// "zero" returns zeroed results.
type HostDecl struct {
	Module string `toml:"module"`
	Name   string `toml:"name"`
	Action string `toml:"action"`
}

// LoadManifest reads a manifest and resolves Dir against its location.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !filepath.IsAbs(m.Dir) {
		m.Dir = filepath.Join(filepath.Dir(path), m.Dir)
	}
	if m.WIT != "" {
		witPath := m.WIT
		if !filepath.IsAbs(witPath) {
			witPath = filepath.Join(filepath.Dir(path), witPath)
		}
		res, err := wit.LoadJSON(witPath)
		if err != nil {
			return nil, fmt.Errorf("%s: wit: %w", path, err)
		}
		if err := m.bindWIT(res); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return m, nil
}

// ParseManifest decodes a manifest, rejecting unknown keys.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if len(m.Modules) == 0 {
		return nil, fmt.Errorf("manifest declares no modules")
	}
	return &m, nil
}

// Declaration converts the manifest into a world declaration. Host stubs
// log through log.
func (m *Manifest) Declaration(log *zap.Logger) (world.Declaration, error) {
	decl := world.Declaration{
		Modules: m.Modules,
		Primary: m.Primary,
		Host:    linker.Imports{},
	}
	for _, e := range m.Exports {
		exp, err := e.export()
		if err != nil {
			return world.Declaration{}, fmt.Errorf("export %q: %w", e.Name, err)
		}
		decl.Exports = append(decl.Exports, exp)
	}
	for _, h := range m.Host {
		ext, err := h.extern(log)
		if err != nil {
			return world.Declaration{}, err
		}
		decl.Host.Define(h.Module, h.Name, ext)
	}
	return decl, decl.Validate()
}

func (e ExportDecl) export() (world.Export, error) {
	fn := e.Func
	if fn == "" {
		fn = e.Name
	}
	sig := abi.Signature{PostReturn: e.PostReturn}
	if sig.PostReturn == "" {
		sig.PostReturn = "cabi_post_" + fn
	}
	if e.resolved != nil {
		sig.Params = e.resolved.params
		sig.Result = e.resolved.result
	} else if err := e.parseTypes(&sig); err != nil {
		return world.Export{}, err
	}
	if e.Convention == "" {
		sig.Convention = abi.ConventionFor(sig.Result)
	} else {
		conv, err := abi.ParseConvention(e.Convention)
		if err != nil {
			return world.Export{}, err
		}
		sig.Convention = conv
	}
	return world.Export{Name: e.Name, Module: e.Module, Func: fn, Signature: sig}, nil
}

func (e ExportDecl) parseTypes(sig *abi.Signature) error {
	for _, p := range e.Params {
		t, err := abi.Parse(p.Type)
		if err != nil {
			return fmt.Errorf("param %q: %w", p.Name, err)
		}
		sig.Params = append(sig.Params, t)
	}
	if e.Result != "" {
		t, err := abi.Parse(e.Result)
		if err != nil {
			return fmt.Errorf("result: %w", err)
		}
		sig.Result = t
	}
	return nil
}

func (e ExportDecl) paramNames() []string {
	names := make([]string, len(e.Params))
	for i, p := range e.Params {
		names[i] = p.Name
		if names[i] == "" {
			names[i] = fmt.Sprintf("arg%d", i)
		}
	}
	return names
}

func (h HostDecl) extern(log *zap.Logger) (linker.Extern, error) {
	key := h.Module + "#" + h.Name
	switch h.Action {
	case "log":
		return linker.HostFuncOf(func(_ context.Context, args []uint64) []uint64 {
			log.Info("host call", zap.String("import", key), zap.Uint64s("args", args))
			return nil
		}), nil
	case "zero", "":
		return linker.HostFuncOf(func(context.Context, []uint64) []uint64 {
			return nil
		}), nil
	default:
		return linker.Extern{}, fmt.Errorf("host %s: unknown action %q", key, h.Action)
	}
}
