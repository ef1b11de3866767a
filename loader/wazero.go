package loader

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"

	wasmhost "github.com/wippyai/wasm-host"
)

// WazeroCompiler compiles binaries from a Source with a wazero runtime.
// Artifacts are only instantiable in the same runtime.
type WazeroCompiler struct {
	runtime wazero.Runtime
	source  Source
}

func NewWazeroCompiler(rt wazero.Runtime, src Source) *WazeroCompiler {
	return &WazeroCompiler{runtime: rt, source: src}
}

func (c *WazeroCompiler) Compile(ctx context.Context, name string) (Artifact, error) {
	b, err := c.source.Bytes(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	compiled, err := c.runtime.CompileModule(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}
	return &WazeroArtifact{compiled: compiled}, nil
}

// Runtime returns the runtime artifacts are compiled for.
func (c *WazeroCompiler) Runtime() wazero.Runtime {
	return c.runtime
}

// WazeroArtifact is a wazero compiled module.
type WazeroArtifact struct {
	compiled wazero.CompiledModule
}

// NewWazeroArtifact wraps an already compiled module.
func NewWazeroArtifact(compiled wazero.CompiledModule) *WazeroArtifact {
	return &WazeroArtifact{compiled: compiled}
}

func (a *WazeroArtifact) Compiled() wazero.CompiledModule {
	return a.compiled
}

func (a *WazeroArtifact) Imports() []wasmhost.Import {
	funcs := a.compiled.ImportedFunctions()
	mems := a.compiled.ImportedMemories()
	out := make([]wasmhost.Import, 0, len(funcs)+len(mems))
	for _, f := range funcs {
		mod, name, _ := f.Import()
		out = append(out, wasmhost.Import{Module: mod, Name: name, Kind: wasmhost.ExternFunc})
	}
	for _, m := range mems {
		mod, name, _ := m.Import()
		out = append(out, wasmhost.Import{Module: mod, Name: name, Kind: wasmhost.ExternMemory})
	}
	return out
}

func (a *WazeroArtifact) Close(ctx context.Context) error {
	return a.compiled.Close(ctx)
}

var (
	_ Compiler = (*WazeroCompiler)(nil)
	_ Artifact = (*WazeroArtifact)(nil)
)
