package linker

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/loader"
	"github.com/wippyai/wasm-host/memory"
)

// Core is an engine-level module instance.
type Core interface {
	// Function returns an exported function, or nil.
	Function(name string) wasmhost.Function
	// FunctionNames lists exported function names.
	FunctionNames() []string
	// Memory returns the instance's linear memory, defined or imported, or
	// nil if it has none.
	Memory() wasmhost.Memory
	// ExportedMemory returns a memory exported under name, or nil.
	ExportedMemory(name string) wasmhost.Memory
	Close(ctx context.Context) error
}

// Instantiator creates a core instance from a compiled module. Imports have
// already been checked for presence and kind. On failure it must release
// everything it created for the attempt.
type Instantiator interface {
	Instantiate(ctx context.Context, mod *loader.Module, imports Imports) (Core, error)
}

// Linker links compiled modules into instances. It is safe for concurrent
// use.
type Linker struct {
	inst Instantiator
}

func New(inst Instantiator) *Linker {
	return &Linker{inst: inst}
}

// Link instantiates mod against imports. Every import mod requires must be
// present with the right kind. Linking is atomic: on error no instance is
// returned and nothing created for the attempt stays alive.
func (l *Linker) Link(ctx context.Context, mod *loader.Module, imports Imports) (*Instance, error) {
	if err := Check(mod, imports); err != nil {
		return nil, err
	}

	start := time.Now()
	core, err := l.inst.Instantiate(ctx, mod, imports)
	if err != nil {
		Logger().Warn("instantiation failed",
			zap.String("module", mod.Name),
			zap.Error(err))
		if stderrors.Is(err, errors.ErrLink) {
			return nil, err
		}
		return nil, errors.Link(mod.Name, "instantiate", err)
	}

	Logger().Debug("linked module",
		zap.String("module", mod.Name),
		zap.Int("imports", len(mod.Imports())),
		zap.Duration("elapsed", time.Since(start)))

	return &Instance{
		name:    mod.Name,
		core:    core,
		binding: memory.NewBinding(core.Memory()),
	}, nil
}

// Check reports every import of mod that imports cannot satisfy.
func Check(mod *loader.Module, imports Imports) error {
	var missing []string
	for _, imp := range mod.Imports() {
		ext, ok := imports.Lookup(imp.Module, imp.Name)
		if !ok {
			missing = append(missing, imp.Key())
			continue
		}
		if ext.Kind != imp.Kind {
			return errors.Link(mod.Name,
				fmt.Sprintf("import %s: expected %s, got %s", imp.Key(), imp.Kind, ext.Kind), nil)
		}
		if imp.Kind == wasmhost.ExternFunc && ext.Func == nil && !ext.isHost() {
			return errors.Link(mod.Name, fmt.Sprintf("import %s: function extern is empty", imp.Key()), nil)
		}
		if imp.Kind == wasmhost.ExternMemory && ext.Memory == nil {
			return errors.Link(mod.Name, fmt.Sprintf("import %s: memory extern is empty", imp.Key()), nil)
		}
	}
	if len(missing) > 0 {
		return errors.MissingImports(mod.Name, missing)
	}
	return nil
}

// Instance is a linked module: its exports and the binding over its memory.
// An Instance is owned by a single caller and is not safe for concurrent
// use.
type Instance struct {
	core    Core
	binding *memory.Binding
	name    string
}

// Name returns the module name the instance was linked from.
func (i *Instance) Name() string {
	return i.name
}

// Function returns an exported function.
func (i *Instance) Function(name string) (wasmhost.Function, bool) {
	fn := i.core.Function(name)
	return fn, fn != nil
}

// FunctionNames lists the instance's exported functions.
func (i *Instance) FunctionNames() []string {
	return i.core.FunctionNames()
}

// Extern returns an export in the form other modules import it.
func (i *Instance) Extern(name string) (Extern, bool) {
	if fn := i.core.Function(name); fn != nil {
		return Extern{Kind: wasmhost.ExternFunc, Func: fn, Instance: i.core, Export: name}, true
	}
	if mem := i.core.ExportedMemory(name); mem != nil {
		return Extern{Kind: wasmhost.ExternMemory, Memory: mem, Instance: i.core, Export: name}, true
	}
	return Extern{}, false
}

// Memory returns the instance's linear memory, or nil.
func (i *Instance) Memory() wasmhost.Memory {
	return i.binding.Memory()
}

// Binding returns the instance's memory binding.
func (i *Instance) Binding() *memory.Binding {
	return i.binding
}

// View validates the memory view against the live buffer and returns it.
func (i *Instance) View() (*memory.View, error) {
	return i.binding.View()
}

// Core returns the engine instance.
func (i *Instance) Core() Core {
	return i.core
}

func (i *Instance) Close(ctx context.Context) error {
	return i.core.Close(ctx)
}
