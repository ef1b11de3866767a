package linker

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/loader"
	"github.com/wippyai/wasm-host/memory"
)

// WazeroInstantiator instantiates wazero artifacts in one runtime. All
// instances are anonymous; imports resolve through an import resolver, so
// any number of worlds can share the runtime.
type WazeroInstantiator struct {
	runtime wazero.Runtime
	config  wazero.ModuleConfig
}

// NewWazeroInstantiator returns an instantiator that runs the reactor
// initializer "_initialize" when a module exports one.
func NewWazeroInstantiator(rt wazero.Runtime) *WazeroInstantiator {
	return &WazeroInstantiator{
		runtime: rt,
		config:  wazero.NewModuleConfig().WithStartFunctions("_initialize"),
	}
}

// WithModuleConfig returns a copy using cfg for every instantiation. The
// name in cfg is ignored.
func (w *WazeroInstantiator) WithModuleConfig(cfg wazero.ModuleConfig) *WazeroInstantiator {
	return &WazeroInstantiator{runtime: w.runtime, config: cfg}
}

type importEntry struct {
	ext     Extern
	name    string
	params  []api.ValueType
	results []api.ValueType
}

// importGroup collects the imports of one import-module name.
type importGroup struct {
	module string
	funcs  []importEntry
	mems   []importEntry
}

func (w *WazeroInstantiator) Instantiate(ctx context.Context, mod *loader.Module, imports Imports) (Core, error) {
	art, ok := mod.Artifact.(*loader.WazeroArtifact)
	if !ok {
		return nil, errors.Link(mod.Name, fmt.Sprintf("artifact %T is not a wazero module", mod.Artifact), nil)
	}
	compiled := art.Compiled()

	var helpers []closer
	release := func() {
		for i := len(helpers) - 1; i >= 0; i-- {
			_ = helpers[i].Close(ctx)
		}
	}

	sources := make(map[string]api.Module)
	for _, g := range groupImports(compiled, imports) {
		if src := nativeSource(g); src != nil {
			sources[g.module] = src
			continue
		}
		if len(g.mems) > 0 {
			release()
			return nil, errors.Link(mod.Name, fmt.Sprintf(
				"memory %s#%s must be exported under that name by the instance providing every %q import",
				g.module, g.mems[0].name, g.module), nil)
		}

		hostMod, hostCompiled, err := w.bridge(ctx, g)
		if err != nil {
			release()
			return nil, errors.Link(mod.Name, "bridge imports of "+g.module, err)
		}
		helpers = append(helpers, hostCompiled, hostMod)
		sources[g.module] = hostMod
		Logger().Debug("bridged imports",
			zap.String("module", mod.Name),
			zap.String("from", g.module),
			zap.Int("functions", len(g.funcs)))
	}

	resolveCtx := experimental.WithImportResolver(ctx, func(name string) api.Module {
		return sources[name]
	})
	inst, err := w.runtime.InstantiateModule(resolveCtx, compiled, w.config.WithName(""))
	if err != nil {
		release()
		return nil, err
	}
	return &wazeroCore{mod: inst, helpers: helpers}, nil
}

func groupImports(compiled wazero.CompiledModule, imports Imports) []*importGroup {
	byName := make(map[string]*importGroup)
	var order []*importGroup
	group := func(name string) *importGroup {
		g, ok := byName[name]
		if !ok {
			g = &importGroup{module: name}
			byName[name] = g
			order = append(order, g)
		}
		return g
	}

	for _, def := range compiled.ImportedFunctions() {
		m, n, _ := def.Import()
		ext, _ := imports.Lookup(m, n)
		g := group(m)
		g.funcs = append(g.funcs, importEntry{
			ext:     ext,
			name:    n,
			params:  def.ParamTypes(),
			results: def.ResultTypes(),
		})
	}
	for _, def := range compiled.ImportedMemories() {
		m, n, _ := def.Import()
		ext, _ := imports.Lookup(m, n)
		g := group(m)
		g.mems = append(g.mems, importEntry{ext: ext, name: n})
	}
	return order
}

// nativeSource returns the wazero module that can serve every import of g
// directly, or nil if the group needs a bridge.
func nativeSource(g *importGroup) api.Module {
	var src *wazeroCore
	for _, list := range [][]importEntry{g.funcs, g.mems} {
		for _, e := range list {
			c, ok := e.ext.Instance.(*wazeroCore)
			if !ok || e.ext.isHost() || e.ext.Export != e.name {
				return nil
			}
			if src != nil && src != c {
				return nil
			}
			src = c
		}
	}
	if src == nil {
		return nil
	}
	return src.mod
}

func (w *WazeroInstantiator) bridge(ctx context.Context, g *importGroup) (api.Module, wazero.CompiledModule, error) {
	b := w.runtime.NewHostModuleBuilder(g.module)
	for _, e := range g.funcs {
		var fn api.GoModuleFunc
		switch {
		case e.ext.Host != nil:
			fn = e.ext.Host
		case e.ext.Plain != nil:
			fn = plain(e.ext.Plain, len(e.params), len(e.results))
		default:
			fn = forward(e.ext.Func, len(e.params))
		}
		b.NewFunctionBuilder().
			WithGoModuleFunction(fn, e.params, e.results).
			Export(e.name)
	}
	compiled, err := b.Compile(ctx)
	if err != nil {
		return nil, nil, err
	}
	mod, err := w.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, nil, err
	}
	return mod, compiled, nil
}

// forward calls target with the leading params of the stack and writes its
// results back. A failing target traps the caller.
func forward(target wasmhost.Function, params int) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		results, err := target.Call(ctx, stack[:params]...)
		if err != nil {
			panic(err)
		}
		if len(results) > len(stack) {
			panic(stderrors.New("forwarded call returned more results than declared"))
		}
		copy(stack, results)
	}
}

// plain adapts a HostCall to the wazero stack. Unfilled result slots are
// zeroed so they never echo the params.
func plain(call HostCall, params, results int) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		out := call(ctx, stack[:params])
		if len(out) > results {
			panic(stderrors.New("host function returned more results than declared"))
		}
		n := copy(stack, out)
		clear(stack[n:])
	}
}

type closer interface {
	Close(ctx context.Context) error
}

// wazeroCore is a wazero module instance plus the host modules created to
// bridge its imports.
type wazeroCore struct {
	mod     api.Module
	helpers []closer
}

func (c *wazeroCore) Function(name string) wasmhost.Function {
	fn := c.mod.ExportedFunction(name)
	if fn == nil {
		return nil
	}
	return fn
}

func (c *wazeroCore) FunctionNames() []string {
	defs := c.mod.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *wazeroCore) Memory() wasmhost.Memory {
	return memory.Wazero(c.mod.Memory())
}

func (c *wazeroCore) ExportedMemory(name string) wasmhost.Memory {
	return memory.Wazero(c.mod.ExportedMemory(name))
}

// Module returns the underlying wazero module.
func (c *wazeroCore) Module() api.Module {
	return c.mod
}

func (c *wazeroCore) Close(ctx context.Context) error {
	errs := []error{c.mod.Close(ctx)}
	for i := len(c.helpers) - 1; i >= 0; i-- {
		errs = append(errs, c.helpers[i].Close(ctx))
	}
	return stderrors.Join(errs...)
}

var (
	_ Instantiator = (*WazeroInstantiator)(nil)
	_ Core         = (*wazeroCore)(nil)
)
