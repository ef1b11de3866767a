package world

import (
	"context"
	stderrors "errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/wasm-host/adapter"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/loader"
)

// Deps are the capabilities a world is assembled with.
type Deps struct {
	Loader *loader.Loader
	Linker *linker.Linker
}

// World is a set of linked instances and the adapters exposing their
// declared exports. Like Instance it is not safe for concurrent use.
type World struct {
	instances map[string]*linker.Instance
	funcs     map[string]*adapter.Adapter
	// order is the link order; Close releases in reverse.
	order []string
}

// Instantiate compiles every declared module, links them in dependency
// order and builds the declared exports. It is all-or-nothing: on error
// every instance already linked is closed and the returned error wraps the
// cause, so errors.Is(err, errors.ErrCompile) and errors.Is(err,
// errors.ErrLink) still match.
func Instantiate(ctx context.Context, deps Deps, decl Declaration) (*World, error) {
	if err := decl.Validate(); err != nil {
		return nil, err
	}
	log := Logger().With(zap.String("primary", decl.primary()))
	start := time.Now()

	mods, err := prefetch(ctx, deps.Loader, decl.Modules)
	if err != nil {
		log.Warn("world compile failed", zap.Error(err))
		return nil, errors.Instantiate(err)
	}

	order, err := linkOrder(mods)
	if err != nil {
		return nil, errors.Instantiate(err)
	}

	w := &World{
		instances: make(map[string]*linker.Instance, len(order)),
		funcs:     make(map[string]*adapter.Adapter, len(decl.Exports)),
	}
	for _, mod := range order {
		inst, err := deps.Linker.Link(ctx, mod, w.importsFor(mod, decl.Host))
		if err != nil {
			log.Warn("world link failed",
				zap.String("module", mod.Name),
				zap.Strings("linked", w.order),
				zap.Error(err))
			return nil, w.abort(ctx, err)
		}
		w.instances[mod.Name] = inst
		w.order = append(w.order, mod.Name)
	}

	for _, exp := range decl.Exports {
		module := exp.Module
		if module == "" {
			module = decl.primary()
		}
		a, err := adapter.ForInstance(w.instances[module], exp.funcName(), exp.Signature)
		if err != nil {
			return nil, w.abort(ctx, err)
		}
		w.funcs[exp.Name] = a
	}

	log.Debug("world instantiated",
		zap.Strings("order", w.order),
		zap.Int("exports", len(w.funcs)),
		zap.Duration("duration", time.Since(start)))
	return w, nil
}

// prefetch loads every module concurrently. The loader deduplicates
// compiles per name.
func prefetch(ctx context.Context, l *loader.Loader, names []string) ([]*loader.Module, error) {
	mods := make([]*loader.Module, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			mod, err := l.Load(gctx, name)
			if err != nil {
				return err
			}
			mods[i] = mod
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mods, nil
}

// importsFor resolves mod's imports. Imports naming a linked module come
// from that instance; everything else comes from the host table. Unresolved
// imports are left out for the linker to report.
func (w *World) importsFor(mod *loader.Module, host linker.Imports) linker.Imports {
	imports := linker.Imports{}
	for _, imp := range mod.Imports() {
		if inst, ok := w.instances[imp.Module]; ok {
			if ext, ok := inst.Extern(imp.Name); ok {
				imports.Define(imp.Module, imp.Name, ext)
			}
			continue
		}
		if ext, ok := host.Lookup(imp.Module, imp.Name); ok {
			imports.Define(imp.Module, imp.Name, ext)
		}
	}
	return imports
}

func (w *World) abort(ctx context.Context, cause error) error {
	if err := w.Close(ctx); err != nil {
		Logger().Warn("releasing partial world", zap.Error(err))
	}
	return errors.Instantiate(cause)
}

// Call invokes the export declared under name.
func (w *World) Call(ctx context.Context, name string, args ...any) (any, error) {
	a, ok := w.funcs[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseCall, "export", name)
	}
	return a.Call(ctx, args...)
}

// Func returns the adapter declared under name.
func (w *World) Func(name string) (*adapter.Adapter, bool) {
	a, ok := w.funcs[name]
	return a, ok
}

// Exports lists the declared export names, sorted.
func (w *World) Exports() []string {
	names := make([]string, 0, len(w.funcs))
	for n := range w.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Instance returns the instance linked from the named module.
func (w *World) Instance(module string) (*linker.Instance, bool) {
	inst, ok := w.instances[module]
	return inst, ok
}

// Modules returns the module names in link order.
func (w *World) Modules() []string {
	return append([]string(nil), w.order...)
}

// Close releases every instance, dependents first.
func (w *World) Close(ctx context.Context) error {
	var errs []error
	for i := len(w.order) - 1; i >= 0; i-- {
		name := w.order[i]
		if err := w.instances[name].Close(ctx); err != nil {
			errs = append(errs, err)
		}
		delete(w.instances, name)
	}
	w.order = nil
	w.funcs = map[string]*adapter.Adapter{}
	return stderrors.Join(errs...)
}
