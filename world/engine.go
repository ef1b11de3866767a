package world

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/adapter"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/loader"
)

// Config configures an Engine.
type Config struct {
	// Logger is installed in every package of the module. Nil keeps the
	// current loggers (no-op by default).
	Logger *zap.Logger

	// CacheDir persists compiled code across processes. Empty disables the
	// on-disk cache.
	CacheDir string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// Interpreter selects wazero's interpreter instead of the compiler.
	Interpreter bool
}

// Engine owns one wazero runtime and the loader and linker bound to it.
// Worlds instantiated by one engine share compiled modules. Engine is safe
// for concurrent use.
type Engine struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	loader  *loader.Loader
	linker  *linker.Linker
}

// NewEngine creates a runtime per cfg and a loader reading binaries from
// src.
func NewEngine(ctx context.Context, cfg Config, src loader.Source) (*Engine, error) {
	if cfg.Logger != nil {
		SetLogger(cfg.Logger)
		loader.SetLogger(cfg.Logger)
		linker.SetLogger(cfg.Logger)
		adapter.SetLogger(cfg.Logger)
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.Interpreter {
		runtimeCfg = wazero.NewRuntimeConfigInterpreter()
	}
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("compilation cache: %w", err)
		}
		cache = c
		runtimeCfg = runtimeCfg.WithCompilationCache(cache)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	Logger().Debug("engine created",
		zap.Bool("interpreter", cfg.Interpreter),
		zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages),
		zap.String("cache_dir", cfg.CacheDir))

	return &Engine{
		runtime: rt,
		cache:   cache,
		loader:  loader.New(loader.NewWazeroCompiler(rt, src)),
		linker:  linker.New(linker.NewWazeroInstantiator(rt)),
	}, nil
}

// Instantiate builds a world from decl with the engine's loader and linker.
func (e *Engine) Instantiate(ctx context.Context, decl Declaration) (*World, error) {
	return Instantiate(ctx, e.Deps(), decl)
}

// Deps returns the engine's loader and linker.
func (e *Engine) Deps() Deps {
	return Deps{Loader: e.loader, Linker: e.linker}
}

func (e *Engine) Loader() *loader.Loader {
	return e.loader
}

func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Close releases compiled modules and the runtime. Worlds created by the
// engine must not be used afterwards.
func (e *Engine) Close(ctx context.Context) error {
	errs := []error{e.loader.Close(ctx), e.runtime.Close(ctx)}
	if e.cache != nil {
		errs = append(errs, e.cache.Close(ctx))
	}
	return stderrors.Join(errs...)
}
