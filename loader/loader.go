package loader

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/errors"
)

// Artifact is a compiled, loadable core module.
type Artifact interface {
	// Imports lists every entity the module requires to instantiate.
	Imports() []wasmhost.Import
}

// Compiler produces an artifact for a module name.
type Compiler interface {
	Compile(ctx context.Context, name string) (Artifact, error)
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc func(ctx context.Context, name string) (Artifact, error)

func (f CompilerFunc) Compile(ctx context.Context, name string) (Artifact, error) {
	return f(ctx, name)
}

// closer is implemented by artifacts that hold engine resources.
type closer interface {
	Close(ctx context.Context) error
}

// Module is a cached compiled module. It is immutable once produced.
type Module struct {
	Artifact Artifact
	Name     string
}

// Imports returns the artifact's required imports.
func (m *Module) Imports() []wasmhost.Import {
	return m.Artifact.Imports()
}

// Loader caches compiled modules by name. It is safe for concurrent use.
type Loader struct {
	compiler Compiler
	group    singleflight.Group
	cache    map[string]*Module
	mu       sync.RWMutex
	closed   bool
}

func New(c Compiler) *Loader {
	return &Loader{
		compiler: c,
		cache:    make(map[string]*Module),
	}
}

// Load returns the compiled module for name, compiling it if needed.
func (l *Loader) Load(ctx context.Context, name string) (*Module, error) {
	if m, ok := l.Cached(name); ok {
		return m, nil
	}
	if l.isClosed() {
		return nil, errors.InvalidInput(errors.PhaseLoad, "loader is closed")
	}

	// The compile outlives any single waiter.
	detached := context.WithoutCancel(ctx)
	ch := l.group.DoChan(name, func() (any, error) {
		return l.compile(detached, name)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Module), nil
	case <-ctx.Done():
		Logger().Debug("stopped waiting for compile",
			zap.String("module", name),
			zap.Error(ctx.Err()))
		return nil, fmt.Errorf("load %q: %w", name, ctx.Err())
	}
}

func (l *Loader) compile(ctx context.Context, name string) (*Module, error) {
	// A compile that finished between the cache check and DoChan.
	if m, ok := l.Cached(name); ok {
		return m, nil
	}

	start := time.Now()
	Logger().Debug("compiling module", zap.String("module", name))

	art, err := l.compiler.Compile(ctx, name)
	if err != nil {
		Logger().Warn("compile failed",
			zap.String("module", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		if stderrors.Is(err, errors.ErrCompile) {
			return nil, err
		}
		return nil, errors.Compile(name, err)
	}

	m := &Module{Name: name, Artifact: art}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		closeArtifact(ctx, m)
		return nil, errors.InvalidInput(errors.PhaseLoad, "loader closed during compile")
	}
	l.cache[name] = m
	l.mu.Unlock()

	Logger().Debug("compiled module",
		zap.String("module", name),
		zap.Int("imports", len(art.Imports())),
		zap.Duration("elapsed", time.Since(start)))
	return m, nil
}

// Cached returns the module if it has already been compiled.
func (l *Loader) Cached(name string) (*Module, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.cache[name]
	return m, ok
}

// Forget drops a cached module so the next Load recompiles it. Instances
// already linked from it are unaffected. A compile in flight still fills
// the cache when it finishes.
func (l *Loader) Forget(name string) {
	l.mu.Lock()
	delete(l.cache, name)
	l.mu.Unlock()
}

// Names returns the names of all cached modules.
func (l *Loader) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.cache))
	for name := range l.cache {
		names = append(names, name)
	}
	return names
}

// Close releases every cached artifact. Subsequent loads fail.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	cache := l.cache
	l.cache = make(map[string]*Module)
	l.mu.Unlock()

	var errs []error
	for _, m := range cache {
		if err := closeArtifact(ctx, m); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", m.Name, err))
		}
	}
	return stderrors.Join(errs...)
}

func (l *Loader) isClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}

func closeArtifact(ctx context.Context, m *Module) error {
	if c, ok := m.Artifact.(closer); ok {
		return c.Close(ctx)
	}
	return nil
}
