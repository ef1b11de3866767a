// Package loader compiles core modules on demand and caches one artifact
// per module name.
//
// Compilation is an opaque capability (Compiler). The Loader guarantees that
// at most one compile per name is in flight: concurrent Load calls for the
// same name share the result of a single compile. A caller whose context is
// cancelled stops waiting, but the compile runs to completion and fills the
// cache, so the next Load for that name returns immediately.
//
// Failed compiles are reported as errors.ErrCompile and are never cached.
// Nothing is retried automatically; Forget drops a cached artifact so that a
// caller-driven retry recompiles it.
//
//	rt := wazero.NewRuntime(ctx)
//	l := loader.New(loader.NewWazeroCompiler(rt, loader.DirSource("./build")))
//	mod, err := l.Load(ctx, "app")
package loader
