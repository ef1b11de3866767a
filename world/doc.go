// Package world assembles core modules into a callable world.
//
// Instantiate compiles every declared module concurrently, orders them so
// each module is linked after the declared modules it imports from, links
// them one at a time and builds a CallAdapter for every declared export.
// Any compile or link failure closes what was already linked; callers never
// observe a partially linked world.
//
// Imports naming a declared module resolve to that module's instance.
// Everything else resolves through Declaration.Host.
//
// Engine bundles a wazero runtime with a Loader and a Linker:
//
//	eng, err := world.NewEngine(ctx, world.Config{CacheDir: dir}, loader.DirSource("./build"))
//	w, err := eng.Instantiate(ctx, decl)
//	out, err := w.Call(ctx, "greet", "World")
package world
