// Package linker instantiates compiled core modules against an import table.
//
// # Main Types
//
//   - Imports: (module-name, export-name) to Extern resolution table
//   - Linker: checks an artifact's imports and instantiates it atomically
//   - Instance: live exports and the memory binding of one linked module
//   - Instantiator: the engine capability that performs instantiation
//
// # Import Resolution
//
// Every import an artifact requires must be present in the table with the
// matching kind before the engine is asked to instantiate. Missing imports
// are reported together as one link error wrapping errors.MissingImportsError.
//
// WazeroInstantiator instantiates every module anonymously and resolves
// imports per import-module name:
//
//  1. all imports of that name come from one instance under their own export
//     names: the instance itself is the import source
//  2. otherwise the functions are bridged through a host module
//  3. a memory that cannot be passed natively is a link error
//
// # Thread Safety
//
// Linker is safe for concurrent use. Instance is NOT safe for concurrent use.
//
// # Example
//
//	l := linker.New(linker.NewWazeroInstantiator(rt))
//	imports := linker.Imports{}
//	imports.Define("env", "log", linker.HostFunc(logFn))
//	inst, err := l.Link(ctx, mod, imports)
//	defer inst.Close(ctx)
package linker
