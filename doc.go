// Package wasmhost binds compiled WebAssembly component worlds to Go callers.
//
// A component world is one or more core modules plus a typed export surface.
// This library compiles and links those modules, keeps a validated view over
// each instance's linear memory, and converts between the canonical ABI's
// flat representation and Go values.
//
// # Architecture Overview
//
//	wasmhost/        Root package with the Function, Memory and Import types
//	├── loader/      Compile-on-demand module cache with deduplicated compiles
//	├── linker/      Atomic core module instantiation against an import table
//	├── memory/      Per-instance memory views rebuilt after growth
//	├── abi/         Type descriptors, layout, lift and lower
//	├── adapter/     One exported function: call, lift, post-return
//	├── world/       Ordered instantiation and the host-facing function table
//	├── errors/      Structured error taxonomy
//	└── cmd/wasmhost Manifest-driven command line caller
//
// # Quick Start
//
//	eng, err := world.NewEngine(ctx, world.Config{}, loader.DirSource("./build"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	w, err := eng.Instantiate(ctx, world.Declaration{
//	    Modules: []string{"greeter"},
//	    Exports: []world.Export{{
//	        Name: "greet",
//	        Signature: abi.Signature{
//	            Params:     []*abi.Type{abi.String()},
//	            Result:     abi.String(),
//	            Convention: abi.Indirect,
//	            PostReturn: "cabi_post_greet",
//	        },
//	    }},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close(ctx)
//
//	result, err := w.Call(ctx, "greet", "World")
//	fmt.Println(result) // "Hello, World!"
//
// # Thread Safety
//
// Engine, Loader and Linker are safe for concurrent use. A World and its
// instances assume a single logical caller at a time; guests are not
// re-entered concurrently.
//
// # Memory Model
//
// Linear memory can only grow. Growth may replace the backing buffer, so
// every call revalidates its memory view before decoding. Values returned
// from a call never alias guest memory.
package wasmhost
