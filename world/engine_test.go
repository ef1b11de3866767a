package world

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/wasm-host/abi"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/internal/wasmtest"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/loader"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	ctx := context.Background()
	eng, err := NewEngine(ctx, cfg, loader.MapSource{
		"lib":     wasmtest.Lib(),
		"app":     wasmtest.App("lib", "env"),
		"greeter": wasmtest.Greeter(),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close(ctx) })
	return eng
}

func TestEngine_World(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, Config{})

	var logged atomic.Uint64
	host := linker.Imports{}
	host.Define("env", "log", linker.HostFuncOf(func(_ context.Context, args []uint64) []uint64 {
		logged.Store(args[0])
		return nil
	}))

	w, err := eng.Instantiate(ctx, Declaration{
		Modules: []string{"app", "lib", "greeter"},
		Host:    host,
		Exports: []Export{
			{Name: "quad", Signature: abi.Signature{Params: []*abi.Type{abi.U32()}, Result: abi.U32()}},
			{Name: "notify", Signature: abi.Signature{Params: []*abi.Type{abi.U32()}}},
			{Name: "hello", Module: "greeter", Signature: abi.Signature{Result: abi.String(), PostReturn: "cabi_post_hello"}},
			{Name: "greeter.grow", Module: "greeter", Func: "grow", Signature: abi.Signature{Result: abi.U32()}},
		},
	})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer w.Close(ctx)

	if diff := cmp.Diff([]string{"lib", "app", "greeter"}, w.Modules()); diff != "" {
		t.Errorf("link order mismatch (-want +got):\n%s", diff)
	}

	if got, err := w.Call(ctx, "quad", uint32(3)); err != nil || got != uint32(12) {
		t.Errorf("quad(3) = (%v, %v), want 12", got, err)
	}
	if _, err := w.Call(ctx, "notify", uint32(9)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if logged.Load() != 9 {
		t.Errorf("host log received %d, want 9", logged.Load())
	}

	for i := 0; i < 2; i++ {
		if got, err := w.Call(ctx, "hello"); err != nil || got != "hello" {
			t.Fatalf("hello() = (%v, %v)", got, err)
		}
		if _, err := w.Call(ctx, "greeter.grow"); err != nil {
			t.Fatalf("grow: %v", err)
		}
	}
	g, _ := w.Instance("greeter")
	// One view for the first hello, then one per growth.
	if g.Binding().Rebinds() != 3 {
		t.Errorf("Rebinds() = %d, want 3", g.Binding().Rebinds())
	}
}

func TestEngine_SharesCompiledModules(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, Config{Interpreter: true})
	decl := Declaration{
		Modules: []string{"lib"},
		Exports: []Export{{Name: "double", Signature: abi.Signature{Params: []*abi.Type{abi.S32()}, Result: abi.S32()}}},
	}

	a, err := eng.Instantiate(ctx, decl)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(ctx)
	b, err := eng.Instantiate(ctx, decl)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close(ctx)

	if got, err := b.Call(ctx, "double", int32(-4)); err != nil || got != int32(-8) {
		t.Errorf("double(-4) = (%v, %v)", got, err)
	}
	if diff := cmp.Diff([]string{"lib"}, eng.Loader().Names()); diff != "" {
		t.Errorf("cached modules mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_MissingHostImport(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, Config{})

	_, err := eng.Instantiate(ctx, Declaration{Modules: []string{"app", "lib"}})
	if !stderrors.Is(err, errors.ErrLink) {
		t.Fatalf("expected link error, got %v", err)
	}
	var missing *errors.MissingImportsError
	if !stderrors.As(err, &missing) {
		t.Fatalf("expected missing imports, got %v", err)
	}
}

func TestEngine_CacheDir(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, Config{CacheDir: t.TempDir(), MemoryLimitPages: 4})

	w, err := eng.Instantiate(ctx, Declaration{
		Modules: []string{"greeter"},
		Exports: []Export{{Name: "hello", Signature: abi.Signature{Result: abi.String()}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close(ctx)
	if got, err := w.Call(ctx, "hello"); err != nil || got != "hello" {
		t.Errorf("hello() = (%v, %v)", got, err)
	}
}
