package adapter

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/abi"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/loader"
	"github.com/wippyai/wasm-host/memory"
)

type fakeFunc func(ctx context.Context, params ...uint64) ([]uint64, error)

func (f fakeFunc) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	return f(ctx, params...)
}

func returns(words ...uint64) fakeFunc {
	return func(context.Context, ...uint64) ([]uint64, error) { return words, nil }
}

// postRecorder records every post-return invocation.
type postRecorder struct {
	calls [][]uint64
	err   error
}

func (p *postRecorder) Call(_ context.Context, params ...uint64) ([]uint64, error) {
	p.calls = append(p.calls, append([]uint64(nil), params...))
	return nil, p.err
}

func stringSig(conv abi.Convention) abi.Signature {
	return abi.Signature{Result: abi.String(), Convention: conv, PostReturn: "cabi_post_f"}
}

func pageWith(t *testing.T, writes map[uint32][]byte) *memory.Bytes {
	t.Helper()
	mem := memory.NewBytes(memory.PageSize)
	for off, data := range writes {
		copy(mem.Buffer()[off:], data)
	}
	return mem
}

func newAdapter(t *testing.T, fn wasmhost.Function, post wasmhost.Function, mem wasmhost.Memory, sig abi.Signature) *Adapter {
	t.Helper()
	cfg := Config{Func: fn, Name: "f", Signature: sig, Binding: memory.NewBinding(mem)}
	if post != nil {
		cfg.PostReturn = post
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestCall_DirectString(t *testing.T) {
	mem := pageWith(t, map[uint32][]byte{1024: []byte("hello")})
	post := &postRecorder{}
	a := newAdapter(t, returns(1024, 5), post, mem, stringSig(abi.Direct))

	got, err := a.Call(context.Background())
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
	if diff := cmp.Diff([][]uint64{{1024, 5}}, post.calls); diff != "" {
		t.Errorf("post-return calls mismatch (-want +got):\n%s", diff)
	}
}

func TestCall_IndirectString(t *testing.T) {
	retArea := make([]byte, 8)
	retArea[0], retArea[1] = 0x00, 0x04 // 1024
	retArea[4] = 6
	mem := pageWith(t, map[uint32][]byte{16: retArea, 1024: []byte("héllo")})
	post := &postRecorder{}
	a := newAdapter(t, returns(16), post, mem, stringSig(abi.Indirect))

	got, err := a.Call(context.Background())
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "héllo" {
		t.Errorf("got %q, want %q", got, "héllo")
	}
	if diff := cmp.Diff([][]uint64{{16}}, post.calls); diff != "" {
		t.Errorf("post-return calls mismatch (-want +got):\n%s", diff)
	}
}

func TestCall_ZeroLengthString(t *testing.T) {
	post := &postRecorder{}
	a := newAdapter(t, returns(0xFFFFFF00, 0), post, memory.NewBytes(16), stringSig(abi.Direct))

	got, err := a.Call(context.Background())
	if err != nil || got != "" {
		t.Fatalf("Call = (%q, %v), want empty string", got, err)
	}
	if len(post.calls) != 1 {
		t.Errorf("post-return calls = %d, want 1", len(post.calls))
	}
}

func TestCall_MemoryFaultStillRunsPostReturn(t *testing.T) {
	post := &postRecorder{}
	a := newAdapter(t, returns(65530, 10), post, memory.NewBytes(memory.PageSize), stringSig(abi.Direct))

	_, err := a.Call(context.Background())
	if !stderrors.Is(err, errors.ErrMemoryFault) {
		t.Fatalf("expected memory fault, got %v", err)
	}
	if diff := cmp.Diff([][]uint64{{65530, 10}}, post.calls); diff != "" {
		t.Errorf("post-return calls mismatch (-want +got):\n%s", diff)
	}
}

func TestCall_OversizedStringPastEndFaults(t *testing.T) {
	post := &postRecorder{}
	a := newAdapter(t, returns(0, abi.MaxStringSize+1), post, memory.NewBytes(memory.PageSize), stringSig(abi.Direct))

	_, err := a.Call(context.Background())
	if !stderrors.Is(err, errors.ErrMemoryFault) {
		t.Fatalf("expected memory fault, got %v", err)
	}
	if diff := cmp.Diff([][]uint64{{0, abi.MaxStringSize + 1}}, post.calls); diff != "" {
		t.Errorf("post-return calls mismatch (-want +got):\n%s", diff)
	}
}

func TestCall_DecodeErrorStillRunsPostReturn(t *testing.T) {
	mem := pageWith(t, map[uint32][]byte{64: {0xc3, 0x28}})
	post := &postRecorder{}
	a := newAdapter(t, returns(64, 2), post, mem, stringSig(abi.Direct))

	_, err := a.Call(context.Background())
	if !stderrors.Is(err, errors.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if len(post.calls) != 1 {
		t.Errorf("post-return calls = %d, want 1", len(post.calls))
	}
}

func TestCall_TrapSkipsPostReturn(t *testing.T) {
	post := &postRecorder{}
	trap := fakeFunc(func(context.Context, ...uint64) ([]uint64, error) {
		return nil, fmt.Errorf("wasm error: unreachable")
	})
	a := newAdapter(t, trap, post, memory.NewBytes(64), stringSig(abi.Direct))

	_, err := a.Call(context.Background())
	if !stderrors.Is(err, errors.ErrTrap) {
		t.Fatalf("expected trap, got %v", err)
	}
	if len(post.calls) != 0 {
		t.Errorf("post-return ran %d times after a trap", len(post.calls))
	}
}

func TestCall_NoPostReturn(t *testing.T) {
	mem := pageWith(t, map[uint32][]byte{1024: []byte("hello")})
	sig := abi.Signature{Result: abi.String()}
	a := newAdapter(t, returns(1024, 5), nil, mem, sig)

	got, err := a.Call(context.Background())
	if err != nil || got != "hello" {
		t.Fatalf("Call = (%v, %v)", got, err)
	}
}

func TestCall_PostReturnTrap(t *testing.T) {
	mem := pageWith(t, map[uint32][]byte{1024: []byte("hello")})

	post := &postRecorder{err: fmt.Errorf("wasm error: unreachable")}
	a := newAdapter(t, returns(1024, 5), post, mem, stringSig(abi.Direct))
	_, err := a.Call(context.Background())
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindTrap || e.Phase != errors.PhasePostReturn {
		t.Fatalf("expected post-return trap, got %v", err)
	}

	// A failed lift wins over a trapping post-return.
	post = &postRecorder{err: fmt.Errorf("wasm error: unreachable")}
	a = newAdapter(t, returns(65530, 10), post, mem, stringSig(abi.Direct))
	_, err = a.Call(context.Background())
	if !stderrors.Is(err, errors.ErrMemoryFault) {
		t.Fatalf("expected memory fault, got %v", err)
	}
	if len(post.calls) != 1 {
		t.Errorf("post-return calls = %d, want 1", len(post.calls))
	}
}

func TestCall_RebindsAfterGrowth(t *testing.T) {
	mem := pageWith(t, map[uint32][]byte{1024: []byte("hello")})
	binding := memory.NewBinding(mem)

	calls := 0
	fn := fakeFunc(func(context.Context, ...uint64) ([]uint64, error) {
		calls++
		if calls == 1 {
			return []uint64{1024, 5}, nil
		}
		// The guest grows memory and returns text from the new page.
		mem.Grow(memory.PageSize)
		copy(mem.Buffer()[70000:], "world")
		return []uint64{70000, 5}, nil
	})
	a, err := New(Config{Func: fn, Name: "f", Signature: abi.Signature{Result: abi.String()}, Binding: binding})
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"hello", "world"} {
		got, err := a.Call(context.Background())
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
	if binding.Rebinds() != 2 {
		t.Errorf("Rebinds() = %d, want 2", binding.Rebinds())
	}
}

func TestCall_LowersArguments(t *testing.T) {
	mem := memory.NewBytes(memory.PageSize)
	var seen []uint64
	fn := fakeFunc(func(_ context.Context, params ...uint64) ([]uint64, error) {
		seen = params
		return []uint64{uint64(len(params))}, nil
	})
	a, err := New(Config{
		Func:      fn,
		Name:      "greet",
		Binding:   memory.NewBinding(mem),
		Allocator: abi.NewBumpAllocator(4096, 8192),
		Signature: abi.Signature{
			Params: []*abi.Type{abi.String(), abi.U32()},
			Result: abi.U32(),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := a.Call(context.Background(), "World", uint32(9))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != uint32(3) {
		t.Errorf("got %v, want 3", got)
	}
	if diff := cmp.Diff([]uint64{4096, 5, 9}, seen); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	if string(mem.Buffer()[4096:4101]) != "World" {
		t.Errorf("argument not written to memory")
	}

	if _, err := a.Call(context.Background(), "World"); err == nil {
		t.Error("expected arity error")
	}
}

func TestCall_NoMemory(t *testing.T) {
	a, err := New(Config{Func: returns(8, 3), Name: "f", Signature: abi.Signature{Result: abi.String()}})
	if err != nil {
		t.Fatal(err)
	}
	_, err = a.Call(context.Background())
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	a, _ = New(Config{Func: returns(7), Name: "g", Signature: abi.Signature{Result: abi.U32()}})
	if got, err := a.Call(context.Background()); err != nil || got != uint32(7) {
		t.Errorf("scalar call without memory = (%v, %v)", got, err)
	}
}

type staticCore struct {
	funcs map[string]wasmhost.Function
	mem   wasmhost.Memory
}

func (c *staticCore) Function(name string) wasmhost.Function {
	if f, ok := c.funcs[name]; ok {
		return f
	}
	return nil
}
func (c *staticCore) FunctionNames() []string               { return nil }
func (c *staticCore) Memory() wasmhost.Memory               { return c.mem }
func (c *staticCore) ExportedMemory(string) wasmhost.Memory { return c.mem }
func (c *staticCore) Close(context.Context) error           { return nil }

type staticInstantiator struct{ core linker.Core }

func (s staticInstantiator) Instantiate(context.Context, *loader.Module, linker.Imports) (linker.Core, error) {
	return s.core, nil
}

type noImports struct{}

func (noImports) Imports() []wasmhost.Import { return nil }

func TestForInstance(t *testing.T) {
	mem := pageWith(t, map[uint32][]byte{1024: []byte("hello")})
	post := &postRecorder{}
	var reallocCalls int
	core := &staticCore{
		mem: mem,
		funcs: map[string]wasmhost.Function{
			"hello":           returns(1024, 5),
			"cabi_post_hello": post,
			"cabi_realloc": fakeFunc(func(context.Context, ...uint64) ([]uint64, error) {
				reallocCalls++
				return []uint64{2048}, nil
			}),
			"echo": fakeFunc(func(_ context.Context, p ...uint64) ([]uint64, error) {
				return p, nil
			}),
		},
	}
	inst, err := linker.New(staticInstantiator{core}).Link(context.Background(),
		&loader.Module{Name: "greeter", Artifact: noImports{}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	hello, err := ForInstance(inst, "hello", abi.Signature{Result: abi.String(), PostReturn: "cabi_post_hello"})
	if err != nil {
		t.Fatal(err)
	}
	if got, err := hello.Call(context.Background()); err != nil || got != "hello" {
		t.Fatalf("hello() = (%v, %v)", got, err)
	}
	if len(post.calls) != 1 {
		t.Errorf("post-return calls = %d, want 1", len(post.calls))
	}

	echo, err := ForInstance(inst, "echo", abi.Signature{Params: []*abi.Type{abi.String()}, Result: abi.String()})
	if err != nil {
		t.Fatal(err)
	}
	if got, err := echo.Call(context.Background(), "abc"); err != nil || got != "abc" {
		t.Fatalf("echo() = (%v, %v)", got, err)
	}
	if reallocCalls != 1 {
		t.Errorf("realloc calls = %d, want 1", reallocCalls)
	}

	if _, err := ForInstance(inst, "absent", abi.Signature{}); err == nil {
		t.Error("expected error for a missing export")
	}
}

func TestCall_ScalarResultRevalidatesBinding(t *testing.T) {
	mem := pageWith(t, map[uint32][]byte{1024: []byte("hello")})
	binding := memory.NewBinding(mem)

	grows := fakeFunc(func(context.Context, ...uint64) ([]uint64, error) {
		mem.Grow(memory.PageSize)
		return []uint64{1}, nil
	})
	grow, err := New(Config{Func: grows, Name: "grow", Signature: abi.Signature{Result: abi.U32()}, Binding: binding})
	if err != nil {
		t.Fatal(err)
	}
	text, err := New(Config{Func: returns(1024, 5), Name: "text", Signature: abi.Signature{Result: abi.String()}, Binding: binding})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if got, err := text.Call(ctx); err != nil || got != "hello" {
		t.Fatalf("text() = (%v, %v), want hello", got, err)
	}
	if got, err := grow.Call(ctx); err != nil || got != uint32(1) {
		t.Fatalf("grow() = (%v, %v), want 1", got, err)
	}
	// The scalar call already observed the new buffer.
	if binding.Rebinds() != 2 {
		t.Errorf("Rebinds() after growth = %d, want 2", binding.Rebinds())
	}
	if got, err := text.Call(ctx); err != nil || got != "hello" {
		t.Fatalf("text() after growth = (%v, %v), want hello", got, err)
	}
	if binding.Rebinds() != 2 {
		t.Errorf("Rebinds() after second text = %d, want 2", binding.Rebinds())
	}
}
