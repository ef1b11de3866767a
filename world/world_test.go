package world

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/abi"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/loader"
)

type fakeArtifact []wasmhost.Import

func (a fakeArtifact) Imports() []wasmhost.Import { return a }

func funcImport(module, name string) wasmhost.Import {
	return wasmhost.Import{Module: module, Name: name, Kind: wasmhost.ExternFunc}
}

type fakeFunc func(ctx context.Context, params ...uint64) ([]uint64, error)

func (f fakeFunc) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	return f(ctx, params...)
}

type fakeCore struct {
	funcs  map[string]wasmhost.Function
	closed *[]string
	name   string
}

func (c *fakeCore) Function(name string) wasmhost.Function {
	if f, ok := c.funcs[name]; ok {
		return f
	}
	return nil
}
func (c *fakeCore) FunctionNames() []string               { return nil }
func (c *fakeCore) Memory() wasmhost.Memory               { return nil }
func (c *fakeCore) ExportedMemory(string) wasmhost.Memory { return nil }
func (c *fakeCore) Close(context.Context) error {
	*c.closed = append(*c.closed, c.name)
	return nil
}

// recorder instantiates fake cores and records link order and imports.
type recorder struct {
	mu      sync.Mutex
	exports map[string]map[string]wasmhost.Function
	fail    map[string]error
	linked  []string
	closed  []string
	seen    map[string]linker.Imports
}

func newRecorder() *recorder {
	return &recorder{
		exports: map[string]map[string]wasmhost.Function{},
		fail:    map[string]error{},
		seen:    map[string]linker.Imports{},
	}
}

func (r *recorder) Instantiate(_ context.Context, mod *loader.Module, imports linker.Imports) (linker.Core, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[mod.Name]; err != nil {
		return nil, err
	}
	r.linked = append(r.linked, mod.Name)
	r.seen[mod.Name] = imports
	return &fakeCore{funcs: r.exports[mod.Name], closed: &r.closed, name: mod.Name}, nil
}

func newDeps(arts map[string]fakeArtifact, inst linker.Instantiator) Deps {
	return Deps{
		Loader: loader.New(loader.CompilerFunc(func(_ context.Context, name string) (loader.Artifact, error) {
			a, ok := arts[name]
			if !ok {
				return nil, fmt.Errorf("no module %q", name)
			}
			return a, nil
		})),
		Linker: linker.New(inst),
	}
}

func constant(v uint64) wasmhost.Function {
	return fakeFunc(func(context.Context, ...uint64) ([]uint64, error) { return []uint64{v}, nil })
}

func TestInstantiate_LinksDependenciesFirst(t *testing.T) {
	rec := newRecorder()
	rec.exports["a"] = map[string]wasmhost.Function{"helper": constant(1)}
	rec.exports["b"] = map[string]wasmhost.Function{"run": constant(42)}

	deps := newDeps(map[string]fakeArtifact{
		"b": {funcImport("a", "helper"), funcImport("env", "log")},
		"a": nil,
	}, rec)
	host := linker.Imports{}
	host.Define("env", "log", linker.HostFuncOf(func(context.Context, []uint64) []uint64 { return nil }))

	w, err := Instantiate(context.Background(), deps, Declaration{
		Modules: []string{"b", "a"},
		Host:    host,
		Exports: []Export{{Name: "run", Signature: abi.Signature{Result: abi.U32()}}},
	})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer w.Close(context.Background())

	if diff := cmp.Diff([]string{"a", "b"}, rec.linked); diff != "" {
		t.Errorf("link order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, w.Modules()); diff != "" {
		t.Errorf("Modules() mismatch (-want +got):\n%s", diff)
	}

	ext, ok := rec.seen["b"].Lookup("a", "helper")
	if !ok || ext.Export != "helper" || ext.Instance == nil {
		t.Errorf("b's a#helper import = %+v, want a's export", ext)
	}
	if _, ok := rec.seen["b"].Lookup("env", "log"); !ok {
		t.Error("b's env#log import was not taken from the host table")
	}

	got, err := w.Call(context.Background(), "run")
	if err != nil || got != uint32(42) {
		t.Errorf("run() = (%v, %v), want 42", got, err)
	}
	if diff := cmp.Diff([]string{"run"}, w.Exports()); diff != "" {
		t.Errorf("Exports() mismatch (-want +got):\n%s", diff)
	}
}

func TestInstantiate_LinkErrorAborts(t *testing.T) {
	rec := newRecorder()
	rec.fail["a"] = errors.Link("a", "start function trapped", nil)

	deps := newDeps(map[string]fakeArtifact{
		"a": nil,
		"b": {funcImport("a", "helper")},
	}, rec)

	w, err := Instantiate(context.Background(), deps, Declaration{Modules: []string{"a", "b"}})
	if w != nil {
		t.Fatal("expected no world")
	}
	if !stderrors.Is(err, errors.ErrLink) {
		t.Fatalf("expected link error, got %v", err)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindInstantiation {
		t.Errorf("expected instantiation wrapper, got %v", err)
	}
	if len(rec.linked) != 0 {
		t.Errorf("linked %v after a failure", rec.linked)
	}
}

func TestInstantiate_ClosesLinkedOnFailure(t *testing.T) {
	rec := newRecorder()
	rec.fail["c"] = fmt.Errorf("engine refused")

	deps := newDeps(map[string]fakeArtifact{"a": nil, "b": nil, "c": nil}, rec)
	_, err := Instantiate(context.Background(), deps, Declaration{Modules: []string{"a", "b", "c"}})
	if !stderrors.Is(err, errors.ErrLink) {
		t.Fatalf("expected link error, got %v", err)
	}
	if diff := cmp.Diff([]string{"b", "a"}, rec.closed); diff != "" {
		t.Errorf("closed mismatch (-want +got):\n%s", diff)
	}
}

func TestInstantiate_MissingImport(t *testing.T) {
	rec := newRecorder()
	deps := newDeps(map[string]fakeArtifact{
		"a": nil,
		"b": {funcImport("a", "absent"), funcImport("env", "clock")},
	}, rec)

	_, err := Instantiate(context.Background(), deps, Declaration{Modules: []string{"a", "b"}})
	var missing *errors.MissingImportsError
	if !stderrors.As(err, &missing) {
		t.Fatalf("expected missing imports, got %v", err)
	}
	if diff := cmp.Diff([]string{"a"}, rec.closed); diff != "" {
		t.Errorf("closed mismatch (-want +got):\n%s", diff)
	}
}

func TestInstantiate_CompileErrorAborts(t *testing.T) {
	rec := newRecorder()
	deps := newDeps(map[string]fakeArtifact{"a": nil}, rec)

	_, err := Instantiate(context.Background(), deps, Declaration{Modules: []string{"a", "ghost"}})
	if !stderrors.Is(err, errors.ErrCompile) {
		t.Fatalf("expected compile error, got %v", err)
	}
	if len(rec.linked) != 0 {
		t.Errorf("linked %v despite a compile failure", rec.linked)
	}
}

func TestInstantiate_Cycle(t *testing.T) {
	rec := newRecorder()
	deps := newDeps(map[string]fakeArtifact{
		"a": {funcImport("b", "f")},
		"b": {funcImport("a", "g")},
		"c": nil,
	}, rec)

	_, err := Instantiate(context.Background(), deps, Declaration{Modules: []string{"c", "a", "b"}})
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("expected structured error, got %v", err)
	}
	if !stderrors.Is(err, errors.ErrLink) {
		t.Errorf("cycle should be a link error: %v", err)
	}
	var cycle *errors.Error
	for cur := error(e); cur != nil; cur = stderrors.Unwrap(cur) {
		if ce, ok := cur.(*errors.Error); ok && ce.Kind == errors.KindCycle {
			cycle = ce
		}
	}
	if cycle == nil {
		t.Fatalf("no cycle error in chain: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, cycle.Value); diff != "" {
		t.Errorf("cycle members mismatch (-want +got):\n%s", diff)
	}
	if len(rec.linked) != 0 {
		t.Errorf("linked %v despite a cycle", rec.linked)
	}
}

func TestInstantiate_MissingExportAborts(t *testing.T) {
	rec := newRecorder()
	deps := newDeps(map[string]fakeArtifact{"a": nil}, rec)

	_, err := Instantiate(context.Background(), deps, Declaration{
		Modules: []string{"a"},
		Exports: []Export{{Name: "run"}},
	})
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindInstantiation {
		t.Fatalf("expected instantiation error, got %v", err)
	}
	if diff := cmp.Diff([]string{"a"}, rec.closed); diff != "" {
		t.Errorf("closed mismatch (-want +got):\n%s", diff)
	}
}

func TestInstantiate_ExportOnOtherModule(t *testing.T) {
	rec := newRecorder()
	rec.exports["lib"] = map[string]wasmhost.Function{"impl": constant(7)}
	deps := newDeps(map[string]fakeArtifact{"app": nil, "lib": nil}, rec)

	w, err := Instantiate(context.Background(), deps, Declaration{
		Modules: []string{"app", "lib"},
		Exports: []Export{{Name: "seven", Module: "lib", Func: "impl", Signature: abi.Signature{Result: abi.U8()}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got, err := w.Call(context.Background(), "seven"); err != nil || got != uint8(7) {
		t.Errorf("seven() = (%v, %v)", got, err)
	}
	if _, err := w.Call(context.Background(), "eight"); err == nil {
		t.Error("expected not found for an undeclared export")
	}
	if _, ok := w.Instance("lib"); !ok {
		t.Error("Instance(lib) not found")
	}
}

func TestDeclaration_Validate(t *testing.T) {
	tests := []struct {
		name string
		decl Declaration
		ok   bool
	}{
		{"valid", Declaration{Modules: []string{"a"}, Exports: []Export{{Name: "f"}}}, true},
		{"explicit primary", Declaration{Modules: []string{"a", "b"}, Primary: "b"}, true},
		{"no modules", Declaration{}, false},
		{"duplicate module", Declaration{Modules: []string{"a", "a"}}, false},
		{"empty module", Declaration{Modules: []string{""}}, false},
		{"undeclared primary", Declaration{Modules: []string{"a"}, Primary: "b"}, false},
		{"unnamed export", Declaration{Modules: []string{"a"}, Exports: []Export{{}}}, false},
		{"duplicate export", Declaration{Modules: []string{"a"}, Exports: []Export{{Name: "f"}, {Name: "f"}}}, false},
		{"export module", Declaration{Modules: []string{"a"}, Exports: []Export{{Name: "f", Module: "z"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decl.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
