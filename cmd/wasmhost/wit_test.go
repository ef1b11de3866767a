package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/abi"
)

// greeterWIT is the JSON form of:
//
//	package demo:greeter;
//	interface tools { count: func(items: bytes) -> u32; }
//	world greeter {
//	  type bytes = list<u8>;
//	  export greet: func(who: string, data: bytes) -> string;
//	  export tools;
//	}
const greeterWIT = `{
  "worlds": [
    {
      "name": "greeter",
      "imports": {},
      "exports": {
        "greet": {
          "function": {
            "name": "greet",
            "kind": "freestanding",
            "params": [{"name": "who", "type": "string"}, {"name": "data", "type": 0}],
            "result": "string"
          }
        },
        "tools": {"interface": {"id": 0}}
      },
      "package": 0
    }
  ],
  "interfaces": [
    {
      "name": "tools",
      "types": {},
      "functions": {
        "count": {
          "name": "count",
          "kind": "freestanding",
          "params": [{"name": "items", "type": 0}],
          "result": "u32"
        }
      },
      "package": 0
    }
  ],
  "types": [
    {"name": "bytes", "kind": {"list": "u8"}, "owner": {"world": 0}}
  ],
  "packages": [
    {"name": "demo:greeter", "interfaces": {"tools": 0}, "worlds": {"greeter": 0}}
  ]
}`

const witManifest = `
modules = ["app"]
wit = "greeter.wit.json"

[[exports]]
name = "greet"

[[exports]]
name = "count"
wit = "tools#count"

[[exports]]
name = "ping"
result = "u32"
`

func decodeGreeterWIT(t *testing.T) *wit.Resolve {
	t.Helper()
	res, err := wit.DecodeJSON(strings.NewReader(greeterWIT))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	return res
}

func TestLoadManifest_WITSignatures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "world.toml")
	if err := os.WriteFile(path, []byte(witManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "greeter.wit.json"), []byte(greeterWIT), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	decl, err := m.Declaration(zap.NewNop())
	if err != nil {
		t.Fatalf("Declaration: %v", err)
	}

	got := make(map[string]string)
	for _, e := range decl.Exports {
		got[e.Name] = e.Signature.String()
	}
	want := map[string]string{
		"greet": "func(string, bytes) -> string",
		"count": "func(bytes) -> u32",
		"ping":  "func() -> u32",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("signatures mismatch (-want +got):\n%s", diff)
	}

	greet := decl.Exports[0]
	if greet.Signature.Convention != abi.Indirect {
		t.Errorf("greet convention = %v, want indirect", greet.Signature.Convention)
	}
	if kind := greet.Signature.Params[1].Kind(); kind != abi.KindList {
		t.Errorf("data param kind = %v, want list", kind)
	}
	if diff := cmp.Diff([]string{"who", "data"}, m.Exports[0].paramNames()); diff != "" {
		t.Errorf("param names mismatch (-want +got):\n%s", diff)
	}
}

func TestBindWIT_Errors(t *testing.T) {
	tests := []struct {
		name string
		m    Manifest
	}{
		{"unknown function", Manifest{Exports: []ExportDecl{{Name: "f", WIT: "nope"}}}},
		{"wit with explicit types", Manifest{Exports: []ExportDecl{{Name: "greet", WIT: "greet", Result: "u32"}}}},
		{"unknown world", Manifest{World: "other"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.m.bindWIT(decodeGreeterWIT(t)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestBindWIT_UnmatchedExportKeepsDeclaration(t *testing.T) {
	m := Manifest{Exports: []ExportDecl{{Name: "noop"}}}
	if err := m.bindWIT(decodeGreeterWIT(t)); err != nil {
		t.Fatalf("bindWIT: %v", err)
	}
	exp, err := m.Exports[0].export()
	if err != nil {
		t.Fatal(err)
	}
	if got := exp.Signature.String(); got != "func()" {
		t.Errorf("noop signature = %q, want func()", got)
	}
}
