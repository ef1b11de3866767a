package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Source yields the binary for a module name.
type Source interface {
	Bytes(ctx context.Context, name string) ([]byte, error)
}

// DirSource reads <dir>/<name>.wasm.
type DirSource string

func (d DirSource) Bytes(_ context.Context, name string) ([]byte, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid module name %q", name)
	}
	return os.ReadFile(filepath.Join(string(d), name+".wasm"))
}

// MapSource serves binaries from memory.
type MapSource map[string][]byte

func (m MapSource) Bytes(_ context.Context, name string) ([]byte, error) {
	b, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("no binary for module %q", name)
	}
	return b, nil
}
