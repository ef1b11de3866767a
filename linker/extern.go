package linker

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero/api"

	wasmhost "github.com/wippyai/wasm-host"
)

// Extern is one importable entity: a function or memory exported by a
// linked instance, or a host function.
type Extern struct {
	// Instance is the core instance exporting the entity, nil for host
	// functions.
	Instance Core
	Func     wasmhost.Function
	Memory   wasmhost.Memory
	Host     api.GoModuleFunc
	// Plain is a host function over core values, called with exactly the
	// params the importing module declares.
	Plain HostCall
	// Export is the entity's export name within Instance.
	Export string
	Kind   wasmhost.ExternKind
}

// HostFunc wraps a Go function as a function extern. The function's core
// signature is taken from the importing module's declaration.
func HostFunc(fn api.GoModuleFunc) Extern {
	return Extern{Kind: wasmhost.ExternFunc, Host: fn}
}

// HostCall is a host function over core values. args holds the declared
// params only; result slots it does not fill read as zero.
type HostCall func(ctx context.Context, args []uint64) []uint64

// HostFuncOf wraps a plain function over core values.
func HostFuncOf(fn HostCall) Extern {
	return Extern{Kind: wasmhost.ExternFunc, Plain: fn}
}

func (e Extern) isHost() bool {
	return e.Host != nil || e.Plain != nil
}

// Key identifies an import.
type Key struct {
	Module string
	Name   string
}

func (k Key) String() string {
	return k.Module + "#" + k.Name
}

// Imports is an import resolution table.
type Imports map[Key]Extern

// Define adds or replaces the extern for module#name.
func (i Imports) Define(module, name string, ext Extern) {
	i[Key{Module: module, Name: name}] = ext
}

// Lookup returns the extern for module#name.
func (i Imports) Lookup(module, name string) (Extern, bool) {
	ext, ok := i[Key{Module: module, Name: name}]
	return ext, ok
}

// Merge copies every entry of other into i, overriding existing keys.
func (i Imports) Merge(other Imports) {
	for k, v := range other {
		i[k] = v
	}
}

// Keys returns the table's keys sorted by module, then name.
func (i Imports) Keys() []Key {
	keys := make([]Key, 0, len(i))
	for k := range i {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].Module != keys[b].Module {
			return keys[a].Module < keys[b].Module
		}
		return keys[a].Name < keys[b].Name
	})
	return keys
}
