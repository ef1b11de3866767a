package wasmhost

import (
	"context"
	"fmt"
)

// Function is a callable core export. api.Function from wazero satisfies it.
type Function interface {
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

// Memory exposes the current backing buffer of a linear memory.
// The returned slice is replaced, not resized, when the memory grows.
type Memory interface {
	Buffer() []byte
}

// ExternKind is the kind of an importable or exportable entity.
type ExternKind uint8

const (
	ExternFunc ExternKind = iota
	ExternMemory
)

func (k ExternKind) String() string {
	switch k {
	case ExternFunc:
		return "func"
	case ExternMemory:
		return "memory"
	default:
		return fmt.Sprintf("extern(%d)", uint8(k))
	}
}

// Import names one entity a core module requires: (module-name, export-name).
type Import struct {
	Module string
	Name   string
	Kind   ExternKind
}

// Key returns the "module#name" form used in diagnostics.
func (i Import) Key() string {
	return i.Module + "#" + i.Name
}

func (i Import) String() string {
	return i.Key() + " (" + i.Kind.String() + ")"
}
