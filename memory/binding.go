package memory

import (
	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/errors"
)

// Binding caches the View of one instance's memory and rebuilds it when the
// memory's backing buffer is replaced. A Binding is owned by a single
// instance and is not safe for concurrent use.
type Binding struct {
	mem     wasmhost.Memory
	view    *View
	rebinds int
}

// NewBinding returns a binding over mem. mem may be nil for modules that
// neither define nor import a memory; View then fails.
func NewBinding(mem wasmhost.Memory) *Binding {
	return &Binding{mem: mem}
}

// View validates the cached view against the live buffer and returns it,
// constructing a new view first if the buffer identity changed.
func (b *Binding) View() (*View, error) {
	if b.mem == nil {
		return nil, errors.NotFound(errors.PhaseMemory, "memory", "linear memory")
	}
	buf := b.mem.Buffer()
	if b.view == nil || !b.view.Bound(buf) {
		b.view = NewView(buf)
		b.rebinds++
	}
	return b.view, nil
}

// Memory returns the underlying memory, or nil.
func (b *Binding) Memory() wasmhost.Memory {
	return b.mem
}

// Rebinds counts how many views this binding has constructed.
func (b *Binding) Rebinds() int {
	return b.rebinds
}
