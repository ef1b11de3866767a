package memory

import (
	"github.com/tetratelabs/wazero/api"

	wasmhost "github.com/wippyai/wasm-host"
)

// WazeroMemory adapts a wazero memory to wasmhost.Memory.
type WazeroMemory struct {
	mem api.Memory
}

// Wazero wraps mem. It returns nil when mem is nil so callers can pass
// api.Module.Memory() directly.
func Wazero(mem api.Memory) wasmhost.Memory {
	if mem == nil {
		return nil
	}
	return &WazeroMemory{mem: mem}
}

// Buffer returns wazero's view of the whole memory. Growth either reslices
// or reallocates the underlying buffer; both change its identity.
func (m *WazeroMemory) Buffer() []byte {
	buf, ok := m.mem.Read(0, m.mem.Size())
	if !ok {
		return nil
	}
	return buf
}

// Grow grows the memory by delta pages, returning the previous page count.
func (m *WazeroMemory) Grow(delta uint32) (uint32, bool) {
	return m.mem.Grow(delta)
}

var _ wasmhost.Memory = (*WazeroMemory)(nil)
