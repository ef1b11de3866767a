package memory

import wasmhost "github.com/wippyai/wasm-host"

// PageSize is the WebAssembly page size in bytes.
const PageSize = 65536

// Bytes is an in-process linear memory. Grow always reallocates so that
// buffer replacement behaves like a real engine's growth.
type Bytes struct {
	buf []byte
}

// NewBytes returns a memory of size bytes.
func NewBytes(size int) *Bytes {
	return &Bytes{buf: make([]byte, size)}
}

func (m *Bytes) Buffer() []byte {
	return m.buf
}

// Grow appends delta zeroed bytes in a freshly allocated buffer.
func (m *Bytes) Grow(delta int) {
	buf := make([]byte, len(m.buf)+delta)
	copy(buf, m.buf)
	m.buf = buf
}

var _ wasmhost.Memory = (*Bytes)(nil)
