package wasmtest

import "bytes"

// Instruction encoders. Each returns the bytes of one instruction.

func I32Const(v int32) []byte {
	var b bytes.Buffer
	b.WriteByte(0x41)
	writeS32(&b, v)
	return b.Bytes()
}

func LocalGet(idx uint32) []byte  { return withU32(0x20, idx) }
func LocalSet(idx uint32) []byte  { return withU32(0x21, idx) }
func GlobalGet(idx uint32) []byte { return withU32(0x23, idx) }
func GlobalSet(idx uint32) []byte { return withU32(0x24, idx) }
func Call(idx uint32) []byte      { return withU32(0x10, idx) }

// I32Load loads with natural alignment at a static offset.
func I32Load(offset uint32) []byte {
	return append([]byte{0x28, 0x02}, u32(offset)...)
}

// I32Store stores with natural alignment at a static offset.
func I32Store(offset uint32) []byte {
	return append([]byte{0x36, 0x02}, u32(offset)...)
}

var (
	Unreachable = []byte{0x00}
	Drop        = []byte{0x1a}
	I32Add      = []byte{0x6a}
	I32Sub      = []byte{0x6b}
	I32Mul      = []byte{0x6c}
	I32And      = []byte{0x71}
	MemorySize  = []byte{0x3f, 0x00}
	MemoryGrow  = []byte{0x40, 0x00}
)

func withU32(op byte, v uint32) []byte {
	return append([]byte{op}, u32(v)...)
}

func u32(v uint32) []byte {
	var b bytes.Buffer
	writeU32(&b, v)
	return b.Bytes()
}
