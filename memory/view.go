package memory

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/wippyai/wasm-host/errors"
)

// View is a bounds-checked accessor over one linear memory buffer.
// Slices returned by ReadBytes alias the buffer; copy before retaining.
type View struct {
	buf []byte
}

// NewView binds a view to buf.
func NewView(buf []byte) *View {
	return &View{buf: buf}
}

// Size returns the bound buffer length in bytes.
func (v *View) Size() int {
	return len(v.buf)
}

// Bound reports whether the view is bound to exactly buf.
func (v *View) Bound(buf []byte) bool {
	return sameBuffer(v.buf, buf)
}

func sameBuffer(a, b []byte) bool {
	return len(a) == len(b) && unsafe.SliceData(a) == unsafe.SliceData(b)
}

func (v *View) check(offset, length uint32) error {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(v.buf)) {
		return errors.MemoryFault(errors.PhaseMemory, nil, uint64(offset), uint64(length), len(v.buf))
	}
	return nil
}

// ReadBytes returns the bytes [offset, offset+length).
func (v *View) ReadBytes(offset, length uint32) ([]byte, error) {
	if err := v.check(offset, length); err != nil {
		return nil, err
	}
	end := int(offset) + int(length)
	return v.buf[offset:end:end], nil
}

func (v *View) ReadU8(offset uint32) (uint8, error) {
	if err := v.check(offset, 1); err != nil {
		return 0, err
	}
	return v.buf[offset], nil
}

func (v *View) ReadU16(offset uint32) (uint16, error) {
	if err := v.check(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(v.buf[offset:]), nil
}

// ReadU32 reads a little-endian u32.
func (v *View) ReadU32(offset uint32) (uint32, error) {
	if err := v.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(v.buf[offset:]), nil
}

func (v *View) ReadU64(offset uint32) (uint64, error) {
	if err := v.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(v.buf[offset:]), nil
}

func (v *View) ReadF32(offset uint32) (float32, error) {
	bits, err := v.ReadU32(offset)
	return math.Float32frombits(bits), err
}

func (v *View) ReadF64(offset uint32) (float64, error) {
	bits, err := v.ReadU64(offset)
	return math.Float64frombits(bits), err
}

// WriteBytes copies data to offset.
func (v *View) WriteBytes(offset uint32, data []byte) error {
	if uint64(len(data)) > math.MaxUint32 {
		return errors.MemoryFault(errors.PhaseMemory, nil, uint64(offset), uint64(len(data)), len(v.buf))
	}
	if err := v.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(v.buf[offset:], data)
	return nil
}

func (v *View) WriteU8(offset uint32, value uint8) error {
	if err := v.check(offset, 1); err != nil {
		return err
	}
	v.buf[offset] = value
	return nil
}

func (v *View) WriteU16(offset uint32, value uint16) error {
	if err := v.check(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(v.buf[offset:], value)
	return nil
}

func (v *View) WriteU32(offset uint32, value uint32) error {
	if err := v.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(v.buf[offset:], value)
	return nil
}

func (v *View) WriteU64(offset uint32, value uint64) error {
	if err := v.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(v.buf[offset:], value)
	return nil
}
