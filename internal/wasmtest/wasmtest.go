// Package wasmtest assembles small core WebAssembly binaries for tests.
// It covers only what the end-to-end tests need: function types, function
// and memory imports, a single memory, mutable i32 globals, exports, code
// and active data segments.
package wasmtest

import "bytes"

// ValType is a core value type encoding.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
	F32 ValType = 0x7d
	F64 ValType = 0x7c
)

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11

	externFunc   = 0x00
	externMemory = 0x02
	externGlobal = 0x03
)

type funcType struct {
	params  []ValType
	results []ValType
}

type importEntry struct {
	module, name string
	kind         byte
	typeIdx      uint32
	minPages     uint32
}

type funcEntry struct {
	typeIdx uint32
	locals  []ValType
	body    []byte
}

type exportEntry struct {
	name  string
	kind  byte
	index uint32
}

type dataEntry struct {
	offset int32
	data   []byte
}

// Module is a module under construction. Imported functions must be added
// before defined ones so that indices stay stable.
type Module struct {
	types      []funcType
	imports    []importEntry
	funcs      []funcEntry
	globals    []int32
	exports    []exportEntry
	data       []dataEntry
	memory     *uint32
	funcImport uint32
}

func New() *Module {
	return &Module{}
}

func (m *Module) typeIndex(params, results []ValType) uint32 {
	for i, t := range m.types {
		if bytes.Equal(valBytes(t.params), valBytes(params)) && bytes.Equal(valBytes(t.results), valBytes(results)) {
			return uint32(i)
		}
	}
	m.types = append(m.types, funcType{params: params, results: results})
	return uint32(len(m.types) - 1)
}

// ImportFunc adds a function import and returns its function index.
func (m *Module) ImportFunc(module, name string, params, results []ValType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmtest: function imports must precede defined functions")
	}
	m.imports = append(m.imports, importEntry{
		module:  module,
		name:    name,
		kind:    externFunc,
		typeIdx: m.typeIndex(params, results),
	})
	m.funcImport++
	return m.funcImport - 1
}

// ImportMemory adds a memory import with the given minimum page count.
func (m *Module) ImportMemory(module, name string, minPages uint32) {
	m.imports = append(m.imports, importEntry{module: module, name: name, kind: externMemory, minPages: minPages})
}

// Memory defines the module's memory, exported under export when non-empty.
func (m *Module) Memory(minPages uint32, export string) {
	m.memory = &minPages
	if export != "" {
		m.exports = append(m.exports, exportEntry{name: export, kind: externMemory})
	}
}

// Global defines a mutable i32 global and returns its index.
func (m *Module) Global(init int32) uint32 {
	m.globals = append(m.globals, init)
	return uint32(len(m.globals) - 1)
}

// ExportGlobal exports a global by index.
func (m *Module) ExportGlobal(name string, idx uint32) {
	m.exports = append(m.exports, exportEntry{name: name, kind: externGlobal, index: idx})
}

// Func defines a function and exports it under export when non-empty.
// body must not include the final end opcode.
func (m *Module) Func(export string, params, results, locals []ValType, body ...[]byte) uint32 {
	idx := m.funcImport + uint32(len(m.funcs))
	m.funcs = append(m.funcs, funcEntry{
		typeIdx: m.typeIndex(params, results),
		locals:  locals,
		body:    bytes.Join(body, nil),
	})
	if export != "" {
		m.exports = append(m.exports, exportEntry{name: export, kind: externFunc, index: idx})
	}
	return idx
}

// ExportFunc re-exports an existing function index, e.g. an import.
func (m *Module) ExportFunc(name string, idx uint32) {
	m.exports = append(m.exports, exportEntry{name: name, kind: externFunc, index: idx})
}

// Data adds an active data segment for memory 0.
func (m *Module) Data(offset int32, data []byte) {
	m.data = append(m.data, dataEntry{offset: offset, data: data})
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	var w bytes.Buffer
	w.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	if len(m.types) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.types)))
		for _, t := range m.types {
			sec.WriteByte(0x60)
			writeVals(&sec, t.params)
			writeVals(&sec, t.results)
		}
		writeSection(&w, sectionType, sec.Bytes())
	}

	if len(m.imports) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.imports)))
		for _, imp := range m.imports {
			writeName(&sec, imp.module)
			writeName(&sec, imp.name)
			sec.WriteByte(imp.kind)
			if imp.kind == externFunc {
				writeU32(&sec, imp.typeIdx)
			} else {
				sec.WriteByte(0x00)
				writeU32(&sec, imp.minPages)
			}
		}
		writeSection(&w, sectionImport, sec.Bytes())
	}

	if len(m.funcs) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			writeU32(&sec, f.typeIdx)
		}
		writeSection(&w, sectionFunction, sec.Bytes())
	}

	if m.memory != nil {
		var sec bytes.Buffer
		writeU32(&sec, 1)
		sec.WriteByte(0x00)
		writeU32(&sec, *m.memory)
		writeSection(&w, sectionMemory, sec.Bytes())
	}

	if len(m.globals) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.globals)))
		for _, g := range m.globals {
			sec.WriteByte(byte(I32))
			sec.WriteByte(0x01)
			sec.Write(I32Const(g))
			sec.WriteByte(0x0b)
		}
		writeSection(&w, sectionGlobal, sec.Bytes())
	}

	if len(m.exports) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.exports)))
		for _, e := range m.exports {
			writeName(&sec, e.name)
			sec.WriteByte(e.kind)
			writeU32(&sec, e.index)
		}
		writeSection(&w, sectionExport, sec.Bytes())
	}

	if len(m.funcs) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			var body bytes.Buffer
			writeU32(&body, uint32(len(f.locals)))
			for _, l := range f.locals {
				writeU32(&body, 1)
				body.WriteByte(byte(l))
			}
			body.Write(f.body)
			body.WriteByte(0x0b)
			writeU32(&sec, uint32(body.Len()))
			sec.Write(body.Bytes())
		}
		writeSection(&w, sectionCode, sec.Bytes())
	}

	if len(m.data) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.data)))
		for _, d := range m.data {
			sec.WriteByte(0x00)
			sec.Write(I32Const(d.offset))
			sec.WriteByte(0x0b)
			writeU32(&sec, uint32(len(d.data)))
			sec.Write(d.data)
		}
		writeSection(&w, sectionData, sec.Bytes())
	}

	return w.Bytes()
}

func valBytes(vs []ValType) []byte {
	out := make([]byte, len(vs))
	for i, v := range vs {
		out[i] = byte(v)
	}
	return out
}

func writeSection(w *bytes.Buffer, id byte, data []byte) {
	w.WriteByte(id)
	writeU32(w, uint32(len(data)))
	w.Write(data)
}

func writeVals(w *bytes.Buffer, vs []ValType) {
	writeU32(w, uint32(len(vs)))
	w.Write(valBytes(vs))
}

func writeName(w *bytes.Buffer, s string) {
	writeU32(w, uint32(len(s)))
	w.WriteString(s)
}

func writeU32(w *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func writeS32(w *bytes.Buffer, v int32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			w.WriteByte(b)
			return
		}
		w.WriteByte(b | 0x80)
	}
}
