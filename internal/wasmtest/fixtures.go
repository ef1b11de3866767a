package wasmtest

// Greeter returns a module with one page of exported memory that follows
// the canonical ABI conventions the host relies on:
//
//	hello() -> (ptr, len)        "hello" stored at 1024, direct return
//	echo(ptr, len) -> retptr     stores (ptr, len) at 16 and returns 16
//	bad() -> (ptr, len)          (65530, 10), past the end of one page
//	trap() -> (ptr, len)         unreachable
//	grow() -> old_pages          grows memory by one page
//	cabi_realloc(old, size, align, new) -> ptr   bump allocator from 4096
//	cabi_post_{hello,echo,bad}   increment the exported post_count global
func Greeter() []byte {
	m := New()
	m.Memory(1, "memory")
	heap := m.Global(4096)
	posts := m.Global(0)
	m.ExportGlobal("post_count", posts)
	m.Data(1024, []byte("hello"))

	ptrLen := []ValType{I32, I32}
	one := []ValType{I32}

	m.Func("hello", nil, ptrLen, nil, I32Const(1024), I32Const(5))
	m.Func("echo", ptrLen, one, nil,
		I32Const(16), LocalGet(0), I32Store(0),
		I32Const(16), LocalGet(1), I32Store(4),
		I32Const(16),
	)
	m.Func("bad", nil, ptrLen, nil, I32Const(65530), I32Const(10))
	m.Func("trap", nil, ptrLen, nil, Unreachable)
	m.Func("grow", nil, one, nil, I32Const(1), MemoryGrow)

	// ptr = heap; heap = (heap + new_size + 7) & -8
	m.Func("cabi_realloc", []ValType{I32, I32, I32, I32}, one, nil,
		GlobalGet(heap),
		GlobalGet(heap), LocalGet(3), I32Add, I32Const(7), I32Add, I32Const(-8), I32And,
		GlobalSet(heap),
	)

	count := [][]byte{GlobalGet(posts), I32Const(1), I32Add, GlobalSet(posts)}
	m.Func("cabi_post_hello", ptrLen, nil, nil, count...)
	m.Func("cabi_post_echo", one, nil, nil, count...)
	m.Func("cabi_post_bad", ptrLen, nil, nil, count...)

	return m.Bytes()
}

// Lib exports double(x) -> x+x.
func Lib() []byte {
	m := New()
	m.Func("double", []ValType{I32}, []ValType{I32}, nil, LocalGet(0), LocalGet(0), I32Add)
	return m.Bytes()
}

// App imports double from lib and log from host, and exports
// quad(x) -> double(double(x)) and notify(x) which calls log(x).
func App(lib, host string) []byte {
	m := New()
	double := m.ImportFunc(lib, "double", []ValType{I32}, []ValType{I32})
	log := m.ImportFunc(host, "log", []ValType{I32}, nil)
	m.Func("quad", []ValType{I32}, []ValType{I32}, nil, LocalGet(0), Call(double), Call(double))
	m.Func("notify", []ValType{I32}, nil, nil, LocalGet(0), Call(log))
	return m.Bytes()
}

// Importer requires a memory and a function from mod; it cannot link
// without them.
func Importer(mod string) []byte {
	m := New()
	m.ImportFunc(mod, "missing", nil, nil)
	m.ImportMemory(mod, "memory", 1)
	m.Func("noop", nil, nil, nil)
	return m.Bytes()
}
