// Package memory provides validated views over WebAssembly linear memory.
//
// A View is bound to one backing buffer. Growing a linear memory may replace
// that buffer, after which any View bound to the old one reads stale bytes.
// A Binding owns the View for one instance and rebuilds it whenever the live
// buffer's identity (data pointer and length) no longer matches:
//
//	b := memory.NewBinding(memory.Wazero(mod.Memory()))
//	v, err := b.View() // call at the start of every decode pass
//	s, err := v.ReadBytes(ptr, n)
//
// Every read and write is bounds checked and fails with an
// errors.KindMemoryFault error rather than panicking.
package memory
