// Package errors provides structured error types for the host-binding layer.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries a field path, Go and ABI type names, the
// offending value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLift, errors.KindTypeMismatch).
//		Path("user", "age").
//		GoType("string").
//		ABIType("u32").
//		Detail("cannot convert string to integer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MemoryFault(errors.PhaseLift, path, 1020, 8, 1024)
//	err := errors.Trap("greet", cause)
//
// Callers usually classify failures with the taxonomy sentinels:
//
//	if errors.Is(err, errors.ErrMemoryFault) { ... }
//
// ErrCompile, ErrLink, ErrTrap, ErrMemoryFault, ErrDecode and ErrTypeMismatch
// each match every Kind belonging to that class.
package errors
