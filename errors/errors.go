package errors

import (
	"fmt"
	"slices"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseCompile    Phase = "compile"     // module compilation
	PhaseLink       Phase = "link"        // instance linking
	PhaseCall       Phase = "call"        // export invocation
	PhaseLift       Phase = "lift"        // WASM to Go
	PhaseLower      Phase = "lower"       // Go to WASM
	PhasePostReturn Phase = "post-return" // guest buffer reclamation
	PhaseMemory     Phase = "memory"      // raw memory access
	PhaseLoad       Phase = "load"        // artifact sources and manifests
	PhaseParse      Phase = "parse"       // type expressions
)

// Kind categorizes the error
type Kind string

const (
	KindCompile        Kind = "compile"
	KindLink           Kind = "link"
	KindMissingImport  Kind = "missing_import"
	KindCycle          Kind = "cycle"
	KindInstantiation  Kind = "instantiation"
	KindTrap           Kind = "trap"
	KindMemoryFault    Kind = "memory_fault"
	KindInvalidUTF8    Kind = "invalid_utf8"
	KindInvalidData    Kind = "invalid_data"
	KindTypeMismatch   Kind = "type_mismatch"
	KindInvalidVariant Kind = "invalid_variant"
	KindOverflow       Kind = "overflow"
	KindAllocation     Kind = "allocation"
	KindUnsupported    Kind = "unsupported"
	KindNotFound       Kind = "not_found"
	KindInvalidInput   Kind = "invalid_input"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	GoType  string
	ABIType string
	Detail  string
	Path    []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	typed := e.GoType != "" || e.ABIType != ""
	if typed {
		b.WriteString(": ")
		switch {
		case e.GoType != "" && e.ABIType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", ABI type ")
			b.WriteString(e.ABIType)
		case e.GoType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		default:
			b.WriteString("ABI type ")
			b.WriteString(e.ABIType)
		}
	}

	if e.Detail != "" {
		if typed {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. An *Error target matches on
// phase and kind; a taxonomy sentinel matches any kind of its class.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case *Error:
		return e.Phase == t.Phase && e.Kind == t.Kind
	case *class:
		return slices.Contains(t.kinds, e.Kind)
	}
	return false
}

type class struct {
	name  string
	kinds []Kind
}

func (c *class) Error() string { return c.name }

// Taxonomy sentinels for use with errors.Is.
var (
	ErrCompile      error = &class{"compile error", []Kind{KindCompile}}
	ErrLink         error = &class{"link error", []Kind{KindLink, KindMissingImport, KindCycle}}
	ErrTrap         error = &class{"trap", []Kind{KindTrap}}
	ErrMemoryFault  error = &class{"memory fault", []Kind{KindMemoryFault}}
	ErrDecode       error = &class{"decode error", []Kind{KindInvalidUTF8, KindInvalidData}}
	ErrTypeMismatch error = &class{"type mismatch", []Kind{KindTypeMismatch, KindInvalidVariant, KindOverflow}}
)

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// ABIType sets the canonical ABI type name
func (b *Builder) ABIType(t string) *Builder {
	b.err.ABIType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Compile creates a compile error for a named module
func Compile(module string, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindCompile,
		Detail: fmt.Sprintf("compile module %q", module),
		Cause:  cause,
	}
}

// Link creates a link error for a named module
func Link(module, detail string, cause error) *Error {
	msg := fmt.Sprintf("link module %q", module)
	if detail != "" {
		msg += ": " + detail
	}
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindLink,
		Detail: msg,
		Cause:  cause,
	}
}

// Cycle creates a link error for modules that import each other
func Cycle(modules []string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindCycle,
		Detail: "import cycle between modules " + strings.Join(modules, ", "),
		Value:  modules,
	}
}

// Instantiate wraps the failure that aborted a world instantiation
func Instantiate(cause error) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindInstantiation,
		Detail: "instantiate world",
		Cause:  cause,
	}
}

// Trap creates a trap error for a faulted guest function
func Trap(phase Phase, function string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTrap,
		Detail: fmt.Sprintf("guest function %q trapped", function),
		Cause:  cause,
	}
}

// MemoryFault creates an out-of-bounds memory access error
func MemoryFault(phase Phase, path []string, offset, length uint64, size int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMemoryFault,
		Path:   path,
		Detail: fmt.Sprintf("range [%d, %d) exceeds memory size %d", offset, offset+length, size),
		Value:  offset,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, abiType string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindTypeMismatch,
		Path:    path,
		GoType:  goType,
		ABIType: abiType,
	}
}

// InvalidDiscriminant creates an invalid discriminant error for variants
func InvalidDiscriminant(phase Phase, path []string, disc uint32, cases int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidVariant,
		Path:   path,
		Detail: fmt.Sprintf("discriminant %d out of range (%d cases)", disc, cases),
		Value:  disc,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindOverflow,
		Path:    path,
		ABIType: targetType,
		Detail:  fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:   value,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Module string // e.g., "env"
	Name   string // e.g., "log"
}

// MissingImportsError lists every import a module needs that the import
// table could not provide
type MissingImportsError struct {
	Module  string
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "module#name" strings
func NewMissingImportsError(module string, imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Module:  module,
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		mod, name, _ := strings.Cut(imp, "#")
		result.Imports = append(result.Imports, MissingImport{Module: mod, Name: name})
	}
	return result
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[link] missing_import: no imports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "module %q is missing %d import(s):\n", e.Module, len(e.Imports))

	// Group by module for cleaner output
	byModule := make(map[string][]string)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byModule[imp.Module]; !exists {
			order = append(order, imp.Module)
		}
		byModule[imp.Module] = append(byModule[imp.Module], imp.Name)
	}

	for _, mod := range order {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, name := range byModule[mod] {
			b.WriteString("    - ")
			b.WriteString(name)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	if target == ErrLink {
		return true
	}
	_, ok := target.(*MissingImportsError)
	return ok
}

// MissingImports wraps a MissingImportsError as a link error
func MissingImports(module string, imports []string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindMissingImport,
		Detail: fmt.Sprintf("link module %q", module),
		Cause:  NewMissingImportsError(module, imports),
	}
}
