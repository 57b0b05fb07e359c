package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode   Phase = "decode"   // binary module decoding
	PhaseValidate Phase = "validate" // code compilation and validation
	PhaseLinking  Phase = "linking"  // import resolution and instantiation
	PhaseRuntime  Phase = "runtime"  // traps during execution
	PhaseLoad     Phase = "load"     // configuration and file loading
	PhaseHost     Phase = "host"     // host module registration
)

// Kind categorizes the error
type Kind string

// Structural kinds, raised while decoding and validating.
const (
	KindInvalidData    Kind = "invalid_data"
	KindSizeMismatch   Kind = "size_mismatch"
	KindUnknownOpcode  Kind = "unknown_opcode"
	KindInvalidType    Kind = "invalid_type"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindNotDeclared    Kind = "not_declared"
	KindStackMismatch  Kind = "stack_mismatch"
	KindImmutable      Kind = "immutable_global"
	KindUnsupported    Kind = "unsupported"
	KindOverflow       Kind = "overflow"
	KindInvalidUTF8    Kind = "invalid_utf8"
	KindTypeMismatch   Kind = "type_mismatch"
	KindInvalidInput   Kind = "invalid_input"
	KindNotFound       Kind = "not_found"
	KindRegistration   Kind = "registration"
	KindMissingImport  Kind = "missing_import"
	KindMissingModule  Kind = "missing_module"
	KindPendingGlobal  Kind = "pending_global"
	KindInstantiation  Kind = "instantiation"
	KindNotInitialized Kind = "not_initialized"
)

// Trap kinds, raised with PhaseRuntime.
const (
	KindUnreachable           Kind = "unreachable"
	KindMemoryOutOfBounds     Kind = "memory_out_of_bounds"
	KindTableOutOfBounds      Kind = "table_out_of_bounds"
	KindUninitializedElement  Kind = "uninitialized_element"
	KindIndirectCallMismatch  Kind = "indirect_call_type_mismatch"
	KindDivideByZero          Kind = "integer_divide_by_zero"
	KindIntegerOverflow       Kind = "integer_overflow"
	KindInvalidConversion     Kind = "invalid_conversion_to_integer"
	KindCallStackExhausted    Kind = "call_stack_exhausted"
	KindInterrupted           Kind = "interrupted"
	KindHostFunctionFailure   Kind = "host_function_failure"
	KindUnresolvedCallHandle  Kind = "unresolved_call_handle"
	KindArgumentCountMismatch Kind = "argument_count_mismatch"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
	Offset int // byte offset into the module or function body, -1 when unknown
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

	if e.Offset > 0 {
		fmt.Fprintf(&b, " (offset 0x%x)", e.Offset)
	}

	if e.Detail != "" {
		b.WriteString(": ")
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

// Is reports whether target matches this error. A target with an empty Kind
// matches every error of the same Phase.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.Kind == "" {
			return e.Phase == t.Phase
		}
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// WithPath returns a copy of e with the given path segments prepended.
func (e *Error) WithPath(path ...string) *Error {
	c := *e
	c.Path = append(append([]string(nil), path...), e.Path...)
	return &c
}

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

// Path sets the location path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Offset sets the byte offset
func (b *Builder) Offset(off int) *Builder {
	b.err.Offset = off
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

// Phase predicates

func hasPhase(err error, phase Phase) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Phase == phase
	}
	var mi *MissingImportsError
	if phase == PhaseLinking && stderrors.As(err, &mi) {
		return true
	}
	return false
}

// IsDecode reports whether err is a structural decoding error.
func IsDecode(err error) bool { return hasPhase(err, PhaseDecode) }

// IsValidation reports whether err was raised by the code compiler.
func IsValidation(err error) bool { return hasPhase(err, PhaseValidate) }

// IsLink reports whether err is a link error.
func IsLink(err error) bool { return hasPhase(err, PhaseLinking) }

// IsTrap reports whether err is a run-time trap.
func IsTrap(err error) bool { return hasPhase(err, PhaseRuntime) }

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Convenience constructors for common error patterns

// Decode creates a decoding error for a section.
func Decode(kind Kind, section string, offset int, detail string, args ...any) *Error {
	return New(PhaseDecode, kind).Path(section).Offset(offset).Detail(detail, args...).Build()
}

// Validation creates a compile-time validation error.
func Validation(kind Kind, path []string, offset int, detail string, args ...any) *Error {
	return New(PhaseValidate, kind).Path(path...).Offset(offset).Detail(detail, args...).Build()
}

// Trap creates a run-time trap.
func Trap(kind Kind, detail string, args ...any) *Error {
	return New(PhaseRuntime, kind).Detail(detail, args...).Build()
}

// Link creates a link error.
func Link(kind Kind, module, name string, detail string, args ...any) *Error {
	b := New(PhaseLinking, kind).Detail(detail, args...)
	if name != "" {
		b.Path(module, name)
	} else if module != "" {
		b.Path(module)
	}
	return b.Build()
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

// Unsupported creates an unsupported feature error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// NotDeclared creates an error for an index that lies inside the announced
// range of a section but has not been registered yet.
func NotDeclared(phase Phase, path []string, index, declared int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotDeclared,
		Path:   path,
		Detail: fmt.Sprintf("index %d not yet declared (%d registered)", index, declared),
		Value:  index,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
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
	Name   string // e.g., "print_i32"
	Kind   string // func, table, memory, global
}

// MissingImportsError is returned when linking fails because exporting
// modules or their exports are absent.
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "module#name" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		mod, name := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Module: mod,
			Name:   name,
		})
	}
	return result
}

func parseImportKey(key string) (module, name string) {
	mod, name, found := strings.Cut(key, "#")
	if found {
		return mod, name
	}
	return key, ""
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[linking] missing_import: no imports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[linking] missing %d import(s):\n", len(e.Imports))

	// Group by module for cleaner output
	byMod := make(map[string][]string)
	var modOrder []string
	for _, imp := range e.Imports {
		if _, exists := byMod[imp.Module]; !exists {
			modOrder = append(modOrder, imp.Module)
		}
		entry := imp.Name
		if imp.Kind != "" {
			entry += " (" + imp.Kind + ")"
		}
		byMod[imp.Module] = append(byMod[imp.Module], entry)
	}

	for _, mod := range modOrder {
		names := byMod[mod]
		sort.Strings(names)
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, n := range names {
			b.WriteString("    - ")
			b.WriteString(n)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type. Any linking-phase
// *Error target with an empty kind or KindMissingImport also matches.
func (e *MissingImportsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingImportsError:
		return true
	case *Error:
		return t.Phase == PhaseLinking && (t.Kind == "" || t.Kind == KindMissingImport)
	}
	return false
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

// Registration creates a registration error
func Registration(phase Phase, module, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", module, name),
		Cause:  cause,
	}
}

// Load creates a loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}
