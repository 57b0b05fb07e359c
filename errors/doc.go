// Package errors provides structured error types for the wasm-interp library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Four phases are visible to embedders and never overlap:
//
//   - PhaseDecode: malformed binary, section size mismatch, bad index
//   - PhaseValidate: stack shape, branch arity, immutable global writes
//   - PhaseLinking: missing module or export, import type mismatch, pending globals
//   - PhaseRuntime: traps raised while a call executes
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseValidate, errors.KindStackMismatch).
//		Path("func[3]", "block[1]").
//		Offset(42).
//		Detail("expected 1 value, found 0").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Trap(errors.KindMemoryOutOfBounds, "load of 4 bytes at 65534")
//	err := errors.OutOfBounds(errors.PhaseDecode, path, 10, 5)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
