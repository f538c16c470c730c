// Package errors provides structured error types for the native bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the runtime entry involved, a detail message and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRegistry, errors.KindDuplicate).
//		Entry("LibcPow").
//		Detail("declared twice").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Duplicate(errors.PhaseRegistry, "entry", "LibcPow")
//	err := errors.ArityMismatch(errors.PhaseInvoke, "Add", 2, 3)
//
// Inconsistent errors describe a broken internal invariant (for example a
// frame that cannot be deoptimized) and are meant to be treated as fatal.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
