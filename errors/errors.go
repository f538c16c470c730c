package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDeclare   Phase = "declare"   // entry declaration
	PhaseRegistry  Phase = "registry"  // registry build and lookup
	PhaseResolve   Phase = "resolve"   // entry-point resolution
	PhaseInvoke    Phase = "invoke"    // calls through the bridge
	PhaseEmit      Phase = "emit"      // call-site emission
	PhaseDeopt     Phase = "deopt"     // deoptimization
	PhaseSafepoint Phase = "safepoint" // thread and isolate transitions
	PhaseCallback  Phase = "callback"  // FFI callback trampolines
	PhaseConfig    Phase = "config"    // options
	PhaseManifest  Phase = "manifest"  // entry manifest parsing
	PhaseLoad      Phase = "load"      // engine and module loading
)

// Kind categorizes the error
type Kind string

const (
	KindDuplicate      Kind = "duplicate"
	KindNotFound       Kind = "not_found"
	KindArity          Kind = "arity_mismatch"
	KindContract       Kind = "contract_violation"
	KindInvalidInput   Kind = "invalid_input"
	KindInvalidData    Kind = "invalid_data"
	KindInconsistent   Kind = "internal_inconsistency"
	KindWrongIsolate   Kind = "wrong_isolate"
	KindInstantiation  Kind = "instantiation"
	KindNotInitialized Kind = "not_initialized"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Entry  string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Entry != "" {
		b.WriteString(" in ")
		b.WriteString(e.Entry)
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

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Fatal reports whether the error describes a broken internal invariant.
func (e *Error) Fatal() bool {
	return e.Kind == KindInconsistent
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

// Entry sets the runtime entry name
func (b *Builder) Entry(name string) *Builder {
	b.err.Entry = name
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

// Convenience constructors for common error patterns

// Duplicate creates a duplicate-name error
func Duplicate(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDuplicate,
		Entry:  name,
		Detail: fmt.Sprintf("%s %q declared more than once", what, name),
		Value:  name,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
		Value:  name,
	}
}

// ArityMismatch creates an argument count mismatch error
func ArityMismatch(phase Phase, entry string, want, got int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindArity,
		Entry:  entry,
		Detail: fmt.Sprintf("expected %d argument(s), got %d", want, got),
		Value:  got,
	}
}

// Contract creates a calling-contract violation error
func Contract(phase Phase, entry, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindContract,
		Entry:  entry,
		Detail: detail,
	}
}

// Inconsistent creates a fatal internal inconsistency error
func Inconsistent(phase Phase, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInconsistent,
		Detail: detail,
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

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// WrongIsolate creates an error for a thread acting outside its isolate
func WrongIsolate(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindWrongIsolate,
		Detail: detail,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
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

// Instantiation creates a module instantiation error
func Instantiation(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(phase Phase, what string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// Problem is one finding of a multi-error validation pass.
type Problem struct {
	Entry  string
	Detail string
}

// ValidationError collects every problem found while validating a set of
// declarations, so a manifest reports all of its mistakes at once.
type ValidationError struct {
	Phase    Phase
	Problems []Problem
}

// Add records a problem.
func (e *ValidationError) Add(entry, detail string, args ...any) {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	e.Problems = append(e.Problems, Problem{Entry: entry, Detail: detail})
}

// Err returns nil when no problems were recorded.
func (e *ValidationError) Err() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "[" + string(e.Phase) + "] invalid_data: no problems recorded"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %d problem(s):", e.Phase, len(e.Problems))
	for _, p := range e.Problems {
		b.WriteString("\n  - ")
		if p.Entry != "" {
			b.WriteString(p.Entry)
			b.WriteString(": ")
		}
		b.WriteString(p.Detail)
	}
	return b.String()
}

// Is reports whether target matches this error type
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}
