package wasm

import "errors"

// All the errors below are returned by the engine during the execution of
// Wasm functions, and they indicate that the current call is aborted.
var (
	// ErrRuntimeStackOverflow indicates that the value stack or the native
	// return-address stack grew into its red zone, or the logical call depth
	// exceeded the configured ceiling.
	ErrRuntimeStackOverflow = errors.New("stack overflow")
	// ErrRuntimeOutOfBoundsMemoryAccess indicates that the program tried to
	// access a region beyond the linear memory.
	ErrRuntimeOutOfBoundsMemoryAccess = errors.New("out of bounds memory access")
	// ErrRuntimeInvalidTableAccess means the offset into a table was out of
	// bounds of the table.
	ErrRuntimeInvalidTableAccess = errors.New("out of bounds table access")
	// ErrRuntimeArrayIndexOutOfBounds indicates an array element access
	// beyond the array's length.
	ErrRuntimeArrayIndexOutOfBounds = errors.New("out of bounds array access")
	// ErrRuntimeNullDereference indicates a field or element access through
	// a null reference.
	ErrRuntimeNullDereference = errors.New("null dereference")
	// ErrRuntimeIntegerDivideByZero indicates that an integer div or rem
	// instruction was executed with 0 as the divisor.
	ErrRuntimeIntegerDivideByZero = errors.New("integer divide by zero")
	// ErrRuntimeIntegerOverflow indicates that integer arithmetic resulted
	// in an overflow value.
	ErrRuntimeIntegerOverflow = errors.New("integer overflow")
	// ErrRuntimeInvalidConversionToInteger indicates a NaN was truncated to
	// an integer.
	ErrRuntimeInvalidConversionToInteger = errors.New("invalid conversion to integer")
	// ErrRuntimeUnreachable means the "unreachable" instruction was executed.
	ErrRuntimeUnreachable = errors.New("unreachable")
	// ErrRuntimeOutOfMemory indicates allocation of a Wasm GC object failed
	// or exceeded the implementation limit.
	ErrRuntimeOutOfMemory = errors.New("out of memory")
	// ErrRuntimeCastFailure indicates a failed downcast of a reference.
	ErrRuntimeCastFailure = errors.New("cast failure")
	// ErrRuntimeInternal indicates an engine invariant violation; it is a bug
	// in the engine, not in the executed program. Tests assert its absence.
	ErrRuntimeInternal = errors.New("internal engine error")
)

// ErrUnsupported is returned by the declared-but-unimplemented surface
// (frame popping, tag throws, suspension-point queries, reference writes
// through frame accessors, typed frame access on untagged stacks). The
// parent-to-child value copy in return-to-parent is not performed and
// reports no error.
var ErrUnsupported = errors.New("unsupported")
