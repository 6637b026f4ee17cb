package wasm

import (
	"fmt"
	"strings"
)

// TrapReason classifies a Wasm-specified runtime failure.
type TrapReason byte

const (
	TrapReasonNone TrapReason = iota
	TrapReasonOutOfBounds
	TrapReasonNullDereference
	TrapReasonDivideByZero
	TrapReasonIntegerOverflow
	TrapReasonInvalidConversion
	TrapReasonUnreachable
	TrapReasonStackOverflow
	TrapReasonTableOutOfBounds
	TrapReasonMemoryOutOfBounds
	TrapReasonArrayIndexOutOfBounds
	TrapReasonOutOfMemory
	TrapReasonCastFailure
	// TrapReasonInternal marks engine invariant violations. These are bugs
	// in the engine, surfaced through the same path so the embedder always
	// gets an answer, but with a reason tests can assert the absence of.
	TrapReasonInternal
	// TrapReasonHost marks a throwable produced by a host callback.
	TrapReasonHost
)

func (r TrapReason) String() (ret string) {
	switch r {
	case TrapReasonOutOfBounds:
		ret = "out of bounds"
	case TrapReasonNullDereference:
		ret = "null dereference"
	case TrapReasonDivideByZero:
		ret = "integer divide by zero"
	case TrapReasonIntegerOverflow:
		ret = "integer overflow"
	case TrapReasonInvalidConversion:
		ret = "invalid conversion to integer"
	case TrapReasonUnreachable:
		ret = "unreachable"
	case TrapReasonStackOverflow:
		ret = "stack overflow"
	case TrapReasonTableOutOfBounds:
		ret = "out of bounds table access"
	case TrapReasonMemoryOutOfBounds:
		ret = "out of bounds memory access"
	case TrapReasonArrayIndexOutOfBounds:
		ret = "out of bounds array access"
	case TrapReasonOutOfMemory:
		ret = "out of memory"
	case TrapReasonCastFailure:
		ret = "cast failure"
	case TrapReasonInternal:
		ret = "internal engine error"
	case TrapReasonHost:
		ret = "host error"
	default:
		ret = "unknown"
	}
	return
}

// Err maps the reason to its sentinel error so embedders can test traps
// with errors.Is.
func (r TrapReason) Err() error {
	switch r {
	case TrapReasonOutOfBounds, TrapReasonMemoryOutOfBounds:
		return ErrRuntimeOutOfBoundsMemoryAccess
	case TrapReasonNullDereference:
		return ErrRuntimeNullDereference
	case TrapReasonDivideByZero:
		return ErrRuntimeIntegerDivideByZero
	case TrapReasonIntegerOverflow:
		return ErrRuntimeIntegerOverflow
	case TrapReasonInvalidConversion:
		return ErrRuntimeInvalidConversionToInteger
	case TrapReasonUnreachable:
		return ErrRuntimeUnreachable
	case TrapReasonStackOverflow:
		return ErrRuntimeStackOverflow
	case TrapReasonTableOutOfBounds:
		return ErrRuntimeInvalidTableAccess
	case TrapReasonArrayIndexOutOfBounds:
		return ErrRuntimeArrayIndexOutOfBounds
	case TrapReasonOutOfMemory:
		return ErrRuntimeOutOfMemory
	case TrapReasonCastFailure:
		return ErrRuntimeCastFailure
	default:
		return ErrRuntimeInternal
	}
}

// TraceFrame is one entry of a trap's backtrace: a Wasm function plus the
// program counter of the faulting or calling instruction, or a host
// function re-entering the engine.
type TraceFrame struct {
	Wasm *WasmFunction
	PC   uint32
	Host *HostFunction
}

func (f TraceFrame) String() string {
	if f.Host != nil {
		return fmt.Sprintf("%s (host)", f.Host.Name)
	}
	return fmt.Sprintf("%s @%#x", f.Wasm.Name, f.PC)
}

// Throwable is any value that aborts the current call and propagates to the
// outermost Run. The two implementations are *Trap and host throwables
// wrapped in *Trap with TrapReasonHost.
type Throwable interface {
	error
	// Backtrace returns the collected frames, innermost first. It may be
	// empty if the throwable has not crossed a frame boundary yet: traces
	// are attached lazily by the dispatcher.
	Backtrace() []TraceFrame
	// PrependFrames attaches frames in front of the existing backtrace.
	// Used while unwinding so the innermost frame stays first.
	PrependFrames(frames []TraceFrame)
}

// Trap is a Wasm runtime failure with a reason code and a lazily attached
// backtrace.
type Trap struct {
	Reason TrapReason
	// Cause carries the host error when Reason is TrapReasonHost, or detail
	// for internal errors.
	Cause error
	trace []TraceFrame
}

var _ Throwable = &Trap{}

// NewTrap creates a trap with no backtrace attached yet.
func NewTrap(reason TrapReason) *Trap { return &Trap{Reason: reason} }

// NewHostThrow wraps an error returned by a host callback.
func NewHostThrow(cause error) *Trap {
	return &Trap{Reason: TrapReasonHost, Cause: cause}
}

// NewInternalError wraps an engine invariant violation.
func NewInternalError(format string, args ...interface{}) *Trap {
	return &Trap{Reason: TrapReasonInternal, Cause: fmt.Errorf(format, args...)}
}

// Backtrace implements Throwable.
func (t *Trap) Backtrace() []TraceFrame { return t.trace }

// PrependFrames implements Throwable.
func (t *Trap) PrependFrames(frames []TraceFrame) {
	t.trace = append(append([]TraceFrame{}, frames...), t.trace...)
}

func (t *Trap) Error() string {
	var b strings.Builder
	if t.Reason == TrapReasonHost || (t.Reason == TrapReasonInternal && t.Cause != nil) {
		b.WriteString(t.Cause.Error())
	} else {
		b.WriteString("wasm trap: ")
		b.WriteString(t.Reason.String())
	}
	if len(t.trace) > 0 {
		b.WriteString("\nwasm backtrace:")
		for i, f := range t.trace {
			b.WriteString(fmt.Sprintf("\n\t%d: %s", i, f.String()))
		}
	}
	return b.String()
}

// Unwrap lets errors.Is match the reason's sentinel, or the host cause.
func (t *Trap) Unwrap() error {
	if t.Reason == TrapReasonHost && t.Cause != nil {
		return t.Cause
	}
	return t.Reason.Err()
}
