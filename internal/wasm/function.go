package wasm

import (
	"fmt"
	"strings"

	"github.com/aoli-al/wizard-engine/internal/value"
)

// FuncType is a function signature.
type FuncType struct {
	Params  []value.Type
	Results []value.Type
}

func (t *FuncType) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, p := range t.Params {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.String())
	}
	b.WriteString("] -> [")
	for i, r := range t.Results {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(r.String())
	}
	b.WriteByte(']')
	return b.String()
}

// Function is either a WasmFunction or a HostFunction. The stack machinery
// only needs the signature; everything else is resolved by the dispatcher.
type Function interface {
	ParamTypes() []value.Type
	ResultTypes() []value.Type
	fmt.Stringer
}

// OSREntry is one on-stack-replacement point emitted by the compiler: when
// the interpreter reaches PC, execution may continue at TargetCode+Offset.
// Every listed pair must be a point where the native register file is
// re-derivable from the value stack and frame locals alone.
type OSREntry struct {
	PC     uint32
	Offset uintptr
}

// FuncDecl is the per-declaration state shared by every WasmFunction
// referencing it: the signature, the interpreter entry, and, once the
// single-pass compiler has run, the compiled entry and its OSR table.
type FuncDecl struct {
	Type *FuncType

	// Interp is the interpreter tier's entry for this declaration. The
	// decode loop itself is an external collaborator; the core only enters
	// it and serves its runtime escape points.
	Interp Interpreter

	// Compiled is the semantic body behind TargetCode. The single-pass
	// compiler registers both together; the engine dispatches through this
	// when the declaration has target code.
	Compiled Interpreter

	// TargetCode is the compiled entry address, or zero while the
	// declaration is interpreter-only.
	TargetCode uintptr
	// OSRTable maps Wasm program counters to offsets from TargetCode.
	OSRTable []OSREntry
}

// OSROffset returns the code offset for the given Wasm pc, if the compiler
// emitted an OSR point there.
func (d *FuncDecl) OSROffset(pc uint32) (uintptr, bool) {
	for _, e := range d.OSRTable {
		if e.PC == pc {
			return e.Offset, true
		}
	}
	return 0, false
}

// WasmFunction is an instantiated Wasm function: a declaration bound to the
// instance whose memories, tables and globals it manipulates.
type WasmFunction struct {
	Name     string
	Decl     *FuncDecl
	Instance *Instance
}

func (f *WasmFunction) ParamTypes() []value.Type  { return f.Decl.Type.Params }
func (f *WasmFunction) ResultTypes() []value.Type { return f.Decl.Type.Results }

func (f *WasmFunction) String() string {
	return fmt.Sprintf("wasm function %s%s", f.Name, f.Decl.Type)
}

// HostResultKind discriminates the outcomes a host callback may produce.
type HostResultKind byte

const (
	HostResultValue HostResultKind = iota
	HostResultThrow
	HostResultTailCall
)

// HostResult is the outcome of a host callback: zero or more result values,
// a throwable, or a tail call to another function (host or Wasm).
type HostResult struct {
	Kind   HostResultKind
	Values []value.Value
	Thrown Throwable
	// Target and Args are set for tail calls. A Wasm target is entered
	// without growing the native stack; a host target loops in place.
	Target Function
	Args   []value.Value
}

func HostValue0() HostResult { return HostResult{Kind: HostResultValue} }
func HostValue1(v value.Value) HostResult {
	return HostResult{Kind: HostResultValue, Values: []value.Value{v}}
}
func HostValueN(vs []value.Value) HostResult { return HostResult{Kind: HostResultValue, Values: vs} }
func HostThrow(t Throwable) HostResult       { return HostResult{Kind: HostResultThrow, Thrown: t} }
func HostTailCall(target Function, args []value.Value) HostResult {
	return HostResult{Kind: HostResultTailCall, Target: target, Args: args}
}

// HostCode is the callback type for host functions. Arguments arrive in
// declaration order; the callback may block.
type HostCode func(args []value.Value) HostResult

// HostFunction is a function implemented by the embedder.
type HostFunction struct {
	Name     string
	Type     *FuncType
	Callback HostCode
}

func (f *HostFunction) ParamTypes() []value.Type  { return f.Type.Params }
func (f *HostFunction) ResultTypes() []value.Type { return f.Type.Results }

func (f *HostFunction) String() string {
	return fmt.Sprintf("host function %s%s", f.Name, f.Type)
}
