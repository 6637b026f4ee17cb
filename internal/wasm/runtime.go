package wasm

import "github.com/aoli-al/wizard-engine/internal/value"

// Runtime is the set of escape points the interpreter's decode loop and the
// compiled tier funnel every complex bytecode through. Operands are popped
// from the value stack in the order mandated by the Wasm specification
// (right-to-left); immediates arrive as arguments. Each routine returns a
// possibly-nil Throwable.
//
// The decode loop itself is an external collaborator; this interface is the
// whole of its view of the engine.
type Runtime interface {
	// Value stack access for the decode loop.
	Push(v value.Value)
	Pop(expected value.Type) value.Value
	PopU32() uint32
	PopU64() uint64
	PopRef() value.Value
	PeekRef() value.Value
	PopN(types []value.Type) []value.Value

	// SyncPC records the decode loop's position into the current frame's
	// designated pc slot, keeping trap traces and OSR lookups exact.
	SyncPC(pc uint32)

	// Memory.
	MemoryGrow(inst *Instance, mi uint32) Throwable
	MemoryInit(inst *Instance, dataIdx, memIdx uint32) Throwable
	MemoryCopy(inst *Instance, mi1, mi2 uint32) Throwable
	MemoryFill(inst *Instance, mi uint32) Throwable

	// Globals. These cannot trap: mutability is enforced at validation.
	GlobalGet(inst *Instance, i uint32)
	GlobalSet(inst *Instance, i uint32)

	// Tables.
	TableGet(inst *Instance, ti uint32) Throwable
	TableSet(inst *Instance, ti uint32) Throwable
	TableInit(inst *Instance, elemIdx, ti uint32) Throwable
	TableCopy(inst *Instance, dst, src uint32) Throwable
	TableGrow(inst *Instance, ti uint32) Throwable
	TableFill(inst *Instance, ti uint32) Throwable

	// GC proposal: structs.
	StructNew(inst *Instance, declIdx uint32) Throwable
	StructNewDefault(inst *Instance, declIdx uint32) Throwable
	StructGet(inst *Instance, declIdx, fieldIdx uint32, signed bool) Throwable
	StructSet(inst *Instance, declIdx, fieldIdx uint32) Throwable

	// GC proposal: arrays.
	ArrayNew(inst *Instance, declIdx uint32) Throwable
	ArrayNewDefault(inst *Instance, declIdx uint32) Throwable
	ArrayNewFixed(inst *Instance, declIdx, length uint32) Throwable
	ArrayNewData(inst *Instance, declIdx, dataIdx uint32) Throwable
	ArrayNewElem(inst *Instance, declIdx, elemIdx uint32) Throwable
	ArrayGet(inst *Instance, declIdx uint32, signed bool) Throwable
	ArraySet(inst *Instance, declIdx uint32) Throwable
	ArrayFill(inst *Instance, declIdx uint32) Throwable
	ArrayCopy(inst *Instance, dstDecl, srcDecl uint32) Throwable
	ArrayInitData(inst *Instance, declIdx, dataIdx uint32) Throwable
	ArrayInitElem(inst *Instance, declIdx, elemIdx uint32) Throwable

	// Probes and traps.
	ProbeLoop(fn *WasmFunction, pc uint32) Throwable
	ProbeInstr(fn *WasmFunction, pc uint32) Throwable
	Trap(fn *WasmFunction, pc uint32, reason TrapReason) Throwable

	// Tier-up. Consults the tiering policy; on a hit the caller's native
	// return address is rewritten so the next ret lands in compiled code.
	TierUp(fn *WasmFunction, pc uint32)

	// Host and cross-function calls.
	CallHost(f Function) Throwable
}

// Interpreter is the interpreter tier's entry for one function declaration.
// It consumes exactly the signature's parameter slots from the value stack
// and produces exactly its result slots, or returns a throwable.
type Interpreter interface {
	Exec(fn *WasmFunction, rt Runtime) Throwable
}

// InterpFunc adapts a plain function to Interpreter.
type InterpFunc func(fn *WasmFunction, rt Runtime) Throwable

// Exec implements Interpreter.
func (f InterpFunc) Exec(fn *WasmFunction, rt Runtime) Throwable { return f(fn, rt) }
