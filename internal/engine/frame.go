package engine

import (
	"unsafe"

	"github.com/aoli-al/wizard-engine/internal/buildoptions"
	"github.com/aoli-al/wizard-engine/internal/stack"
	"github.com/aoli-al/wizard-engine/internal/value"
	"github.com/aoli-al/wizard-engine/internal/wasm"
)

// objAddr exposes a Go object's address for storage in a native frame
// slot. The object must stay pinned elsewhere (frames pin their functions
// through the frameRecord) for as long as the slot is live.
func objAddr[T any](p *T) uintptr { return uintptr(unsafe.Pointer(p)) }

// Native frame layout. Offsets are relative to the frame's stack pointer,
// the rsp value in effect while the frame's function executes. The slot at
// sp-8 holds the pending return address of the frame's current callee; its
// code region classifies the frame. These offsets are the cross-component
// ABI shared with the frame walker and any debugger attachment.
const (
	// Interpreter frame: {saved_ra, accessor_cache, wasm_func, func_decl, pc}.
	interpFramePCOffset       = 0
	interpFrameFuncDeclOffset = 8
	interpFrameWasmFuncOffset = 16
	interpFrameAccessorOffset = 24
	interpFrameSavedRAOffset  = 32
	interpFrameSize           = 40

	// SPC frame: {saved_ra, accessor_cache, wasm_func}.
	spcFrameWasmFuncOffset = 0
	spcFrameAccessorOffset = 8
	spcFrameSavedRAOffset  = 16
	spcFrameSize           = 24
)

// The pc slot of an interpreter frame packs the 32-bit Wasm pc in its low
// half and the frame's value-stack base slot index in its high half, so
// frame accessors can locate locals without a side table.
func packPCSlot(pc uint32, valueBase int) uintptr {
	return uintptr(pc) | uintptr(valueBase)<<32
}

func unpackPC(slot uintptr) uint32     { return uint32(slot) }
func unpackValueBase(slot uintptr) int { return int(slot >> 32) }

// frameRecord is the engine-side note of one synthesized frame.
type frameRecord struct {
	sp        uintptr
	fn        *wasm.WasmFunction
	valueBase int
	compiled  bool
}

// execContext binds the engine to the stack it is running; it implements
// wasm.Runtime, so it is the whole of the interpreter's view of the
// engine. o must be re-read from currentStack after host callbacks.
type execContext struct {
	e      *Engine
	o      *stack.Object
	frames []frameRecord
}

var _ wasm.Runtime = &execContext{}

// pushInterpFrame lays out an interpreter frame header on the native stack
// and arms its pending-call slot with an interpreter-region address so the
// walker sees a frame mid-call.
func (c *execContext) pushInterpFrame(fn *wasm.WasmFunction, valueBase int) {
	o := c.o
	callerRA := c.callSiteRA()
	o.PushReturnAddress(callerRA)
	o.PushReturnAddress(0) // accessor_cache, inflated lazily
	o.PushReturnAddress(objAddr(fn))
	o.PushReturnAddress(objAddr(fn.Decl))
	o.PushReturnAddress(packPCSlot(0, valueBase))
	sp := o.RSP()
	// Pending runtime call: the slot below sp carries where the callee
	// returns to, inside this frame's code region.
	o.PushReturnAddress(c.e.stubs.InterpMarker())
	c.frames = append(c.frames, frameRecord{sp: sp, fn: fn, valueBase: valueBase})
}

// pushSPCFrame is the compiled-tier analogue.
func (c *execContext) pushSPCFrame(fn *wasm.WasmFunction, valueBase int) {
	o := c.o
	o.PushReturnAddress(c.callSiteRA())
	o.PushReturnAddress(0)
	o.PushReturnAddress(objAddr(fn))
	sp := o.RSP()
	// Compiled entries are at least one instruction long; any address past
	// the entry classifies as this function's region.
	o.PushReturnAddress(fn.Decl.TargetCode + 1)
	c.frames = append(c.frames, frameRecord{sp: sp, fn: fn, valueBase: valueBase, compiled: true})
}

// callSiteRA is the return address a new frame's caller would have pushed:
// the deepest frame returns through the stubs seeded at Reset, so for it
// the address is already on the stack and the frame header begins with it;
// nested frames get an address inside the caller's code region.
func (c *execContext) callSiteRA() uintptr {
	if len(c.frames) == 0 {
		// The seeded return-to-parent address already sits at the top of
		// the native region, but each frame header carries its own saved_ra
		// slot; the deepest frame's is the return-to-parent stub itself.
		return c.e.stubs.ReturnParent()
	}
	top := c.frames[len(c.frames)-1]
	if top.compiled {
		return top.fn.Decl.TargetCode + 1
	}
	return c.e.stubs.InterpMarker()
}

func (c *execContext) popFrame() {
	top := c.frames[len(c.frames)-1]
	c.frames = c.frames[:len(c.frames)-1]
	size := uintptr(interpFrameSize)
	if top.compiled {
		size = spcFrameSize
	}
	// Drop the pending-call slot plus the header.
	c.o.SetRSP(top.sp + size)
	delete(c.e.accessors, top.sp)
}

func (c *execContext) top() *frameRecord {
	if len(c.frames) == 0 {
		return nil
	}
	return &c.frames[len(c.frames)-1]
}

// frameSP returns the innermost frame's stack pointer.
func (c *execContext) frameSP() uintptr {
	if t := c.top(); t != nil {
		return t.sp
	}
	return c.o.RSP()
}

// SyncPC records the decode loop's position into the frame's designated pc
// slot, keeping trap traces and OSR lookups exact.
func (c *execContext) SyncPC(pc uint32) {
	t := c.top()
	if t == nil || t.compiled {
		return
	}
	stack.StorePointer(t.sp+interpFramePCOffset, packPCSlot(pc, t.valueBase))
}

// invoke runs one Wasm function: frame push, tier dispatch, frame pop, and
// the stack-height check that catches miscompiled bodies.
func (c *execContext) invoke(fn *wasm.WasmFunction) wasm.Throwable {
	if len(c.frames) >= buildoptions.CallStackCeiling {
		return c.trapAt(wasm.TrapReasonStackOverflow)
	}
	params := len(fn.Decl.Type.Params)
	results := len(fn.Decl.Type.Results)
	depthBefore := c.o.Depth()
	if depthBefore < params {
		return wasm.NewInternalError("%s invoked with %d slots, needs %d params", fn, depthBefore, params)
	}
	valueBase := depthBefore - params

	var thrown wasm.Throwable
	if c.e.conf.MultiTier && fn.Decl.TargetCode != 0 && fn.Decl.Compiled != nil {
		c.e.counters.CompiledEntries++
		c.pushSPCFrame(fn, valueBase)
		debugf("invoke %s via compiled entry %#x", fn.Name, fn.Decl.TargetCode)
		thrown = fn.Decl.Compiled.Exec(fn, c)
	} else {
		c.pushInterpFrame(fn, valueBase)
		debugf("invoke %s via interpreter", fn.Name)
		thrown = fn.Decl.Interp.Exec(fn, c)
	}
	c.popFrame()

	if thrown != nil {
		return thrown
	}
	if got, want := c.o.Depth(), depthBefore-params+results; got != want {
		return wasm.NewInternalError(
			"stack height mismatch after %s: %d slots, expected %d", fn, got, want)
	}
	return nil
}

// trapAt materializes a trap and attaches the trace starting from the
// caller's native frame.
func (c *execContext) trapAt(reason wasm.TrapReason) wasm.Throwable {
	t := wasm.NewTrap(reason)
	t.PrependFrames(c.e.Walk(c.frameSP()))
	return t
}

// Value stack escape points used by the decode loop.

func (c *execContext) Push(v value.Value)                    { c.o.Push(v) }
func (c *execContext) Pop(expected value.Type) value.Value   { return c.o.Pop(expected) }
func (c *execContext) PopU32() uint32                        { return c.o.PopU32() }
func (c *execContext) PopU64() uint64                        { return c.o.PopU64() }
func (c *execContext) PopRef() value.Value                   { return c.o.PopRef() }
func (c *execContext) PeekRef() value.Value                  { return c.o.PeekRef() }
func (c *execContext) PopN(types []value.Type) []value.Value { return c.o.PopN(types) }
