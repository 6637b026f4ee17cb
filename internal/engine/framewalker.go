package engine

import (
	"unsafe"

	"github.com/aoli-al/wizard-engine/internal/buildoptions"
	"github.com/aoli-al/wizard-engine/internal/stack"
	"github.com/aoli-al/wizard-engine/internal/value"
	"github.com/aoli-al/wizard-engine/internal/wasm"
)

// The frame walker translates a raw native stack pointer into logical
// (function, pc) pairs. A frame at sp is classified by the pending return
// address at sp-8: it was pushed by this frame's function, so it lies in
// that function's code region.

// Walk collects the Wasm frame chain starting at the innermost frame sp.
// Frames are collected from the innermost outward, so the first element is
// the innermost frame, as trap traces require; no reversal is applied.
func (e *Engine) Walk(sp uintptr) []wasm.TraceFrame {
	var frames []wasm.TraceFrame
	for steps := 0; steps < buildoptions.CallStackCeiling; steps++ {
		ra := stack.LoadPointer(sp - 8)
		region := e.regions.lookup(ra)
		if region == nil {
			break
		}
		switch region.Kind {
		case RegionInterpreter:
			fn := (*wasm.WasmFunction)(unsafe.Pointer(stack.LoadPointer(sp + interpFrameWasmFuncOffset)))
			pc := unpackPC(stack.LoadPointer(sp + interpFramePCOffset))
			frames = append(frames, wasm.TraceFrame{Wasm: fn, PC: pc})
			// Step over the header plus the caller's pending-call slot.
			sp += interpFrameSize + 8
		case RegionSPC:
			fn := (*wasm.WasmFunction)(unsafe.Pointer(stack.LoadPointer(sp + spcFrameWasmFuncOffset)))
			// SPC frames store no pc; reconstruct it by mapping the return
			// address back through the OSR table of the compiled entry.
			pc, _ := pcFromReturnAddress(region, ra)
			frames = append(frames, wasm.TraceFrame{Wasm: fn, PC: pc})
			sp += spcFrameSize + 8
		case RegionStub:
			if region.Boundary {
				// return-to-parent: the caller is no longer Wasm.
				return frames
			}
			sp += region.FrameSize
		}
	}
	return frames
}

func pcFromReturnAddress(region *Region, ra uintptr) (uint32, bool) {
	if region.Decl == nil {
		return 0, false
	}
	offset := ra - region.Start
	for _, entry := range region.Decl.OSRTable {
		if entry.Offset == offset {
			return entry.PC, true
		}
	}
	return 0, false
}

// TargetFrame is a transient, lazily inflated view over one native frame.
// Once created it is cached in the frame's reserved accessor slot, so
// repeated inflation of the same frame yields the same accessor.
type TargetFrame struct {
	e    *Engine
	sp   uintptr
	kind RegionKind
	fn   *wasm.WasmFunction
}

// FrameAt inflates the frame at sp, reusing the cached accessor if the
// frame already has one.
func (e *Engine) FrameAt(sp uintptr) *TargetFrame {
	ra := stack.LoadPointer(sp - 8)
	region := e.regions.lookup(ra)
	if region == nil || region.Kind == RegionStub {
		return nil
	}
	accessorSlot := sp + interpFrameAccessorOffset
	if region.Kind == RegionSPC {
		accessorSlot = sp + spcFrameAccessorOffset
	}
	if cached := stack.LoadPointer(accessorSlot); cached != 0 {
		if tf, ok := e.accessors[sp]; ok {
			return tf
		}
	}
	tf := &TargetFrame{e: e, sp: sp, kind: region.Kind}
	if region.Kind == RegionInterpreter {
		tf.fn = (*wasm.WasmFunction)(unsafe.Pointer(stack.LoadPointer(sp + interpFrameWasmFuncOffset)))
	} else {
		tf.fn = (*wasm.WasmFunction)(unsafe.Pointer(stack.LoadPointer(sp + spcFrameWasmFuncOffset)))
	}
	e.accessors[sp] = tf
	stack.StorePointer(accessorSlot, uintptr(unsafe.Pointer(tf)))
	return tf
}

// Function returns the frame's function.
func (f *TargetFrame) Function() *wasm.WasmFunction { return f.fn }

// PC returns the frame's Wasm program counter.
func (f *TargetFrame) PC() uint32 {
	if f.kind == RegionSPC {
		ra := stack.LoadPointer(f.sp - 8)
		if region := f.e.regions.lookup(ra); region != nil {
			pc, _ := pcFromReturnAddress(region, ra)
			return pc
		}
		return 0
	}
	return unpackPC(stack.LoadPointer(f.sp + interpFramePCOffset))
}

// Caller walks to the enclosing frame. It yields the caller's frame, or
// host=true when the caller is the embedder, or (nil, false) when the
// chain cannot be classified.
func (f *TargetFrame) Caller() (caller *TargetFrame, host bool) {
	size := uintptr(interpFrameSize)
	if f.kind == RegionSPC {
		size = spcFrameSize
	}
	// The caller's frame begins past this header and the caller's
	// pending-call slot.
	callerSP := f.sp + size + 8
	ra := stack.LoadPointer(callerSP - 8)
	region := f.e.regions.lookup(ra)
	if region == nil {
		return nil, false
	}
	if region.Kind == RegionStub {
		if region.Boundary {
			return nil, true
		}
		return nil, false
	}
	return f.e.FrameAt(callerSP), false
}

// ReadLocal reads the frame's local slot i through the value stack's typed
// access path. Only interpreter frames track their value base.
func (f *TargetFrame) ReadLocal(o *stack.Object, i int) (value.Value, error) {
	if f.kind != RegionInterpreter {
		return value.Value{}, wasm.ErrUnsupported
	}
	base := unpackValueBase(stack.LoadPointer(f.sp + interpFramePCOffset))
	return o.ReadValue(base + i)
}

// WriteLocal writes the frame's local slot i. Reference values are
// rejected by the typed access path.
func (f *TargetFrame) WriteLocal(o *stack.Object, i int, v value.Value) error {
	if f.kind != RegionInterpreter {
		return wasm.ErrUnsupported
	}
	base := unpackValueBase(stack.LoadPointer(f.sp + interpFramePCOffset))
	return o.WriteValue(base+i, v)
}
