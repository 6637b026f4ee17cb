//go:build amd64

package engine

import (
	"fmt"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	asm "github.com/aoli-al/wizard-engine/internal/asm/amd64"
	"github.com/aoli-al/wizard-engine/internal/platform"
	"github.com/aoli-al/wizard-engine/internal/stack"
)

// nativecall enters generated code at codeSegment with the stub argument
// registers loaded from stackObj and bottom. It returns when the
// return-to-parent stub restores the saved machine stack pointer.
//
// This is implemented in nativecall_amd64.s.
func nativecall(codeSegment, stackObj, bottom uintptr)

// stubSet holds the three stack-switch thunks generated once per engine,
// plus the interpreter marker region used for synthesized frame return
// addresses.
type stubSet struct {
	resume       []byte
	enterFunc    []byte
	returnParent []byte
	interp       []byte
}

func (s *stubSet) Resume() uintptr       { return codeAddr(s.resume) }
func (s *stubSet) EnterFunc() uintptr    { return codeAddr(s.enterFunc) }
func (s *stubSet) ReturnParent() uintptr { return codeAddr(s.returnParent) }

// InterpMarker is an address inside the interpreter code region, stored as
// the pending return address of synthesized interpreter frames.
func (s *stubSet) InterpMarker() uintptr { return codeAddr(s.interp) + 1 }

func (s *stubSet) release() {
	for _, code := range [][]byte{s.resume, s.enterFunc, s.returnParent, s.interp} {
		if code != nil {
			_ = platform.MunmapCode(code)
		}
	}
}

// buildStubs generates the thunks and registers their code regions.
// cellAddr is the address of the process-wide currentStack cell, referenced
// by immediate-addressed moves.
func buildStubs(cellAddr uintptr, regions *regionMap) (*stubSet, error) {
	s := &stubSet{}
	var err error
	if s.resume, err = assembleStub(emitResume, cellAddr); err != nil {
		return nil, fmt.Errorf("failed to assemble resume stub: %w", err)
	}
	if s.enterFunc, err = assembleStub(emitEnterFunc, cellAddr); err != nil {
		s.release()
		return nil, fmt.Errorf("failed to assemble enter-func stub: %w", err)
	}
	if s.returnParent, err = assembleStub(emitReturnParent, cellAddr); err != nil {
		s.release()
		return nil, fmt.Errorf("failed to assemble return-to-parent stub: %w", err)
	}
	if s.interp, err = assembleStub(emitInterpThunk, cellAddr); err != nil {
		s.release()
		return nil, fmt.Errorf("failed to assemble interpreter thunk: %w", err)
	}

	regions.register(Region{
		Start: codeAddr(s.resume), End: codeAddr(s.resume) + uintptr(len(s.resume)),
		Kind: RegionStub, Name: "resume", FrameSize: 8,
	})
	regions.register(Region{
		Start: codeAddr(s.enterFunc), End: codeAddr(s.enterFunc) + uintptr(len(s.enterFunc)),
		Kind: RegionStub, Name: "enter-func", FrameSize: 8,
	})
	regions.register(Region{
		Start: codeAddr(s.returnParent), End: codeAddr(s.returnParent) + uintptr(len(s.returnParent)),
		Kind: RegionStub, Name: "return-to-parent", FrameSize: 8, Boundary: true,
	})
	regions.register(Region{
		Start: codeAddr(s.interp), End: codeAddr(s.interp) + uintptr(len(s.interp)),
		Kind: RegionInterpreter, Name: "interpreter",
	})
	return s, nil
}

func assembleStub(emit func(a *asm.Assembler, cellAddr uintptr), cellAddr uintptr) ([]byte, error) {
	a, err := asm.NewAssembler()
	if err != nil {
		return nil, err
	}
	defer a.Finish()
	emit(a, cellAddr)
	return platform.MapCode(a.Assemble())
}

// emitResume generates the resume stub. On entry RegStack holds the stack
// being resumed and RegBottom the bottom of its parent chain.
func emitResume(a *asm.Assembler, cellAddr uintptr) {
	// currentStack = stack.
	a.ConstToReg(x86.AMOVQ, int64(cellAddr), asm.RegTemp)
	a.RegToMem(x86.AMOVQ, asm.RegStack, asm.RegTemp, 0)
	// Save the caller's machine stack pointer and clear the parent link on
	// the bottom of the chain.
	a.RegToMem(x86.AMOVQ, asm.RegSP, asm.RegBottom, stack.ObjectParentRSPOffset)
	a.RegToReg(x86.AXORQ, asm.RegZero, asm.RegZero)
	a.RegToMem(x86.AMOVQ, asm.RegZero, asm.RegBottom, stack.ObjectParentOffset)
	// Switch to the target stack: machine sp from rsp, VSP register from vsp.
	a.MemToReg(x86.AMOVQ, asm.RegStack, stack.ObjectRSPOffset, asm.RegSP)
	a.MemToReg(x86.AMOVQ, asm.RegStack, stack.ObjectVSPOffset, asm.RegVSP)
	// The top native return address is the enter-func stub: pop and jump.
	a.Standalone(obj.ARET)
}

// emitEnterFunc generates the enter-func stub. Dispatch of interpreter and
// host functions is driven from the runtime side; the native stub only
// handles declarations with a compiled entry.
func emitEnterFunc(a *asm.Assembler, cellAddr uintptr) {
	a.ConstToReg(x86.AMOVQ, int64(cellAddr), asm.RegTemp)
	a.MemToReg(x86.AMOVQ, asm.RegTemp, 0, asm.RegTemp3)
	a.MemToReg(x86.AMOVQ, asm.RegTemp3, stack.ObjectTargetCodeOffset, asm.RegTemp2)
	a.RegToReg(x86.ATESTQ, asm.RegTemp2, asm.RegTemp2)
	notCompiled := a.Jcc(x86.AJEQ)
	// Reload the VSP register without altering the value stack, then tail
	// into the compiled entry.
	a.MemToReg(x86.AMOVQ, asm.RegTemp3, stack.ObjectVSPOffset, asm.RegVSP)
	a.JmpReg(asm.RegTemp2)
	// A non-compiled function reaching the native stub is an engine bug.
	a.SetBranchTargetOnNext(notCompiled)
	a.Int(3)
}

// emitReturnParent generates the return-to-parent stub, installed as the
// deepest native return address on every stack.
func emitReturnParent(a *asm.Assembler, cellAddr uintptr) {
	a.ConstToReg(x86.AMOVQ, int64(cellAddr), asm.RegTemp)
	a.MemToReg(x86.AMOVQ, asm.RegTemp, 0, asm.RegTemp3)
	// Spill the live VSP back into the stack object.
	a.RegToMem(x86.AMOVQ, asm.RegVSP, asm.RegTemp3, stack.ObjectVSPOffset)
	a.MemToReg(x86.AMOVQ, asm.RegTemp3, stack.ObjectParentOffset, asm.RegTemp2)
	a.RegToReg(x86.ATESTQ, asm.RegTemp2, asm.RegTemp2)
	hasParent := a.Jcc(x86.AJNE)
	// Null parent: restore the original host caller's stack and return.
	a.MemToReg(x86.AMOVQ, asm.RegTemp3, stack.ObjectParentRSPOffset, asm.RegSP)
	a.Standalone(obj.ARET)
	// Non-null parent: value copy from child to parent is reserved; switch
	// currentStack to the parent, restore its machine stack pointer, and
	// clear the child's linkage.
	a.SetBranchTargetOnNext(hasParent)
	a.RegToMem(x86.AMOVQ, asm.RegTemp2, asm.RegTemp, 0)
	a.MemToReg(x86.AMOVQ, asm.RegTemp3, stack.ObjectParentRSPOffset, asm.RegSP)
	a.RegToReg(x86.AXORQ, asm.RegZero, asm.RegZero)
	a.RegToMem(x86.AMOVQ, asm.RegZero, asm.RegTemp3, stack.ObjectParentOffset)
	a.RegToMem(x86.AMOVQ, asm.RegZero, asm.RegTemp3, stack.ObjectParentRSPOffset)
	a.Standalone(obj.ARET)
}

// emitInterpThunk emits the fenced region standing for the interpreter's
// dispatch code: synthesized interpreter frames store return addresses
// inside it so the frame walker classifies them correctly.
func emitInterpThunk(a *asm.Assembler, cellAddr uintptr) {
	for i := 0; i < 8; i++ {
		a.Int(3)
	}
}
