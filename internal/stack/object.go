package stack

import (
	"github.com/aoli-al/wizard-engine/internal/buildoptions"
	"github.com/aoli-al/wizard-engine/internal/platform"
	"github.com/aoli-al/wizard-engine/internal/value"
	"github.com/aoli-al/wizard-engine/internal/wasm"
)

// Object is the unit of suspendability: one guarded mapping holding a value
// stack growing upward and a native return-address stack growing downward,
// a lifecycle state, and the linkage to the parent stack to resume when
// this one returns.
//
// The leading fields are read and written by the generated stack-switch
// stubs at fixed offsets; their order must not change. See offsets.go and
// TestVerifyObjectOffsets.
type Object struct {
	// ValueStack must stay first: the resume stub loads vsp (offset 0) into
	// the dedicated VSP register, and return-to-parent spills it back.
	ValueStack

	// rsp is the native return-address stack pointer. It starts at the top
	// of the mapping and grows downward; the deepest entry is always the
	// return-to-parent stub.
	rsp uintptr

	// parent is the stack to resume when this one returns; nil for the
	// bottom of the chain. The GC treats this as a strong root.
	parent *Object

	// parentRSP is the machine stack pointer of the parent (or of the host
	// caller for the bottom stack), saved by the resume stub and restored
	// by return-to-parent.
	parentRSP uintptr

	// targetCode mirrors the pending function's compiled entry (zero for
	// interpreter-only declarations) so the enter-func stub can dispatch
	// without chasing Go interfaces.
	targetCode uintptr

	state State
	_     uint32

	// The fields below are not accessed by generated code.

	mapping *platform.Mapping
	fn      wasm.Function
	// paramsArity is the number of arguments still to be bound before the
	// stack becomes resumable.
	paramsArity   int
	returnResults []value.Type
}

// NewObject maps a fresh guarded stack of the given size and prepares it in
// the EMPTY state. Failure to reserve or protect the mapping is fatal at
// the caller's discretion; this returns the error.
func NewObject(size uintptr, rep value.Rep) (*Object, error) {
	m, err := platform.MapStack(size)
	if err != nil {
		return nil, err
	}
	o := &Object{mapping: m}
	o.ValueStack.Init(m.UsableStart(), m.RedZoneStart(), rep)
	o.rsp = m.End()
	o.state = StateEmpty
	return o, nil
}

// RangeStart is the lowest usable address: vsp equals this when EMPTY.
func (o *Object) RangeStart() uintptr { return o.mapping.UsableStart() }

// RangeEnd is one past the highest usable address: rsp equals this when EMPTY.
func (o *Object) RangeEnd() uintptr { return o.mapping.End() }

// RSP returns the native return-address stack pointer.
func (o *Object) RSP() uintptr { return o.rsp }

// State returns the lifecycle state.
func (o *Object) State() State { return o.state }

// Parent returns the stack to resume when this one returns.
func (o *Object) Parent() *Object { return o.parent }

// ParentRSP returns the saved parent machine stack pointer.
func (o *Object) ParentRSP() uintptr { return o.parentRSP }

// Func returns the function awaiting invocation while SUSPENDED/RESUMABLE.
func (o *Object) Func() wasm.Function { return o.fn }

// ParamsArity returns the number of arguments still required.
func (o *Object) ParamsArity() int { return o.paramsArity }

// ReturnResults returns the result types of the pending function.
func (o *Object) ReturnResults() []value.Type { return o.returnResults }

// TargetCode returns the compiled entry mirror used by enter-func.
func (o *Object) TargetCode() uintptr { return o.targetCode }

func (o *Object) require(s State, op string) {
	if o.state != s {
		panic(wasm.NewInternalError("%s on %s stack", op, o.state))
	}
}

// PushReturnAddress writes addr into the next native stack slot. Besides
// the two stub addresses seeded by Reset, the engine uses this to lay out
// interpreter and compiled frame headers.
func (o *Object) PushReturnAddress(addr uintptr) {
	o.rsp -= 8
	if o.rsp < o.mapping.RedZoneStart()+platform.PageSize {
		panic(wasm.NewTrap(wasm.TrapReasonStackOverflow))
	}
	StorePointer(o.rsp, addr)
}

// Reset arms the stack for one invocation of f. Two native return
// addresses are seeded bottom-up: return-to-parent first, so it is what the
// last Wasm ret lands on, then enter-func, which the resume stub pops and
// jumps to.
func (o *Object) Reset(f wasm.Function, enterFuncStub, returnParentStub uintptr) {
	o.require(StateEmpty, "reset")
	o.fn = f
	o.paramsArity = len(f.ParamTypes())
	o.returnResults = f.ResultTypes()
	if wf, ok := f.(*wasm.WasmFunction); ok {
		o.targetCode = wf.Decl.TargetCode
	} else {
		o.targetCode = 0
	}
	o.PushReturnAddress(returnParentStub)
	o.PushReturnAddress(enterFuncStub)
	if o.paramsArity == 0 {
		o.state = StateResumable
	} else {
		o.state = StateSuspended
	}
}

// Bind pushes args onto the value stack. Binding more arguments than the
// signature has left is an engine bug.
func (o *Object) Bind(args []value.Value) {
	o.require(StateSuspended, "bind")
	if len(args) > o.paramsArity {
		panic(wasm.NewInternalError("bind of %d args with %d remaining", len(args), o.paramsArity))
	}
	for _, v := range args {
		o.Push(v)
	}
	o.paramsArity -= len(args)
	if o.paramsArity == 0 {
		o.state = StateResumable
	}
}

// Bottom walks the parent chain to the stack whose parent is nil.
func (o *Object) Bottom() *Object {
	b := o
	for depth := 0; b.parent != nil; depth++ {
		if depth > buildoptions.CallStackCeiling {
			panic(wasm.NewInternalError("cycle in stack parent chain"))
		}
		b = b.parent
	}
	return b
}

// BeginResume transitions RESUMABLE -> RUNNING, recording the parent
// linkage on the bottom of the chain. hostRSP is the machine stack pointer
// of the resuming caller.
func (o *Object) BeginResume(hostRSP uintptr) {
	o.require(StateResumable, "resume")
	bottom := o.Bottom()
	bottom.parentRSP = hostRSP
	bottom.parent = nil
	o.state = StateRunning
}

// EnterHost transitions RUNNING -> RUNNING_HOST around a host call and
// stores savedRSP, the stack pointer stashed by the host-call prologue, into
// rsp.
func (o *Object) EnterHost(savedRSP uintptr) {
	o.require(StateRunning, "host call")
	o.rsp = savedRSP
	o.state = StateRunningHost
}

// LeaveHost transitions back after the host returns.
func (o *Object) LeaveHost() {
	o.require(StateRunningHost, "host return")
	o.state = StateRunning
}

// SetParent links this stack under parent before resuming a child.
func (o *Object) SetParent(parent *Object) { o.parent = parent }

// SyncVSP spills the live VSP value back into the object, as the
// return-to-parent stub does for native frames.
func (o *Object) SyncVSP(vsp uintptr) { o.ValueStack.vsp = vsp }

// SetRSP overwrites the native stack pointer; used by the host-call
// prologue and by tests constructing frames by hand.
func (o *Object) SetRSP(p uintptr) {
	if p < o.mapping.RedZoneStart()+platform.PageSize || p > o.mapping.End() {
		panic(wasm.NewInternalError("rsp %#x outside native region", p))
	}
	o.rsp = p
}

// Clear resets all bookkeeping to the initial EMPTY layout. The mapping is
// retained for reuse.
func (o *Object) Clear() {
	o.ValueStack.vsp = o.ValueStack.start
	o.rsp = o.mapping.End()
	o.fn = nil
	o.paramsArity = 0
	o.returnResults = nil
	o.parent = nil
	o.parentRSP = 0
	o.targetCode = 0
	o.state = StateEmpty
}

// Release unmaps the backing reservation.
func (o *Object) Release() error {
	o.state = StateEmpty
	return o.mapping.Unmap()
}

// Catch is the one opportunity for an embedder to intercept a throwable
// crossing this stack. It currently always declines; implementers may
// extend it.
func (o *Object) Catch(thrown wasm.Throwable) bool { return false }

// PopAllFrames is reserved for the structured-continuation proposal.
func (o *Object) PopAllFrames() error { return wasm.ErrUnsupported }

// ThrowTag is reserved for the exception-handling proposal.
func (o *Object) ThrowTag(tag uint32) error { return wasm.ErrUnsupported }

// Where is reserved: it will report the suspension point of a suspended
// stack once suspension inside Wasm code is supported.
func (o *Object) Where() (uint32, error) { return 0, wasm.ErrUnsupported }

// Caller is reserved alongside Where.
func (o *Object) Caller() (wasm.Function, error) { return nil, wasm.ErrUnsupported }
