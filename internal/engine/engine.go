// Package engine is the execution core: it owns the stack objects, the
// stack-switch stubs, the runtime dispatcher every complex bytecode funnels
// through, the frame walker, and the tier-up gate.
package engine

import (
	"fmt"
	"unsafe"

	"github.com/aoli-al/wizard-engine/internal/buildoptions"
	"github.com/aoli-al/wizard-engine/internal/platform"
	"github.com/aoli-al/wizard-engine/internal/stack"
	"github.com/aoli-al/wizard-engine/internal/value"
	"github.com/aoli-al/wizard-engine/internal/wasm"
)

// currentStack designates the single RUNNING stack. It is a process-wide
// mutable cell whose address is baked into the generated stubs, so it must
// be a package-level variable. Host callbacks may re-enter the engine and
// switch it; nobody may assume it is stable across a host invocation.
var currentStack *stack.Object

func currentStackCellAddr() uintptr {
	return uintptr(unsafe.Pointer(&currentStack))
}

// Config selects the engine-wide execution parameters.
type Config struct {
	// StackSize is the full mapping size per stack object, guard pages
	// included. At least 256 KiB is recommended.
	StackSize uintptr
	// Tagged selects the tag-per-slot value representation. Untagged mode
	// is reserved for generated code with full static type knowledge.
	Tagged bool
	// MultiTier enables dispatch through compiled entries when a
	// declaration has target code.
	MultiTier bool
	// NativeDispatch additionally routes resumption of compiled entries
	// through the stack-switch stubs instead of the runtime-driven
	// dispatch. Requires every registered entry to be genuine single-pass
	// compiler output.
	NativeDispatch bool
}

// DefaultConfig returns the configuration the scenarios run under.
func DefaultConfig() Config {
	return Config{StackSize: 256 * 1024, Tagged: true, MultiTier: true}
}

// Result is the outcome of one Run: either the function's results in
// declaration order, or a throwable.
type Result struct {
	Values []value.Value
	Thrown wasm.Throwable
}

// IsThrow reports whether the call ended with a throwable.
func (r Result) IsThrow() bool { return r.Thrown != nil }

// Counters are the instrumentation counts. They are always kept;
// buildoptions.CountTierUps is not consulted.
type Counters struct {
	TierUps         uint64
	CompiledEntries uint64
	LoopProbes      uint64
	InstrProbes     uint64
}

// OSRRecord is the tiering policy's answer for one (function, pc): the
// compiled entry and the table of valid on-stack-replacement points.
type OSRRecord struct {
	Entry uintptr
	Table []wasm.OSREntry
}

// TieringPolicy decides when the interpreter should transfer to compiled
// code. The policy itself is an external collaborator.
type TieringPolicy interface {
	OSRRequest(fn *wasm.WasmFunction, pc uint32) *OSRRecord
}

// Engine executes Wasm and host functions over guarded native stacks.
type Engine struct {
	rep     value.Rep
	conf    Config
	stubs   *stubSet
	regions regionMap
	probes  *wasm.ProbeRegistry
	policy  TieringPolicy

	// freeStacks is the pool of cleared stack objects kept mapped for
	// reuse; allStacks tracks every mapping ever handed out so the GC scan
	// and Close can reach them.
	freeStacks []*stack.Object
	allStacks  []*stack.Object

	// accessors pins the lazily inflated frame accessors referenced by raw
	// pointers from frame slots.
	accessors map[uintptr]*TargetFrame

	// compiledSegments are the mapped code regions registered through
	// RegisterCompiledCode, released on Close.
	compiledSegments [][]byte

	counters Counters
}

// New creates an engine, generating the stack-switch stubs. Inability to
// map or protect memory at this point is fatal for the embedder; it is
// reported as an error rather than a panic so tests can exercise it.
func New(conf Config) (*Engine, error) {
	if conf.StackSize == 0 {
		conf.StackSize = DefaultConfig().StackSize
	}
	rep := value.UntaggedRep()
	if conf.Tagged {
		rep = value.TaggedRep()
	}
	if err := rep.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		rep:       rep,
		conf:      conf,
		probes:    wasm.NewProbeRegistry(),
		accessors: map[uintptr]*TargetFrame{},
	}
	stubs, err := buildStubs(currentStackCellAddr(), &e.regions)
	if err != nil {
		return nil, err
	}
	e.stubs = stubs
	return e, nil
}

// Probes returns the engine's probe registry.
func (e *Engine) Probes() *wasm.ProbeRegistry { return e.probes }

// SetTieringPolicy installs the tier-up decision maker.
func (e *Engine) SetTieringPolicy(p TieringPolicy) { e.policy = p }

// Counters returns a snapshot of the instrumentation counts.
func (e *Engine) Counters() Counters { return e.counters }

// Rep returns the value representation in use.
func (e *Engine) Rep() value.Rep { return e.rep }

// RegisterCompiledCode installs the single-pass compiler's output for a
// declaration: the code is copied into an executable mapping, registered
// as an SPC region, and the declaration's target entry and OSR table are
// set. Returns the entry address.
func (e *Engine) RegisterCompiledCode(decl *wasm.FuncDecl, code []byte, osr []wasm.OSREntry) (uintptr, error) {
	seg, err := platform.MapCode(code)
	if err != nil {
		return 0, fmt.Errorf("failed to map compiled code: %w", err)
	}
	entry := codeAddr(seg)
	e.compiledSegments = append(e.compiledSegments, seg)
	e.regions.register(Region{
		Start: entry, End: entry + uintptr(len(seg)),
		Kind: RegionSPC, Decl: decl,
	})
	decl.TargetCode = entry
	decl.OSRTable = osr
	return entry, nil
}

// Run executes f with the given arguments. The returned error reports
// embedder misuse (argument mismatch, unsupported platform); Wasm-level
// failures arrive as Result.Thrown.
func (e *Engine) Run(f wasm.Function, args []value.Value) (Result, error) {
	if err := validateArgs(f, args); err != nil {
		return Result{}, err
	}
	o, err := e.acquireStack()
	if err != nil {
		return Result{}, err
	}
	defer e.releaseStack(o)

	o.Reset(f, e.stubs.EnterFunc(), e.stubs.ReturnParent())
	prevVSP := o.VSP()
	if o.ParamsArity() > 0 {
		o.Bind(args)
	}
	if o.State() != stack.StateResumable {
		return Result{}, fmt.Errorf("stack not resumable after binding: %s", o.State())
	}
	return e.resume(o, prevVSP), nil
}

// resume transitions the stack to RUNNING and executes until it returns or
// throws, then restores stack neutrality and clears the stack.
func (e *Engine) resume(o *stack.Object, prevVSP uintptr) (res Result) {
	o.BeginResume(0)
	saved := currentStack
	currentStack = o
	defer func() {
		currentStack = saved
		if v := recover(); v != nil {
			thrown, ok := v.(wasm.Throwable)
			if !ok {
				panic(v)
			}
			// After a trap vsp is unconstrained; reset before delivering.
			o.SetVSP(prevVSP)
			o.Clear()
			res = Result{Thrown: thrown}
		}
	}()

	results := o.ReturnResults()

	var thrown wasm.Throwable
	if e.conf.NativeDispatch && o.TargetCode() != 0 {
		// The resume stub pops the seeded enter-func address and performs
		// the switch entirely in native code.
		nativecall(e.stubs.Resume(), uintptr(unsafe.Pointer(o)), uintptr(unsafe.Pointer(o.Bottom())))
	} else {
		// Interpreter-tier entry: consume the enter-func return address the
		// resume stub would have popped, then drive the same dispatch from
		// the runtime side.
		o.SetRSP(o.RSP() + 8)
		thrown = e.enterFunc(o)
	}

	if thrown != nil {
		o.SetVSP(prevVSP)
		o.Clear()
		return Result{Thrown: thrown}
	}

	vs := o.PopN(results)
	if o.VSP() != prevVSP {
		o.Clear()
		return Result{Thrown: wasm.NewInternalError(
			"stack not neutral after call: vsp %#x, expected %#x", o.VSP(), prevVSP)}
	}
	o.Clear()
	return Result{Values: vs}
}

// enterFunc is the runtime-side half of the enter-func stub: dispatch on
// the pending function, looping when a host tail-calls into Wasm.
func (e *Engine) enterFunc(o *stack.Object) (thrown wasm.Throwable) {
	ec := &execContext{e: e, o: o}
	// Traps raised by panic (tag mismatches, native stack exhaustion) are
	// caught here, while the frame chain is still walkable, so they reach
	// the host with a trace like any other trap.
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		t, ok := v.(wasm.Throwable)
		if !ok {
			panic(v)
		}
		if trap, isTrap := t.(*wasm.Trap); isTrap && trap.Reason != wasm.TrapReasonHost && len(trap.Backtrace()) == 0 {
			trap.PrependFrames(e.Walk(ec.frameSP()))
		}
		thrown = t
	}()
	f := o.Func()
	for {
		switch fn := f.(type) {
		case *wasm.WasmFunction:
			return ec.invoke(fn)
		case *wasm.HostFunction:
			next, hostThrown := ec.callHost2(fn)
			if hostThrown != nil || next == nil {
				return hostThrown
			}
			// Tail-call from host into Wasm: loop back to the Wasm branch
			// without growing the native stack.
			f = next
		default:
			return wasm.NewInternalError("unknown function kind %T", f)
		}
	}
}

func validateArgs(f wasm.Function, args []value.Value) error {
	params := f.ParamTypes()
	if len(args) != len(params) {
		return fmt.Errorf("%s requires %d arguments, got %d", f, len(params), len(args))
	}
	for i, p := range params {
		if p.IsRef() {
			if !args[i].Kind.IsRef() {
				return fmt.Errorf("argument %d: expected %s, got %s", i, p, args[i].Kind)
			}
			continue
		}
		if args[i].Kind != p {
			return fmt.Errorf("argument %d: expected %s, got %s", i, p, args[i].Kind)
		}
	}
	return nil
}

func (e *Engine) acquireStack() (*stack.Object, error) {
	if n := len(e.freeStacks); n > 0 {
		o := e.freeStacks[n-1]
		e.freeStacks = e.freeStacks[:n-1]
		return o, nil
	}
	o, err := stack.NewObject(e.conf.StackSize, e.rep)
	if err != nil {
		return nil, err
	}
	e.allStacks = append(e.allStacks, o)
	return o, nil
}

func (e *Engine) releaseStack(o *stack.Object) {
	if o.State() != stack.StateEmpty {
		o.Clear()
	}
	e.freeStacks = append(e.freeStacks, o)
}

// ScanRoots reports every GC root on every stack the engine owns. Value
// stacks are scanned precisely through their tags. Native frame regions
// have no stack maps yet; every pointer-aligned word between rsp and the
// top of the mapping is reported through visitAmbiguous and must be pinned
// by the collector.
func (e *Engine) ScanRoots(visit func(root uintptr), visitAmbiguous func(slot uintptr)) {
	for _, o := range e.allStacks {
		if o.State() == stack.StateEmpty {
			continue
		}
		o.Scan(visit)
		if visitAmbiguous != nil {
			for p := o.RSP(); p < o.RangeEnd(); p += 8 {
				visitAmbiguous(p)
			}
		}
	}
}

// Close releases the stubs, pooled stacks and compiled code segments.
func (e *Engine) Close() error {
	var firstErr error
	for _, o := range e.allStacks {
		if err := o.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.allStacks = nil
	e.freeStacks = nil
	for _, seg := range e.compiledSegments {
		if err := platform.MunmapCode(seg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.compiledSegments = nil
	if e.stubs != nil {
		e.stubs.release()
		e.stubs = nil
	}
	return firstErr
}

func codeAddr(code []byte) uintptr {
	return uintptr(unsafe.Pointer(&code[0]))
}

func debugf(format string, args ...interface{}) {
	if buildoptions.IsDebugMode {
		fmt.Printf(format+"\n", args...)
	}
}
