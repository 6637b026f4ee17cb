package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aoli-al/wizard-engine/internal/stack"
	"github.com/aoli-al/wizard-engine/internal/value"
	"github.com/aoli-al/wizard-engine/internal/wasm"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e
}

func wasmFn(name string, params, results []value.Type, body wasm.InterpFunc) *wasm.WasmFunction {
	return &wasm.WasmFunction{
		Name: name,
		Decl: &wasm.FuncDecl{
			Type:   &wasm.FuncType{Params: params, Results: results},
			Interp: body,
		},
	}
}

func i32Types(n int) []value.Type {
	ts := make([]value.Type, n)
	for i := range ts {
		ts[i] = value.TypeI32
	}
	return ts
}

// pooledStack returns the stack object the last Run used.
func pooledStack(t *testing.T, e *Engine) *stack.Object {
	t.Helper()
	require.NotEmpty(t, e.freeStacks)
	return e.freeStacks[len(e.freeStacks)-1]
}

func TestRunReturnConstant(t *testing.T) {
	e := newTestEngine(t)
	f := wasmFn("answer", nil, i32Types(1), func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		rt.Push(value.I32(42))
		return nil
	})

	res, err := e.Run(f, nil)
	require.NoError(t, err)
	require.False(t, res.IsThrow())
	require.Equal(t, []value.Value{value.I32(42)}, res.Values)

	// Stack neutrality: the stack returned to the pool is fully unwound.
	o := pooledStack(t, e)
	require.Equal(t, o.RangeStart(), o.VSP())
	require.Equal(t, stack.StateEmpty, o.State())
}

func TestRunWithArguments(t *testing.T) {
	e := newTestEngine(t)
	f := wasmFn("add", i32Types(2), i32Types(1), func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		b := rt.PopU32()
		a := rt.PopU32()
		rt.Push(value.I32(a + b))
		return nil
	})

	res, err := e.Run(f, []value.Value{value.I32(3), value.I32(4)})
	require.NoError(t, err)
	require.Equal(t, []value.Value{value.I32(7)}, res.Values)
}

func TestRunMemoryGrow(t *testing.T) {
	e := newTestEngine(t)
	inst := wasm.NewInstance()
	inst.Memories = append(inst.Memories, wasm.NewMemoryInstance(1, 10))

	f := wasmFn("grow", nil, i32Types(1), func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		rt.Push(value.I32(2))
		return rt.MemoryGrow(inst, 0)
	})
	f.Instance = inst

	res, err := e.Run(f, nil)
	require.NoError(t, err)
	require.Equal(t, []value.Value{value.I32(1)}, res.Values)
	require.Equal(t, uint32(3), inst.Memories[0].PageSize())
}

func TestRunTrapWithTrace(t *testing.T) {
	e := newTestEngine(t)
	const pcOfLoad = 0x24
	f := wasmFn("loads", nil, i32Types(1), func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		// A load beyond the single memory page traps.
		return rt.Trap(fn, pcOfLoad, wasm.TrapReasonMemoryOutOfBounds)
	})

	res, err := e.Run(f, nil)
	require.NoError(t, err)
	require.True(t, res.IsThrow())
	require.True(t, errors.Is(res.Thrown, wasm.ErrRuntimeOutOfBoundsMemoryAccess))

	bt := res.Thrown.Backtrace()
	require.Len(t, bt, 1)
	require.Same(t, f, bt[0].Wasm)
	require.Equal(t, uint32(pcOfLoad), bt[0].PC)

	// Neutrality holds on the throw path too.
	o := pooledStack(t, e)
	require.Equal(t, o.RangeStart(), o.VSP())
}

func TestTrapTraceInnermostFirst(t *testing.T) {
	e := newTestEngine(t)
	var g *wasm.WasmFunction
	g = wasmFn("g", nil, nil, func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		return rt.Trap(fn, 7, wasm.TrapReasonUnreachable)
	})
	f := wasmFn("f", nil, nil, func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		rt.SyncPC(3)
		return rt.CallHost(g)
	})

	res, err := e.Run(f, nil)
	require.NoError(t, err)
	require.True(t, res.IsThrow())

	bt := res.Thrown.Backtrace()
	require.Len(t, bt, 2)
	require.Same(t, g, bt[0].Wasm)
	require.Equal(t, uint32(7), bt[0].PC)
	require.Same(t, f, bt[1].Wasm)
	require.Equal(t, uint32(3), bt[1].PC)
}

func TestStackHeightMismatchIsInternal(t *testing.T) {
	e := newTestEngine(t)
	f := wasmFn("bad", nil, i32Types(1), func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		rt.Push(value.I32(1))
		rt.Push(value.I32(2)) // one too many
		return nil
	})

	res, err := e.Run(f, nil)
	require.NoError(t, err)
	require.True(t, res.IsThrow())
	trap, ok := res.Thrown.(*wasm.Trap)
	require.True(t, ok)
	require.Equal(t, wasm.TrapReasonInternal, trap.Reason)
}

func TestTagMismatchSurfacesAsInternal(t *testing.T) {
	e := newTestEngine(t)
	f := wasmFn("mistyped", nil, nil, func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		rt.Push(value.I32(1))
		rt.PopU64() // engine bug: wrong tag
		return nil
	})

	res, err := e.Run(f, nil)
	require.NoError(t, err)
	require.True(t, res.IsThrow())
	trap, ok := res.Thrown.(*wasm.Trap)
	require.True(t, ok)
	require.Equal(t, wasm.TrapReasonInternal, trap.Reason)
}

func TestArgumentValidation(t *testing.T) {
	e := newTestEngine(t)
	f := wasmFn("one", i32Types(1), nil, func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		rt.PopU32()
		return nil
	})

	_, err := e.Run(f, nil)
	require.Error(t, err)

	_, err = e.Run(f, []value.Value{value.I64(1)})
	require.Error(t, err)

	_, err = e.Run(f, []value.Value{value.I32(1), value.I32(2)})
	require.Error(t, err)

	_, err = e.Run(f, []value.Value{value.I32(1)})
	require.NoError(t, err)
}

func TestDeepRecursionTrapsStackOverflow(t *testing.T) {
	e := newTestEngine(t)
	var f *wasm.WasmFunction
	f = wasmFn("loop", nil, nil, func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		return rt.CallHost(f)
	})

	res, err := e.Run(f, nil)
	require.NoError(t, err)
	require.True(t, res.IsThrow())
	require.True(t, errors.Is(res.Thrown, wasm.ErrRuntimeStackOverflow))
	require.NotEmpty(t, res.Thrown.Backtrace())

	// The mapping stays reusable after the overflow.
	ok := wasmFn("ok", nil, i32Types(1), func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		rt.Push(value.I32(5))
		return nil
	})
	res, err = e.Run(ok, nil)
	require.NoError(t, err)
	require.Equal(t, []value.Value{value.I32(5)}, res.Values)
}

func TestStackPoolReuse(t *testing.T) {
	e := newTestEngine(t)
	f := wasmFn("nop", nil, nil, func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		return nil
	})

	_, err := e.Run(f, nil)
	require.NoError(t, err)
	first := pooledStack(t, e)

	_, err = e.Run(f, nil)
	require.NoError(t, err)
	require.Same(t, first, pooledStack(t, e))
	require.Len(t, e.allStacks, 1)
}

func TestScanRootsAcrossRunningStack(t *testing.T) {
	e := newTestEngine(t)
	inst := wasm.NewInstance()
	decl := &wasm.StructDecl{Fields: []wasm.FieldType{{Unpacked: value.TypeI32}}}
	inst.HeapTypes = append(inst.HeapTypes, decl)

	var roots []uintptr
	f := wasmFn("alloc", nil, i32Types(1), func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		if thrown := rt.StructNewDefault(inst, 0); thrown != nil {
			return thrown
		}
		// Quiesced scan while a reference is live on the value stack.
		e.ScanRoots(func(root uintptr) { roots = append(roots, root) }, nil)
		ref := rt.PopRef()
		require.Equal(t, []uintptr{uintptr(ref.Lo)}, roots)
		rt.Push(value.I32(1))
		return nil
	})

	res, err := e.Run(f, nil)
	require.NoError(t, err)
	require.False(t, res.IsThrow())
}
