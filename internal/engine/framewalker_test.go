package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aoli-al/wizard-engine/internal/stack"
	"github.com/aoli-al/wizard-engine/internal/value"
	"github.com/aoli-al/wizard-engine/internal/wasm"
)

func TestFrameAccessorCachedInFrame(t *testing.T) {
	e := newTestEngine(t)
	f := wasmFn("f", nil, nil, func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		c := rt.(*execContext)
		first := c.e.FrameAt(c.frameSP())
		require.NotNil(t, first)
		require.Same(t, fn, first.Function())

		// Inflation is memoized through the frame's reserved slot.
		second := c.e.FrameAt(c.frameSP())
		require.Same(t, first, second)
		return nil
	})

	res, err := e.Run(f, nil)
	require.NoError(t, err)
	require.False(t, res.IsThrow())
}

func TestFrameAccessorPCAndCaller(t *testing.T) {
	e := newTestEngine(t)
	g := wasmFn("g", nil, nil, func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		rt.SyncPC(0x44)
		c := rt.(*execContext)
		frame := c.e.FrameAt(c.frameSP())
		require.Equal(t, uint32(0x44), frame.PC())

		caller, host := frame.Caller()
		require.False(t, host)
		require.NotNil(t, caller)
		require.Equal(t, "f", caller.Function().Name)
		require.Equal(t, uint32(0x11), caller.PC())

		// The outermost frame's caller is the host.
		top, host := caller.Caller()
		require.Nil(t, top)
		require.True(t, host)
		return nil
	})
	f := wasmFn("f", nil, nil, func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		rt.SyncPC(0x11)
		return rt.CallHost(g)
	})

	res, err := e.Run(f, nil)
	require.NoError(t, err)
	require.False(t, res.IsThrow())
}

func TestFrameAccessorLocals(t *testing.T) {
	e := newTestEngine(t)
	f := wasmFn("locals", i32Types(2), i32Types(1), func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		c := rt.(*execContext)
		frame := c.e.FrameAt(c.frameSP())

		v, err := frame.ReadLocal(c.o, 0)
		require.NoError(t, err)
		require.Equal(t, value.I32(3), v)

		require.NoError(t, frame.WriteLocal(c.o, 1, value.I32(40)))

		// Reference writes stay rejected through the accessor path too.
		err = frame.WriteLocal(c.o, 1, value.Null(value.TypeAnyref))
		require.True(t, errors.Is(err, wasm.ErrUnsupported))

		b := rt.PopU32()
		a := rt.PopU32()
		rt.Push(value.I32(a + b))
		return nil
	})

	res, err := e.Run(f, []value.Value{value.I32(3), value.I32(4)})
	require.NoError(t, err)
	require.Equal(t, []value.Value{value.I32(43)}, res.Values)
}

func TestWalkSPCFramePCReconstruction(t *testing.T) {
	e := newTestEngine(t)

	decl := &wasm.FuncDecl{Type: &wasm.FuncType{}}
	code := make([]byte, 32)
	entry, err := e.RegisterCompiledCode(decl, code, []wasm.OSREntry{{PC: 0x30, Offset: 16}})
	require.NoError(t, err)
	fn := &wasm.WasmFunction{Name: "compiled", Decl: decl}

	o, err := e.acquireStack()
	require.NoError(t, err)
	defer e.releaseStack(o)

	// Hand-build one SPC frame the way compiled code lays it out, with the
	// pending return address at an OSR point. The deepest return address on
	// a live stack is always the return-to-parent stub.
	o.PushReturnAddress(e.stubs.ReturnParent())
	ec := &execContext{e: e, o: o}
	ec.pushSPCFrame(fn, 0)
	sp := ec.frameSP()
	stack.StorePointer(sp-8, entry+16)

	frames := e.Walk(sp)
	require.Len(t, frames, 1)
	require.Same(t, fn, frames[0].Wasm)
	require.Equal(t, uint32(0x30), frames[0].PC)

	ec.popFrame()
}

func TestWalkStopsAtUnknownRegion(t *testing.T) {
	e := newTestEngine(t)
	o, err := e.acquireStack()
	require.NoError(t, err)
	defer e.releaseStack(o)

	// A stack with no Wasm frames yields an empty trace.
	o.PushReturnAddress(0xdead0000)
	require.Empty(t, e.Walk(o.RSP()+8))
}
