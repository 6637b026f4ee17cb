package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aoli-al/wizard-engine/internal/stack"
	"github.com/aoli-al/wizard-engine/internal/value"
	"github.com/aoli-al/wizard-engine/internal/wasm"
)

// countingPolicy hands out an OSR record once the loop has been probed
// enough times, standing in for the external tiering policy.
type countingPolicy struct {
	threshold uint64
	seen      uint64
	record    *OSRRecord
}

func (p *countingPolicy) OSRRequest(fn *wasm.WasmFunction, pc uint32) *OSRRecord {
	p.seen++
	if p.seen <= p.threshold {
		return nil
	}
	return p.record
}

func TestOSRIntoCompiledTier(t *testing.T) {
	e := newTestEngine(t)

	const loopPC = 0x8
	const iterations = 10_001

	decl := &wasm.FuncDecl{Type: &wasm.FuncType{Results: i32Types(1)}}
	var compiledRuns uint64
	decl.Compiled = wasm.InterpFunc(func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		compiledRuns++
		rt.Push(value.I32(iterations))
		return nil
	})

	entry, err := e.RegisterCompiledCode(decl, make([]byte, 64), []wasm.OSREntry{{PC: loopPC, Offset: 32}})
	require.NoError(t, err)
	// Clear the target so the first run goes through the interpreter; the
	// interpreter body below re-arms it once tier-up fires.
	decl.TargetCode = 0

	policy := &countingPolicy{
		threshold: 10_000,
		record:    &OSRRecord{Entry: entry, Table: []wasm.OSREntry{{PC: loopPC, Offset: 32}}},
	}
	e.SetTieringPolicy(policy)

	var tieredRA uintptr
	fn := &wasm.WasmFunction{Name: "hotloop", Decl: decl}
	decl.Interp = wasm.InterpFunc(func(f *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		c := rt.(*execContext)
		for i := 0; i < iterations; i++ {
			if thrown := rt.ProbeLoop(f, loopPC); thrown != nil {
				return thrown
			}
			rt.TierUp(f, loopPC)
			if ra := stack.LoadPointer(c.frameSP() - 8); ra != c.e.stubs.InterpMarker() {
				// The pending return address was rewritten: the next ret
				// lands in compiled code.
				tieredRA = ra
				decl.TargetCode = entry
				rt.Push(value.I32(uint32(i + 1)))
				return nil
			}
		}
		rt.Push(value.I32(iterations))
		return nil
	})

	res, err := e.Run(fn, nil)
	require.NoError(t, err)
	require.False(t, res.IsThrow())
	// The 10,001st iteration observed the rewritten return address.
	require.Equal(t, []value.Value{value.I32(10_001)}, res.Values)

	region := e.regions.lookup(tieredRA)
	require.NotNil(t, region)
	require.Equal(t, RegionSPC, region.Kind)
	require.Equal(t, entry+32, tieredRA)
	require.Equal(t, uint64(1), e.Counters().TierUps)
	require.Equal(t, uint64(10_001), e.Counters().LoopProbes)

	// A subsequent call reaching the declaration executes the compiled
	// entry, observable through the instrumentation counters.
	res, err = e.Run(fn, nil)
	require.NoError(t, err)
	require.False(t, res.IsThrow())
	require.Equal(t, uint64(1), compiledRuns)
	require.Equal(t, uint64(1), e.Counters().CompiledEntries)
}

func TestTierUpMissIsNoOp(t *testing.T) {
	e := newTestEngine(t)

	decl := &wasm.FuncDecl{Type: &wasm.FuncType{}}
	entry, err := e.RegisterCompiledCode(decl, make([]byte, 16), nil)
	require.NoError(t, err)
	decl.TargetCode = 0

	// The policy offers an OSR record, but with no entry for the probed pc.
	e.SetTieringPolicy(&countingPolicy{
		record: &OSRRecord{Entry: entry, Table: []wasm.OSREntry{{PC: 0x99, Offset: 8}}},
	})

	fn := &wasm.WasmFunction{Name: "cold", Decl: decl}
	decl.Interp = wasm.InterpFunc(func(f *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		c := rt.(*execContext)
		before := stack.LoadPointer(c.frameSP() - 8)
		rt.TierUp(f, 0x8)
		require.Equal(t, before, stack.LoadPointer(c.frameSP()-8))
		return nil
	})

	res, err := e.Run(fn, nil)
	require.NoError(t, err)
	require.False(t, res.IsThrow())
	require.Zero(t, e.Counters().TierUps)
}

func TestTierUpRequiresMatchingFrame(t *testing.T) {
	e := newTestEngine(t)

	otherDecl := &wasm.FuncDecl{Type: &wasm.FuncType{}}
	entry, err := e.RegisterCompiledCode(otherDecl, make([]byte, 16), nil)
	require.NoError(t, err)
	other := &wasm.WasmFunction{Name: "other", Decl: otherDecl}

	e.SetTieringPolicy(&countingPolicy{
		record: &OSRRecord{Entry: entry, Table: []wasm.OSREntry{{PC: 0x8, Offset: 8}}},
	})

	f := wasmFn("running", nil, nil, func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
		c := rt.(*execContext)
		before := stack.LoadPointer(c.frameSP() - 8)
		// The frame below belongs to "running", not "other": no-op.
		rt.TierUp(other, 0x8)
		require.Equal(t, before, stack.LoadPointer(c.frameSP()-8))
		return nil
	})

	res, err := e.Run(f, nil)
	require.NoError(t, err)
	require.False(t, res.IsThrow())
	require.Zero(t, e.Counters().TierUps)
}
