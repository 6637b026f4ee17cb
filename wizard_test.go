package wizard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aoli-al/wizard-engine/internal/value"
	"github.com/aoli-al/wizard-engine/internal/wasm"
)

func TestPublicRun(t *testing.T) {
	eng, err := NewEngine(NewConfig().WithStackSize(256 * 1024))
	require.NoError(t, err)
	defer eng.Close()

	f := &WasmFunction{
		Name: "answer",
		Decl: &FuncDecl{
			Type: &FuncType{Results: []value.Type{value.TypeI32}},
			Interp: wasm.InterpFunc(func(fn *wasm.WasmFunction, rt wasm.Runtime) wasm.Throwable {
				rt.Push(value.I32(42))
				return nil
			}),
		},
	}

	res, err := eng.Run(f, nil)
	require.NoError(t, err)
	require.False(t, res.IsThrow())
	require.Equal(t, []Value{value.I32(42)}, res.Values)
}

func TestPublicConfig(t *testing.T) {
	c := NewConfig().WithTagged(false).WithMultiTier(false)
	eng, err := NewEngine(c)
	require.NoError(t, err)
	require.NoError(t, eng.Close())
}
