package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aoli-al/wizard-engine/internal/value"
)

func TestTableGetSetBounds(t *testing.T) {
	tab := NewTableInstance(value.TypeFuncref, 2, 4)
	require.Equal(t, uint32(2), tab.Size())

	v, ok := tab.Get(0)
	require.True(t, ok)
	require.True(t, v.IsNull())

	require.True(t, tab.Set(1, value.I31(5)))
	v, ok = tab.Get(1)
	require.True(t, ok)
	require.Equal(t, uint32(5), v.I31Value())

	_, ok = tab.Get(2)
	require.False(t, ok)
	require.False(t, tab.Set(2, value.I31(1)))
}

func TestTableGrow(t *testing.T) {
	tab := NewTableInstance(value.TypeExternref, 1, 3)
	prev, ok := tab.Grow(2, value.Null(value.TypeExternref))
	require.True(t, ok)
	require.Equal(t, uint32(1), prev)
	require.Equal(t, uint32(3), tab.Size())

	_, ok = tab.Grow(1, value.Null(value.TypeExternref))
	require.False(t, ok)

	unbounded := NewTableInstance(value.TypeExternref, 0, 0)
	prev, ok = unbounded.Grow(100, value.Null(value.TypeExternref))
	require.True(t, ok)
	require.Equal(t, uint32(0), prev)
}

func TestTableInitCopyFill(t *testing.T) {
	tab := NewTableInstance(value.TypeFuncref, 4, 0)
	elems := []value.Value{value.I31(1), value.I31(2), value.I31(3)}

	require.True(t, tab.Init(elems, 1, 0, 2))
	require.Equal(t, uint32(1), tab.Elements[1].I31Value())
	require.Equal(t, uint32(2), tab.Elements[2].I31Value())
	require.False(t, tab.Init(elems, 0, 2, 2), "source overflow")
	require.False(t, tab.Init(elems, 3, 0, 2), "destination overflow")

	require.True(t, tab.Fill(0, value.I31(9), 2))
	require.Equal(t, uint32(9), tab.Elements[0].I31Value())
	require.False(t, tab.Fill(3, value.I31(9), 2))

	dst := NewTableInstance(value.TypeFuncref, 2, 0)
	require.True(t, dst.CopyFrom(tab, 0, 1, 2))
	require.Equal(t, uint32(9), dst.Elements[0].I31Value())
	require.False(t, dst.CopyFrom(tab, 1, 0, 2))
}
