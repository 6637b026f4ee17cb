package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestVerifyInstanceOffsets pins the Instance layout generated code relies
// on: slice headers are 24 bytes apart, pointers 8.
func TestVerifyInstanceOffsets(t *testing.T) {
	o := OffsetsOfInstance()
	require.Equal(t, Offset(0), o.Memories)
	require.Equal(t, Offset(24), o.Tables)
	require.Equal(t, Offset(48), o.Globals)
	require.Equal(t, Offset(72), o.HeapTypes)
	require.Equal(t, Offset(96), o.Module)
	require.Equal(t, Offset(104), o.DroppedData)
	require.Equal(t, Offset(112), o.DroppedElems)
	require.Equal(t, Offset(0), o.ModuleData)
	require.Equal(t, Offset(24), o.ModuleElems)
}
