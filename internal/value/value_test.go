package value

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestTypeIsRef(t *testing.T) {
	for _, tc := range []struct {
		ty  Type
		exp bool
	}{
		{TypeI32, false},
		{TypeI64, false},
		{TypeF32, false},
		{TypeF64, false},
		{TypeV128, false},
		{TypeFuncref, true},
		{TypeExternref, true},
		{TypeAnyref, true},
		{TypeEqref, true},
		{TypeI31ref, true},
		{TypeStructref, true},
		{TypeArrayref, true},
		{TypeRef, true},
		{TypeRefNull, true},
		{TypeNullfuncref, true},
		{TypeNullexternref, true},
		{TypeNullref, true},
	} {
		tc := tc
		t.Run(tc.ty.String(), func(t *testing.T) {
			require.Equal(t, tc.exp, tc.ty.IsRef())
			require.True(t, tc.ty.IsKnown())
		})
	}
	require.False(t, Type(0).IsKnown())
}

func TestValueAccessors(t *testing.T) {
	require.Equal(t, uint32(42), I32(42).U32())
	require.Equal(t, uint64(1<<40), I64(1<<40).U64())
	require.Equal(t, float32(1.5), F32(1.5).Float32())
	require.Equal(t, 2.5, F64(2.5).Float64())

	v := V128(0xdeadbeef, 0xcafe)
	require.Equal(t, uint64(0xdeadbeef), v.Lo)
	require.Equal(t, uint64(0xcafe), v.Hi)

	require.Panics(t, func() { I32(1).U64() })
	require.Panics(t, func() { F32(1).Float64() })
}

func TestI31LowBit(t *testing.T) {
	for _, x := range []uint32{0, 1, 42, 0x7fffffff} {
		v := I31(x)
		require.Equal(t, uint64(1), v.Lo&1, "i31 payload must keep its low bit set")
		require.True(t, v.IsI31())
		require.Equal(t, x&0x7fffffff, v.I31Value())
	}
}

func TestRefAndNull(t *testing.T) {
	var target uint64
	p := unsafe.Pointer(&target)
	v := Ref(TypeStructref, p)
	require.False(t, v.IsNull())
	require.False(t, v.IsI31())
	require.Equal(t, p, v.Pointer())

	n := Null(TypeExternref)
	require.True(t, n.IsNull())
	require.Panics(t, func() { n.Pointer() })

	require.Panics(t, func() { Ref(TypeI32, p) })
	require.Panics(t, func() { Null(TypeI64) })
}

func TestDefault(t *testing.T) {
	require.Equal(t, uint32(0), Default(TypeI32).U32())
	require.True(t, Default(TypeFuncref).IsNull())
}

func TestRepValidate(t *testing.T) {
	require.NoError(t, TaggedRep().Validate())
	require.NoError(t, UntaggedRep().Validate())

	require.Error(t, Rep{Tagged: true, TagSize: 0, SlotSize: 24}.Validate())
	require.Error(t, Rep{Tagged: false, TagSize: 8, SlotSize: 24}.Validate())
	require.Error(t, Rep{Tagged: true, TagSize: 8, SlotSize: 16}.Validate())
}
