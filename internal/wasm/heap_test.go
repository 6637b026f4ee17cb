package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aoli-al/wizard-engine/internal/value"
)

func TestPackedExtend(t *testing.T) {
	i8 := FieldType{Unpacked: value.TypeI32, Packed: PackedI8}
	i16 := FieldType{Unpacked: value.TypeI32, Packed: PackedI16}
	full := FieldType{Unpacked: value.TypeI64}

	for _, tc := range []struct {
		name   string
		ft     FieldType
		raw    uint64
		signed bool
		exp    uint64
	}{
		{"i8 zero extend", i8, 0xff, false, 0xff},
		{"i8 sign extend", i8, 0xff, true, 0xffffffff},
		{"i8 positive", i8, 0x7f, true, 0x7f},
		{"i16 zero extend", i16, 0x8000, false, 0x8000},
		{"i16 sign extend", i16, 0x8000, true, 0xffff8000},
		{"unpacked untouched", full, 0xdeadbeefcafef00d, true, 0xdeadbeefcafef00d},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.exp, tc.ft.Extend(tc.raw, tc.signed))
		})
	}

	require.Equal(t, uint64(0x34), i8.Truncate(0x1234))
	require.Equal(t, uint64(0x1234), i16.Truncate(0xff1234))
	require.Equal(t, uint64(0xff1234), full.Truncate(0xff1234))
}

func TestStructDefaults(t *testing.T) {
	decl := &StructDecl{Fields: []FieldType{
		{Unpacked: value.TypeI32},
		{Unpacked: value.TypeF64},
		{Unpacked: value.TypeAnyref},
	}}
	obj := NewStructObjectDefault(decl)
	require.Equal(t, uint32(0), obj.Fields[0].U32())
	require.Equal(t, 0.0, obj.Fields[1].Float64())
	require.True(t, obj.Fields[2].IsNull())
}

func TestArrayAllocationLimit(t *testing.T) {
	decl := &ArrayDecl{Elem: FieldType{Unpacked: value.TypeI32}}
	obj := NewArrayObject(decl, 4, value.I32(7))
	require.NotNil(t, obj)
	require.Equal(t, uint32(4), obj.Length())
	require.Equal(t, uint32(7), obj.Elems[3].U32())

	require.Nil(t, NewArrayObject(decl, MaxArrayLength+1, value.I32(0)))
}

func TestInstanceDroppedSegments(t *testing.T) {
	inst := NewInstance()
	inst.Module.Data = [][]byte{{1, 2, 3}}
	inst.Module.Elems = [][]value.Value{{value.I31(1)}}

	require.Equal(t, []byte{1, 2, 3}, inst.DataSegment(0))
	inst.DropData(0)
	require.Nil(t, inst.DataSegment(0))

	require.Len(t, inst.ElemSegment(0), 1)
	inst.DropElem(0)
	require.Nil(t, inst.ElemSegment(0))
}
