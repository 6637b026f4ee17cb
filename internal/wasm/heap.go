package wasm

import (
	"github.com/aoli-al/wizard-engine/internal/value"
)

// MaxArrayLength is the implementation limit on Wasm GC array allocation.
// array.new with a larger length traps with out-of-memory rather than
// attempting the allocation.
const MaxArrayLength = uint32(1) << 28

// PackedKind describes a struct field or array element whose storage type
// is narrower than its unpacked i32 representation.
type PackedKind byte

const (
	PackedNone PackedKind = iota
	PackedI8
	PackedI16
)

// FieldType is the storage type of one struct field or of an array element.
type FieldType struct {
	// Unpacked is the type code seen on the value stack.
	Unpacked value.Type
	Packed   PackedKind
	Mutable  bool
}

// Extend reinterprets a raw payload read from a packed field: sign or zero
// extension to the slot width per the accessor variant.
func (f FieldType) Extend(raw uint64, signed bool) uint64 {
	switch f.Packed {
	case PackedI8:
		if signed {
			return uint64(uint32(int32(int8(raw))))
		}
		return uint64(uint8(raw))
	case PackedI16:
		if signed {
			return uint64(uint32(int32(int16(raw))))
		}
		return uint64(uint16(raw))
	default:
		return raw
	}
}

// Truncate narrows a value being stored into a packed field.
func (f FieldType) Truncate(raw uint64) uint64 {
	switch f.Packed {
	case PackedI8:
		return uint64(uint8(raw))
	case PackedI16:
		return uint64(uint16(raw))
	default:
		return raw
	}
}

// Default returns the field's zero value.
func (f FieldType) Default() value.Value { return value.Default(f.Unpacked) }

// HeapTypeDecl is a struct or array declaration in an instance's heap type
// section.
type HeapTypeDecl interface {
	heapTypeDecl()
}

// StructDecl declares a struct heap type.
type StructDecl struct {
	Fields []FieldType
}

func (*StructDecl) heapTypeDecl() {}

// ArrayDecl declares an array heap type.
type ArrayDecl struct {
	Elem FieldType
}

func (*ArrayDecl) heapTypeDecl() {}

// StructObject is an allocated Wasm GC struct: its declaration plus one
// value per field. Any reference to it on a reachable value stack is a GC
// root.
type StructObject struct {
	Decl   *StructDecl
	Fields []value.Value
}

// NewStructObject allocates a struct with the given field values, which
// must already be in declaration order.
func NewStructObject(decl *StructDecl, fields []value.Value) *StructObject {
	return &StructObject{Decl: decl, Fields: fields}
}

// NewStructObjectDefault allocates a struct with every field defaulted.
func NewStructObjectDefault(decl *StructDecl) *StructObject {
	fields := make([]value.Value, len(decl.Fields))
	for i, f := range decl.Fields {
		fields[i] = f.Default()
	}
	return &StructObject{Decl: decl, Fields: fields}
}

// ArrayObject is an allocated Wasm GC array.
type ArrayObject struct {
	Decl  *ArrayDecl
	Elems []value.Value
}

// NewArrayObject allocates an array of length copies of init. Returns nil
// if length exceeds the implementation limit.
func NewArrayObject(decl *ArrayDecl, length uint32, init value.Value) *ArrayObject {
	if length > MaxArrayLength {
		return nil
	}
	elems := make([]value.Value, length)
	for i := range elems {
		elems[i] = init
	}
	return &ArrayObject{Decl: decl, Elems: elems}
}

// Length returns the element count.
func (a *ArrayObject) Length() uint32 { return uint32(len(a.Elems)) }
