package value

import (
	"fmt"
	"math"
	"unsafe"
)

// Type is the one-byte code identifying the kind of a value on the value
// stack. The numeric values are aligned with the Wasm binary format so the
// tag byte written by the interpreter can be compared against type bytes
// decoded straight out of a module.
type Type byte

const (
	TypeI32  Type = 0x7f
	TypeI64  Type = 0x7e
	TypeF32  Type = 0x7d
	TypeF64  Type = 0x7c
	TypeV128 Type = 0x7b

	TypeFuncref       Type = 0x70
	TypeExternref     Type = 0x6f
	TypeAnyref        Type = 0x6e
	TypeEqref         Type = 0x6d
	TypeI31ref        Type = 0x6c
	TypeStructref     Type = 0x6b
	TypeArrayref      Type = 0x6a
	TypeRef           Type = 0x64
	TypeRefNull       Type = 0x63
	TypeNullfuncref   Type = 0x73
	TypeNullexternref Type = 0x72
	TypeNullref       Type = 0x71
)

// IsRef returns true if the type belongs to the reference group. All the
// reference codes are accepted interchangeably when popping a reference;
// the non-reference codes are checked strictly.
func (t Type) IsRef() bool {
	switch t {
	case TypeFuncref, TypeExternref, TypeAnyref, TypeEqref, TypeI31ref,
		TypeStructref, TypeArrayref, TypeRef, TypeRefNull,
		TypeNullfuncref, TypeNullexternref, TypeNullref:
		return true
	}
	return false
}

// IsKnown returns true if t is one of the defined type codes. The tag byte
// of every slot on a tagged value stack must satisfy this.
func (t Type) IsKnown() bool {
	switch t {
	case TypeI32, TypeI64, TypeF32, TypeF64, TypeV128:
		return true
	}
	return t.IsRef()
}

func (t Type) String() (ret string) {
	switch t {
	case TypeI32:
		ret = "i32"
	case TypeI64:
		ret = "i64"
	case TypeF32:
		ret = "f32"
	case TypeF64:
		ret = "f64"
	case TypeV128:
		ret = "v128"
	case TypeFuncref:
		ret = "funcref"
	case TypeExternref:
		ret = "externref"
	case TypeAnyref:
		ret = "anyref"
	case TypeEqref:
		ret = "eqref"
	case TypeI31ref:
		ret = "i31ref"
	case TypeStructref:
		ret = "structref"
	case TypeArrayref:
		ret = "arrayref"
	case TypeRef:
		ret = "ref"
	case TypeRefNull:
		ret = "ref null"
	case TypeNullfuncref:
		ret = "nullfuncref"
	case TypeNullexternref:
		ret = "nullexternref"
	case TypeNullref:
		ret = "nullref"
	default:
		ret = fmt.Sprintf("unknown(0x%x)", byte(t))
	}
	return
}

// Value is a single Wasm value. Every variant occupies exactly one slot on
// the value stack; V128 is the only variant using both payload halves.
//
// For reference variants, Lo holds the pointer bits of the referenced heap
// object, zero for null, or (x<<1)|1 for an inline i31. Heap pointers are at
// least 8-byte aligned, so the low payload bit uniquely identifies an i31.
type Value struct {
	Kind   Type
	Lo, Hi uint64
}

func I32(v uint32) Value { return Value{Kind: TypeI32, Lo: uint64(v)} }
func I64(v uint64) Value { return Value{Kind: TypeI64, Lo: v} }

func F32(v float32) Value { return Value{Kind: TypeF32, Lo: uint64(math.Float32bits(v))} }
func F64(v float64) Value { return Value{Kind: TypeF64, Lo: math.Float64bits(v)} }

// F32Bits and F64Bits construct float values from raw bit patterns, which
// preserves NaN payloads that would be lost round-tripping through float64.
func F32Bits(bits uint32) Value { return Value{Kind: TypeF32, Lo: uint64(bits)} }
func F64Bits(bits uint64) Value { return Value{Kind: TypeF64, Lo: bits} }

func V128(lo, hi uint64) Value { return Value{Kind: TypeV128, Lo: lo, Hi: hi} }

// I31 constructs an inline 31-bit integer reference. The payload is encoded
// as (x<<1)|1 so the GC scanner can tell it apart from a heap pointer.
func I31(x uint32) Value {
	return Value{Kind: TypeI31ref, Lo: uint64(x&0x7fffffff)<<1 | 1}
}

// Ref constructs a reference to the heap object at p, tagged with the given
// reference type code. p must be at least 2-byte aligned (Go heap pointers
// always are) so the low payload bit stays clear.
func Ref(kind Type, p unsafe.Pointer) Value {
	if !kind.IsRef() {
		panic(fmt.Errorf("value: Ref with non-reference type %s", kind))
	}
	return Value{Kind: kind, Lo: uint64(uintptr(p))}
}

// Null constructs a null reference of the given reference type code.
func Null(kind Type) Value {
	if !kind.IsRef() {
		panic(fmt.Errorf("value: Null with non-reference type %s", kind))
	}
	return Value{Kind: kind}
}

// IsNull reports whether v is a null reference.
func (v Value) IsNull() bool { return v.Kind.IsRef() && v.Lo == 0 }

// IsI31 reports whether v is an inline i31 (low payload bit set).
func (v Value) IsI31() bool { return v.Kind.IsRef() && v.Lo&1 == 1 }

// I31Value returns the 31-bit payload of an inline i31.
func (v Value) I31Value() uint32 {
	if !v.IsI31() {
		panic(fmt.Errorf("value: I31Value on %s", v.Kind))
	}
	return uint32(v.Lo >> 1)
}

// Pointer returns the heap pointer of a non-null, non-i31 reference.
func (v Value) Pointer() unsafe.Pointer {
	if !v.Kind.IsRef() || v.Lo == 0 || v.Lo&1 == 1 {
		panic(fmt.Errorf("value: Pointer on %s payload %#x", v.Kind, v.Lo))
	}
	return unsafe.Pointer(uintptr(v.Lo))
}

func (v Value) U32() uint32 {
	if v.Kind != TypeI32 {
		panic(fmt.Errorf("value: U32 on %s", v.Kind))
	}
	return uint32(v.Lo)
}

func (v Value) U64() uint64 {
	if v.Kind != TypeI64 {
		panic(fmt.Errorf("value: U64 on %s", v.Kind))
	}
	return v.Lo
}

func (v Value) Float32() float32 {
	if v.Kind != TypeF32 {
		panic(fmt.Errorf("value: Float32 on %s", v.Kind))
	}
	return math.Float32frombits(uint32(v.Lo))
}

func (v Value) Float64() float64 {
	if v.Kind != TypeF64 {
		panic(fmt.Errorf("value: Float64 on %s", v.Kind))
	}
	return math.Float64frombits(v.Lo)
}

func (v Value) String() string {
	switch v.Kind {
	case TypeI32:
		return fmt.Sprintf("i32:%d", uint32(v.Lo))
	case TypeI64:
		return fmt.Sprintf("i64:%d", v.Lo)
	case TypeF32:
		return fmt.Sprintf("f32:%g", v.Float32())
	case TypeF64:
		return fmt.Sprintf("f64:%g", v.Float64())
	case TypeV128:
		return fmt.Sprintf("v128:%#x%016x", v.Hi, v.Lo)
	default:
		if v.IsNull() {
			return fmt.Sprintf("%s:null", v.Kind)
		}
		if v.IsI31() {
			return fmt.Sprintf("i31:%d", v.I31Value())
		}
		return fmt.Sprintf("%s:%#x", v.Kind, v.Lo)
	}
}

// Default returns the zero value for the given type: numeric zero for the
// numeric types, null for the reference types.
func Default(t Type) Value {
	if t.IsRef() {
		return Null(t)
	}
	return Value{Kind: t}
}
