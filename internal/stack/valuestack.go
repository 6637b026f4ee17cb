package stack

import (
	"github.com/aoli-al/wizard-engine/internal/value"
	"github.com/aoli-al/wizard-engine/internal/wasm"
)

// ValueStack is the typed operand stack living in the lower region of a
// stack mapping. It grows upward from start; the native return-address
// stack grows downward toward it from the top of the same mapping, with a
// guard page in between.
//
// In tagged mode every slot carries its type code in the low 7 bits of the
// tag byte; the high bit is reserved and must never be set. A tag mismatch
// on pop is an engine bug, not a Wasm trap, and panics with an internal
// error which the outermost Run converts into a distinct failure reason.
type ValueStack struct {
	// vsp is the value stack pointer, the address of the next free slot.
	// Generated code keeps it in the dedicated VSP register while running
	// and spills it back here on exit, so this field must stay first.
	vsp   uintptr
	start uintptr
	limit uintptr
	rep   value.Rep
}

// Init points the stack at [start, limit) with the given representation.
func (s *ValueStack) Init(start, limit uintptr, rep value.Rep) {
	s.vsp = start
	s.start = start
	s.limit = limit
	s.rep = rep
}

// VSP returns the current value stack pointer.
func (s *ValueStack) VSP() uintptr { return s.vsp }

// Start returns the base of the value region.
func (s *ValueStack) Start() uintptr { return s.start }

// Rep returns the slot representation in use.
func (s *ValueStack) Rep() value.Rep { return s.rep }

// Depth returns the number of occupied slots.
func (s *ValueStack) Depth() int { return int((s.vsp - s.start) / s.rep.SlotSize) }

// SetVSP rewinds the stack pointer, used when resetting after a throw. p
// must be a slot boundary within the region.
func (s *ValueStack) SetVSP(p uintptr) {
	if p < s.start || p > s.limit || (p-s.start)%s.rep.SlotSize != 0 {
		panic(wasm.NewInternalError("value stack reset to %#x outside [%#x,%#x]", p, s.start, s.limit))
	}
	s.vsp = p
}

// Push writes one value into the next free slot.
func (s *ValueStack) Push(v value.Value) {
	if s.vsp+s.rep.SlotSize > s.limit {
		// The guard page would catch the write below, but failing softly
		// first keeps the mapping reusable.
		panic(wasm.NewTrap(wasm.TrapReasonStackOverflow))
	}
	if v.Kind.IsRef() && v.Lo != 0 && v.Lo&1 == 1 && v.Kind != value.TypeI31ref {
		// Heap pointers must be at least 2-byte aligned: the low payload bit
		// is how the scanner tells an inline i31 from a pointer.
		panic(wasm.NewInternalError("misaligned reference payload %#x", v.Lo))
	}
	if s.rep.Tagged {
		if byte(v.Kind)&0x80 != 0 {
			panic(wasm.NewInternalError("tag high bit set for %s", v.Kind))
		}
		storeByte(s.vsp, byte(v.Kind))
	}
	storeU64(s.vsp+s.rep.TagSize, v.Lo)
	storeU64(s.vsp+s.rep.TagSize+8, v.Hi)
	s.vsp += s.rep.SlotSize
}

// popSlot rewinds one slot and returns its address.
func (s *ValueStack) popSlot() uintptr {
	if s.vsp == s.start {
		panic(wasm.NewInternalError("pop on empty value stack"))
	}
	s.vsp -= s.rep.SlotSize
	return s.vsp
}

func (s *ValueStack) checkTag(slot uintptr, expected value.Type) value.Type {
	if !s.rep.Tagged {
		return expected
	}
	tag := value.Type(loadByte(slot) & value.TagMask)
	if expected.IsRef() {
		if !tag.IsRef() {
			panic(wasm.NewInternalError("expected a reference, slot holds %s", tag))
		}
		return tag
	}
	if tag != expected {
		panic(wasm.NewInternalError("expected %s, slot holds %s", expected, tag))
	}
	return tag
}

// Pop removes the top slot, verifying its tag against expected. Reference
// expecteds accept any reference tag code.
func (s *ValueStack) Pop(expected value.Type) value.Value {
	slot := s.popSlot()
	kind := s.checkTag(slot, expected)
	return value.Value{
		Kind: kind,
		Lo:   loadU64(slot + s.rep.TagSize),
		Hi:   loadU64(slot + s.rep.TagSize + 8),
	}
}

// PopU32 pops an i32 slot.
func (s *ValueStack) PopU32() uint32 { return s.Pop(value.TypeI32).U32() }

// PopU64 pops an i64 slot.
func (s *ValueStack) PopU64() uint64 { return s.Pop(value.TypeI64).U64() }

// PopRef pops a slot holding any reference code.
func (s *ValueStack) PopRef() value.Value { return s.Pop(value.TypeAnyref) }

// PeekRef reads the top slot without popping, tag-checked as a reference.
// A payload with the low bit set decodes as an inline i31; a zero payload
// is a null reference.
func (s *ValueStack) PeekRef() value.Value {
	if s.vsp == s.start {
		panic(wasm.NewInternalError("peek on empty value stack"))
	}
	slot := s.vsp - s.rep.SlotSize
	kind := s.checkTag(slot, value.TypeAnyref)
	return value.Value{Kind: kind, Lo: loadU64(slot + s.rep.TagSize)}
}

// PopN pops one slot per type, consuming right-to-left so the returned
// slice matches declaration order.
func (s *ValueStack) PopN(types []value.Type) []value.Value {
	vs := make([]value.Value, len(types))
	for i := len(types) - 1; i >= 0; i-- {
		vs[i] = s.Pop(types[i])
	}
	return vs
}

// PushN pushes values in order.
func (s *ValueStack) PushN(vs []value.Value) {
	for _, v := range vs {
		s.Push(v)
	}
}

// ReadValue is the typed frame access used by frame accessors: it reads the
// slot at index idx (counted from the region base) without moving vsp.
// Requires tagged mode.
func (s *ValueStack) ReadValue(idx int) (value.Value, error) {
	if !s.rep.Tagged {
		return value.Value{}, wasm.ErrUnsupported
	}
	slot := s.start + uintptr(idx)*s.rep.SlotSize
	if slot >= s.vsp {
		return value.Value{}, wasm.NewInternalError("frame slot %d beyond vsp", idx)
	}
	kind := value.Type(loadByte(slot) & value.TagMask)
	return value.Value{
		Kind: kind,
		Lo:   loadU64(slot + s.rep.TagSize),
		Hi:   loadU64(slot + s.rep.TagSize + 8),
	}, nil
}

// WriteValue overwrites the slot at index idx. Reference values are
// rejected until the GC write barrier story is settled.
func (s *ValueStack) WriteValue(idx int, v value.Value) error {
	if !s.rep.Tagged {
		return wasm.ErrUnsupported
	}
	if v.Kind.IsRef() {
		return wasm.ErrUnsupported
	}
	slot := s.start + uintptr(idx)*s.rep.SlotSize
	if slot >= s.vsp {
		return wasm.NewInternalError("frame slot %d beyond vsp", idx)
	}
	storeByte(slot, byte(v.Kind))
	storeU64(slot+s.rep.TagSize, v.Lo)
	storeU64(slot+s.rep.TagSize+8, v.Hi)
	return nil
}

// Scan iterates the occupied slots and reports every heap reference as a GC
// root: slots whose tag is a reference code, whose payload is nonzero, and
// whose low payload bit is clear (inline i31s are not roots). Only valid in
// tagged mode; untagged stacks are scanned through compiler-emitted stack
// maps instead.
func (s *ValueStack) Scan(visit func(root uintptr)) {
	if !s.rep.Tagged {
		panic(wasm.NewInternalError("scan of untagged value stack"))
	}
	for slot := s.start; slot < s.vsp; slot += s.rep.SlotSize {
		tag := value.Type(loadByte(slot) & value.TagMask)
		if !tag.IsRef() {
			continue
		}
		payload := loadU64(slot + s.rep.TagSize)
		if payload == 0 || payload&1 == 1 {
			continue
		}
		visit(uintptr(payload))
	}
}
