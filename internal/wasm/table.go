package wasm

import "github.com/aoli-al/wizard-engine/internal/value"

// TableInstance is a table of reference elements.
type TableInstance struct {
	Elements []value.Value
	Min      uint32
	// Max of zero means unbounded.
	Max uint32
	// ElemType is the reference type code the table was declared with;
	// unset elements are nulls of this type.
	ElemType value.Type
}

// NewTableInstance allocates min null elements.
func NewTableInstance(elemType value.Type, min, max uint32) *TableInstance {
	t := &TableInstance{Min: min, Max: max, ElemType: elemType}
	t.Elements = make([]value.Value, min)
	for i := range t.Elements {
		t.Elements[i] = value.Null(elemType)
	}
	return t
}

// Size returns the current element count.
func (t *TableInstance) Size() uint32 { return uint32(len(t.Elements)) }

func (t *TableInstance) hasRange(offset, count uint32) bool {
	return uint64(offset)+uint64(count) <= uint64(t.Size())
}

// Get returns the element at i, or false if i is out of bounds.
func (t *TableInstance) Get(i uint32) (value.Value, bool) {
	if i >= t.Size() {
		return value.Value{}, false
	}
	return t.Elements[i], true
}

// Set stores v at i, or returns false if i is out of bounds.
func (t *TableInstance) Set(i uint32, v value.Value) bool {
	if i >= t.Size() {
		return false
	}
	t.Elements[i] = v
	return true
}

// Grow appends delta copies of init and returns the previous size, or false
// if the declared maximum would be exceeded. A failed grow is observed by
// the program as -1, not a trap.
func (t *TableInstance) Grow(delta uint32, init value.Value) (previous uint32, ok bool) {
	previous = t.Size()
	if t.Max != 0 && uint64(previous)+uint64(delta) > uint64(t.Max) {
		return 0, false
	}
	for i := uint32(0); i < delta; i++ {
		t.Elements = append(t.Elements, init)
	}
	return previous, true
}

// Init copies count elements of the passive element segment starting at src
// into the table at dst.
func (t *TableInstance) Init(elems []value.Value, dst, src, count uint32) bool {
	if uint64(src)+uint64(count) > uint64(len(elems)) || !t.hasRange(dst, count) {
		return false
	}
	copy(t.Elements[dst:dst+count], elems[src:src+count])
	return true
}

// CopyFrom copies count elements from src's range into this table.
// The semantics are isomorphic to memory.copy, including overlap handling.
func (t *TableInstance) CopyFrom(src *TableInstance, dstOff, srcOff, count uint32) bool {
	if !src.hasRange(srcOff, count) || !t.hasRange(dstOff, count) {
		return false
	}
	copy(t.Elements[dstOff:dstOff+count], src.Elements[srcOff:srcOff+count])
	return true
}

// Fill writes count copies of v starting at dst.
func (t *TableInstance) Fill(dst uint32, v value.Value, count uint32) bool {
	if !t.hasRange(dst, count) {
		return false
	}
	for i := dst; i < dst+count; i++ {
		t.Elements[i] = v
	}
	return true
}
