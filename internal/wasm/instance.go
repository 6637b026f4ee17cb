package wasm

import (
	"github.com/willf/bitset"

	"github.com/aoli-al/wizard-engine/internal/value"
)

// Module is the per-module data shared across its instances: passive data
// and element segments.
type Module struct {
	Data  [][]byte
	Elems [][]value.Value
}

// Instance bundles the runtime resources one module instantiation owns.
// Generated code assumes the field offsets of this struct are stable; they
// are exposed through the Offsets table and verified by a test.
type Instance struct {
	Memories  []*MemoryInstance
	Tables    []*TableInstance
	Globals   []*GlobalInstance
	HeapTypes []HeapTypeDecl
	Module    *Module

	// DroppedData and DroppedElems track segments retired by data.drop and
	// elem.drop. A dropped segment behaves as zero-length for init ops.
	DroppedData  *bitset.BitSet
	DroppedElems *bitset.BitSet

	// liveObjects pins every heap object allocated against this instance so
	// raw pointers stored in value stack slots stay valid. Objects stay
	// pinned for the lifetime of the instance; nothing removes them.
	liveObjects []interface{}
}

// NewInstance creates an instance with empty resource sets and a module
// record ready to receive segments.
func NewInstance() *Instance {
	return &Instance{
		Module:       &Module{},
		DroppedData:  bitset.New(8),
		DroppedElems: bitset.New(8),
	}
}

// Pin records a freshly allocated heap object as live. Allocation sites in
// the dispatcher call this before the object's address ever reaches a value
// stack slot.
func (inst *Instance) Pin(obj interface{}) { inst.liveObjects = append(inst.liveObjects, obj) }

// DataSegment returns the data segment at i, or nil when i was dropped.
func (inst *Instance) DataSegment(i uint32) []byte {
	if inst.DroppedData.Test(uint(i)) {
		return nil
	}
	return inst.Module.Data[i]
}

// ElemSegment returns the element segment at i, or nil when i was dropped.
func (inst *Instance) ElemSegment(i uint32) []value.Value {
	if inst.DroppedElems.Test(uint(i)) {
		return nil
	}
	return inst.Module.Elems[i]
}

// DropData retires a data segment.
func (inst *Instance) DropData(i uint32) { inst.DroppedData.Set(uint(i)) }

// DropElem retires an element segment.
func (inst *Instance) DropElem(i uint32) { inst.DroppedElems.Set(uint(i)) }
