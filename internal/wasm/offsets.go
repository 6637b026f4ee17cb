package wasm

import "unsafe"

// Offset is a byte offset into a runtime struct, sized for direct use in
// instruction immediates.
type Offset int32

func (o Offset) U32() uint32 { return uint32(o) }

// InstanceOffsets exposes the field offsets generated code assumes for
// Instance. Both stub generation and handwritten runtime code read these
// from one place so the layout can never silently drift; a test pins them
// against unsafe.Offsetof.
type InstanceOffsets struct {
	Memories     Offset
	Tables       Offset
	Globals      Offset
	HeapTypes    Offset
	Module       Offset
	DroppedData  Offset
	DroppedElems Offset

	// Offsets within Module.
	ModuleData  Offset
	ModuleElems Offset
}

// OffsetsOfInstance computes the offsets table for the current build.
func OffsetsOfInstance() InstanceOffsets {
	var inst Instance
	var mod Module
	return InstanceOffsets{
		Memories:     Offset(unsafe.Offsetof(inst.Memories)),
		Tables:       Offset(unsafe.Offsetof(inst.Tables)),
		Globals:      Offset(unsafe.Offsetof(inst.Globals)),
		HeapTypes:    Offset(unsafe.Offsetof(inst.HeapTypes)),
		Module:       Offset(unsafe.Offsetof(inst.Module)),
		DroppedData:  Offset(unsafe.Offsetof(inst.DroppedData)),
		DroppedElems: Offset(unsafe.Offsetof(inst.DroppedElems)),
		ModuleData:   Offset(unsafe.Offsetof(mod.Data)),
		ModuleElems:  Offset(unsafe.Offsetof(mod.Elems)),
	}
}
