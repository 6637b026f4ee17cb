package engine

import (
	"encoding/binary"
	"unsafe"

	"github.com/aoli-al/wizard-engine/internal/value"
	"github.com/aoli-al/wizard-engine/internal/wasm"
)

// The runtime dispatcher: one entry per complex bytecode. Every routine
// pops its operands right-to-left per the Wasm specification, performs the
// operation on the instance resource, and either pushes its results and
// returns nil or materializes a trap with a trace starting at the caller's
// native frame.

const growFailure = uint32(0xffffffff)

// MemoryGrow consumes the page delta and pushes the previous size in
// pages, or -1 when the limit would be exceeded.
func (c *execContext) MemoryGrow(inst *wasm.Instance, mi uint32) wasm.Throwable {
	delta := c.PopU32()
	prev, ok := inst.Memories[mi].Grow(delta)
	if !ok {
		c.Push(value.I32(growFailure))
		return nil
	}
	c.Push(value.I32(prev))
	return nil
}

// MemoryInit consumes (dst, src, size) and copies from the passive data
// segment. A dropped segment behaves as zero-length.
func (c *execContext) MemoryInit(inst *wasm.Instance, dataIdx, memIdx uint32) wasm.Throwable {
	size := c.PopU32()
	src := c.PopU32()
	dst := c.PopU32()
	if !inst.Memories[memIdx].Init(inst.DataSegment(dataIdx), dst, src, size) {
		return c.trapAt(wasm.TrapReasonMemoryOutOfBounds)
	}
	return nil
}

// MemoryCopy consumes (dst, src, size), with mi1 the destination memory.
func (c *execContext) MemoryCopy(inst *wasm.Instance, mi1, mi2 uint32) wasm.Throwable {
	size := c.PopU32()
	src := c.PopU32()
	dst := c.PopU32()
	if !inst.Memories[mi1].CopyFrom(inst.Memories[mi2], dst, src, size) {
		return c.trapAt(wasm.TrapReasonMemoryOutOfBounds)
	}
	return nil
}

// MemoryFill consumes (dst, val, size).
func (c *execContext) MemoryFill(inst *wasm.Instance, mi uint32) wasm.Throwable {
	size := c.PopU32()
	val := byte(c.PopU32())
	dst := c.PopU32()
	if !inst.Memories[mi].Fill(dst, val, size) {
		return c.trapAt(wasm.TrapReasonMemoryOutOfBounds)
	}
	return nil
}

// GlobalGet pushes the global's value. Cannot trap.
func (c *execContext) GlobalGet(inst *wasm.Instance, i uint32) {
	c.Push(inst.Globals[i].Val)
}

// GlobalSet pops into the global. Mutability was enforced at validation.
func (c *execContext) GlobalSet(inst *wasm.Instance, i uint32) {
	g := inst.Globals[i]
	g.Val = c.Pop(g.Type)
}

func (c *execContext) TableGet(inst *wasm.Instance, ti uint32) wasm.Throwable {
	i := c.PopU32()
	v, ok := inst.Tables[ti].Get(i)
	if !ok {
		return c.trapAt(wasm.TrapReasonTableOutOfBounds)
	}
	c.Push(v)
	return nil
}

func (c *execContext) TableSet(inst *wasm.Instance, ti uint32) wasm.Throwable {
	v := c.PopRef()
	i := c.PopU32()
	if !inst.Tables[ti].Set(i, v) {
		return c.trapAt(wasm.TrapReasonTableOutOfBounds)
	}
	return nil
}

func (c *execContext) TableInit(inst *wasm.Instance, elemIdx, ti uint32) wasm.Throwable {
	size := c.PopU32()
	src := c.PopU32()
	dst := c.PopU32()
	if !inst.Tables[ti].Init(inst.ElemSegment(elemIdx), dst, src, size) {
		return c.trapAt(wasm.TrapReasonTableOutOfBounds)
	}
	return nil
}

func (c *execContext) TableCopy(inst *wasm.Instance, dst, src uint32) wasm.Throwable {
	size := c.PopU32()
	srcOff := c.PopU32()
	dstOff := c.PopU32()
	if !inst.Tables[dst].CopyFrom(inst.Tables[src], dstOff, srcOff, size) {
		return c.trapAt(wasm.TrapReasonTableOutOfBounds)
	}
	return nil
}

// TableGrow consumes (init, delta) and pushes the previous size or -1.
func (c *execContext) TableGrow(inst *wasm.Instance, ti uint32) wasm.Throwable {
	delta := c.PopU32()
	init := c.PopRef()
	prev, ok := inst.Tables[ti].Grow(delta, init)
	if !ok {
		c.Push(value.I32(growFailure))
		return nil
	}
	c.Push(value.I32(prev))
	return nil
}

// TableFill consumes (dst, val, size).
func (c *execContext) TableFill(inst *wasm.Instance, ti uint32) wasm.Throwable {
	size := c.PopU32()
	val := c.PopRef()
	dst := c.PopU32()
	if !inst.Tables[ti].Fill(dst, val, size) {
		return c.trapAt(wasm.TrapReasonTableOutOfBounds)
	}
	return nil
}

func (c *execContext) structDecl(inst *wasm.Instance, declIdx uint32) *wasm.StructDecl {
	decl, ok := inst.HeapTypes[declIdx].(*wasm.StructDecl)
	if !ok {
		panic(wasm.NewInternalError("heap type %d is not a struct", declIdx))
	}
	return decl
}

func (c *execContext) arrayDecl(inst *wasm.Instance, declIdx uint32) *wasm.ArrayDecl {
	decl, ok := inst.HeapTypes[declIdx].(*wasm.ArrayDecl)
	if !ok {
		panic(wasm.NewInternalError("heap type %d is not an array", declIdx))
	}
	return decl
}

// StructNew pops the fields in reverse declaration order and pushes the
// new reference.
func (c *execContext) StructNew(inst *wasm.Instance, declIdx uint32) wasm.Throwable {
	decl := c.structDecl(inst, declIdx)
	fields := make([]value.Value, len(decl.Fields))
	for i := len(decl.Fields) - 1; i >= 0; i-- {
		v := c.Pop(decl.Fields[i].Unpacked)
		v.Lo = decl.Fields[i].Truncate(v.Lo)
		fields[i] = v
	}
	obj := wasm.NewStructObject(decl, fields)
	inst.Pin(obj)
	c.Push(value.Ref(value.TypeStructref, unsafe.Pointer(obj)))
	return nil
}

func (c *execContext) StructNewDefault(inst *wasm.Instance, declIdx uint32) wasm.Throwable {
	obj := wasm.NewStructObjectDefault(c.structDecl(inst, declIdx))
	inst.Pin(obj)
	c.Push(value.Ref(value.TypeStructref, unsafe.Pointer(obj)))
	return nil
}

// popStruct pops a struct reference, trapping on null.
func (c *execContext) popStruct() (*wasm.StructObject, wasm.Throwable) {
	ref := c.PopRef()
	if ref.IsNull() {
		return nil, c.trapAt(wasm.TrapReasonNullDereference)
	}
	return (*wasm.StructObject)(ref.Pointer()), nil
}

func (c *execContext) popArray() (*wasm.ArrayObject, wasm.Throwable) {
	ref := c.PopRef()
	if ref.IsNull() {
		return nil, c.trapAt(wasm.TrapReasonNullDereference)
	}
	return (*wasm.ArrayObject)(ref.Pointer()), nil
}

// StructGet pushes the field value, sign or zero extending packed fields
// per the accessor variant.
func (c *execContext) StructGet(inst *wasm.Instance, declIdx, fieldIdx uint32, signed bool) wasm.Throwable {
	decl := c.structDecl(inst, declIdx)
	obj, thrown := c.popStruct()
	if thrown != nil {
		return thrown
	}
	ft := decl.Fields[fieldIdx]
	v := obj.Fields[fieldIdx]
	v.Lo = ft.Extend(v.Lo, signed)
	c.Push(v)
	return nil
}

func (c *execContext) StructSet(inst *wasm.Instance, declIdx, fieldIdx uint32) wasm.Throwable {
	decl := c.structDecl(inst, declIdx)
	ft := decl.Fields[fieldIdx]
	v := c.Pop(ft.Unpacked)
	v.Lo = ft.Truncate(v.Lo)
	obj, thrown := c.popStruct()
	if thrown != nil {
		return thrown
	}
	obj.Fields[fieldIdx] = v
	return nil
}

func (c *execContext) pushArray(inst *wasm.Instance, obj *wasm.ArrayObject) wasm.Throwable {
	if obj == nil {
		return c.trapAt(wasm.TrapReasonOutOfMemory)
	}
	inst.Pin(obj)
	c.Push(value.Ref(value.TypeArrayref, unsafe.Pointer(obj)))
	return nil
}

// ArrayNew consumes (elem, len).
func (c *execContext) ArrayNew(inst *wasm.Instance, declIdx uint32) wasm.Throwable {
	decl := c.arrayDecl(inst, declIdx)
	length := c.PopU32()
	elem := c.Pop(decl.Elem.Unpacked)
	elem.Lo = decl.Elem.Truncate(elem.Lo)
	return c.pushArray(inst, wasm.NewArrayObject(decl, length, elem))
}

func (c *execContext) ArrayNewDefault(inst *wasm.Instance, declIdx uint32) wasm.Throwable {
	decl := c.arrayDecl(inst, declIdx)
	length := c.PopU32()
	return c.pushArray(inst, wasm.NewArrayObject(decl, length, decl.Elem.Default()))
}

// ArrayNewFixed pops length elements in reverse order.
func (c *execContext) ArrayNewFixed(inst *wasm.Instance, declIdx, length uint32) wasm.Throwable {
	decl := c.arrayDecl(inst, declIdx)
	obj := wasm.NewArrayObject(decl, length, decl.Elem.Default())
	if obj == nil {
		return c.trapAt(wasm.TrapReasonOutOfMemory)
	}
	for i := int(length) - 1; i >= 0; i-- {
		v := c.Pop(decl.Elem.Unpacked)
		v.Lo = decl.Elem.Truncate(v.Lo)
		obj.Elems[i] = v
	}
	inst.Pin(obj)
	c.Push(value.Ref(value.TypeArrayref, unsafe.Pointer(obj)))
	return nil
}

// elemByteSize is the storage width of one array element in a data
// segment.
func elemByteSize(ft wasm.FieldType) uint32 {
	switch ft.Packed {
	case wasm.PackedI8:
		return 1
	case wasm.PackedI16:
		return 2
	}
	switch ft.Unpacked {
	case value.TypeI64, value.TypeF64:
		return 8
	case value.TypeV128:
		return 16
	default:
		return 4
	}
}

// ArrayNewData consumes (offset, len) and builds the array from the data
// segment's bytes, little-endian.
func (c *execContext) ArrayNewData(inst *wasm.Instance, declIdx, dataIdx uint32) wasm.Throwable {
	decl := c.arrayDecl(inst, declIdx)
	length := c.PopU32()
	offset := c.PopU32()
	data := inst.DataSegment(dataIdx)
	width := elemByteSize(decl.Elem)
	if uint64(offset)+uint64(length)*uint64(width) > uint64(len(data)) {
		return c.trapAt(wasm.TrapReasonMemoryOutOfBounds)
	}
	if length > wasm.MaxArrayLength {
		return c.trapAt(wasm.TrapReasonOutOfMemory)
	}
	obj := wasm.NewArrayObject(decl, length, decl.Elem.Default())
	for i := uint32(0); i < length; i++ {
		obj.Elems[i] = decodeElem(decl.Elem, data[offset+i*width:])
	}
	inst.Pin(obj)
	c.Push(value.Ref(value.TypeArrayref, unsafe.Pointer(obj)))
	return nil
}

func decodeElem(ft wasm.FieldType, buf []byte) value.Value {
	var raw uint64
	switch elemByteSize(ft) {
	case 1:
		raw = uint64(buf[0])
	case 2:
		raw = uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		raw = uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		raw = binary.LittleEndian.Uint64(buf)
	case 16:
		return value.V128(binary.LittleEndian.Uint64(buf), binary.LittleEndian.Uint64(buf[8:]))
	}
	switch ft.Unpacked {
	case value.TypeF32:
		return value.F32Bits(uint32(raw))
	case value.TypeF64:
		return value.F64Bits(raw)
	case value.TypeI64:
		return value.I64(raw)
	default:
		return value.I32(uint32(raw))
	}
}

// ArrayNewElem consumes (offset, len) and builds the array from an element
// segment.
func (c *execContext) ArrayNewElem(inst *wasm.Instance, declIdx, elemIdx uint32) wasm.Throwable {
	decl := c.arrayDecl(inst, declIdx)
	length := c.PopU32()
	offset := c.PopU32()
	elems := inst.ElemSegment(elemIdx)
	if uint64(offset)+uint64(length) > uint64(len(elems)) {
		return c.trapAt(wasm.TrapReasonTableOutOfBounds)
	}
	obj := wasm.NewArrayObject(decl, length, decl.Elem.Default())
	if obj == nil {
		return c.trapAt(wasm.TrapReasonOutOfMemory)
	}
	copy(obj.Elems, elems[offset:offset+length])
	inst.Pin(obj)
	c.Push(value.Ref(value.TypeArrayref, unsafe.Pointer(obj)))
	return nil
}

// ArrayGet consumes (ref, i).
func (c *execContext) ArrayGet(inst *wasm.Instance, declIdx uint32, signed bool) wasm.Throwable {
	decl := c.arrayDecl(inst, declIdx)
	i := c.PopU32()
	obj, thrown := c.popArray()
	if thrown != nil {
		return thrown
	}
	if i >= obj.Length() {
		return c.trapAt(wasm.TrapReasonArrayIndexOutOfBounds)
	}
	v := obj.Elems[i]
	v.Lo = decl.Elem.Extend(v.Lo, signed)
	c.Push(v)
	return nil
}

// ArraySet consumes (ref, i, v).
func (c *execContext) ArraySet(inst *wasm.Instance, declIdx uint32) wasm.Throwable {
	decl := c.arrayDecl(inst, declIdx)
	v := c.Pop(decl.Elem.Unpacked)
	v.Lo = decl.Elem.Truncate(v.Lo)
	i := c.PopU32()
	obj, thrown := c.popArray()
	if thrown != nil {
		return thrown
	}
	if i >= obj.Length() {
		return c.trapAt(wasm.TrapReasonArrayIndexOutOfBounds)
	}
	obj.Elems[i] = v
	return nil
}

// ArrayFill consumes (ref, dst, val, size).
func (c *execContext) ArrayFill(inst *wasm.Instance, declIdx uint32) wasm.Throwable {
	decl := c.arrayDecl(inst, declIdx)
	size := c.PopU32()
	v := c.Pop(decl.Elem.Unpacked)
	v.Lo = decl.Elem.Truncate(v.Lo)
	dst := c.PopU32()
	obj, thrown := c.popArray()
	if thrown != nil {
		return thrown
	}
	if uint64(dst)+uint64(size) > uint64(obj.Length()) {
		return c.trapAt(wasm.TrapReasonArrayIndexOutOfBounds)
	}
	for i := dst; i < dst+size; i++ {
		obj.Elems[i] = v
	}
	return nil
}

// ArrayCopy consumes (dstRef, dstOff, srcRef, srcOff, size) with source
// and destination bounds checks.
func (c *execContext) ArrayCopy(inst *wasm.Instance, dstDecl, srcDecl uint32) wasm.Throwable {
	size := c.PopU32()
	srcOff := c.PopU32()
	src, thrown := c.popArray()
	if thrown != nil {
		return thrown
	}
	dstOff := c.PopU32()
	dst, thrown := c.popArray()
	if thrown != nil {
		return thrown
	}
	if uint64(srcOff)+uint64(size) > uint64(src.Length()) ||
		uint64(dstOff)+uint64(size) > uint64(dst.Length()) {
		return c.trapAt(wasm.TrapReasonArrayIndexOutOfBounds)
	}
	copy(dst.Elems[dstOff:dstOff+size], src.Elems[srcOff:srcOff+size])
	return nil
}

// ArrayInitData consumes (ref, dstOff, srcOff, size) reading from a data
// segment.
func (c *execContext) ArrayInitData(inst *wasm.Instance, declIdx, dataIdx uint32) wasm.Throwable {
	decl := c.arrayDecl(inst, declIdx)
	size := c.PopU32()
	srcOff := c.PopU32()
	dstOff := c.PopU32()
	obj, thrown := c.popArray()
	if thrown != nil {
		return thrown
	}
	data := inst.DataSegment(dataIdx)
	width := elemByteSize(decl.Elem)
	if uint64(srcOff)+uint64(size)*uint64(width) > uint64(len(data)) {
		return c.trapAt(wasm.TrapReasonMemoryOutOfBounds)
	}
	if uint64(dstOff)+uint64(size) > uint64(obj.Length()) {
		return c.trapAt(wasm.TrapReasonArrayIndexOutOfBounds)
	}
	for i := uint32(0); i < size; i++ {
		obj.Elems[dstOff+i] = decodeElem(decl.Elem, data[srcOff+i*width:])
	}
	return nil
}

// ArrayInitElem consumes (ref, dstOff, srcOff, size) reading from an
// element segment.
func (c *execContext) ArrayInitElem(inst *wasm.Instance, declIdx, elemIdx uint32) wasm.Throwable {
	size := c.PopU32()
	srcOff := c.PopU32()
	dstOff := c.PopU32()
	obj, thrown := c.popArray()
	if thrown != nil {
		return thrown
	}
	elems := inst.ElemSegment(elemIdx)
	if uint64(srcOff)+uint64(size) > uint64(len(elems)) {
		return c.trapAt(wasm.TrapReasonTableOutOfBounds)
	}
	if uint64(dstOff)+uint64(size) > uint64(obj.Length()) {
		return c.trapAt(wasm.TrapReasonArrayIndexOutOfBounds)
	}
	copy(obj.Elems[dstOff:dstOff+size], elems[srcOff:srcOff+size])
	return nil
}

// ProbeLoop fires the global probe registry at a loop header. A trap
// returned by a probe is promoted with a trace starting at the probed
// frame; other throwables propagate verbatim.
func (c *execContext) ProbeLoop(fn *wasm.WasmFunction, pc uint32) wasm.Throwable {
	c.e.counters.LoopProbes++
	c.SyncPC(pc)
	return c.promoteProbeResult(c.e.probes.FireGlobal(fn, pc))
}

// ProbeInstr fires the probes registered at (fn, pc).
func (c *execContext) ProbeInstr(fn *wasm.WasmFunction, pc uint32) wasm.Throwable {
	c.e.counters.InstrProbes++
	c.SyncPC(pc)
	return c.promoteProbeResult(c.e.probes.FireLocal(fn, pc))
}

func (c *execContext) promoteProbeResult(thrown wasm.Throwable) wasm.Throwable {
	if thrown == nil {
		return nil
	}
	if t, ok := thrown.(*wasm.Trap); ok && t.Reason != wasm.TrapReasonHost && len(t.Backtrace()) == 0 {
		t.PrependFrames(c.e.Walk(c.frameSP()))
	}
	return thrown
}

// Trap materializes a fresh trap at (fn, pc) with the current frame chain.
func (c *execContext) Trap(fn *wasm.WasmFunction, pc uint32, reason wasm.TrapReason) wasm.Throwable {
	c.SyncPC(pc)
	return c.trapAt(reason)
}
