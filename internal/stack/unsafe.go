package stack

import "unsafe"

// The design writes return addresses and value payloads directly into the
// mapped stack region. These primitives are the only raw-address accessors
// in the engine; keep their use confined to this package and the frame
// walker.

// StorePointer stores val at native address p.
func StorePointer(p, val uintptr) {
	*(*uintptr)(unsafe.Pointer(p)) = val
}

// LoadPointer loads a pointer-sized word from native address p.
func LoadPointer(p uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(p))
}

func storeU64(p uintptr, val uint64) {
	*(*uint64)(unsafe.Pointer(p)) = val
}

func loadU64(p uintptr) uint64 {
	return *(*uint64)(unsafe.Pointer(p))
}

func storeByte(p uintptr, val byte) {
	*(*byte)(unsafe.Pointer(p)) = val
}

func loadByte(p uintptr) byte {
	return *(*byte)(unsafe.Pointer(p))
}
