package wasm

const (
	// MemoryPageSize is the unit of memory length in WebAssembly,
	// and is defined as 2^16 = 65536.
	MemoryPageSize = uint32(65536)
	// MemoryMaxPages is the maximum number of pages defined (2^16).
	MemoryMaxPages = uint32(65536)
	// MemoryPageSizeInBits satisfies the relation: "1 << MemoryPageSizeInBits == MemoryPageSize".
	MemoryPageSizeInBits = 16
)

// MemoryInstance represents a linear memory instance.
type MemoryInstance struct {
	Buffer   []byte
	Min, Max uint32
}

// NewMemoryInstance allocates min pages up front. max of zero means
// MemoryMaxPages.
func NewMemoryInstance(min, max uint32) *MemoryInstance {
	if max == 0 {
		max = MemoryMaxPages
	}
	return &MemoryInstance{
		Buffer: make([]byte, min*MemoryPageSize),
		Min:    min,
		Max:    max,
	}
}

// Size returns the length of the buffer in bytes.
func (m *MemoryInstance) Size() uint32 {
	return uint32(len(m.Buffer))
}

// PageSize returns the length of the buffer in pages.
func (m *MemoryInstance) PageSize() uint32 {
	return m.Size() >> MemoryPageSizeInBits
}

// hasSize returns true if the buffer is large enough for sizeInBytes at the
// given offset. uint64 arithmetic prevents overflow on add.
func (m *MemoryInstance) hasSize(offset, sizeInBytes uint32) bool {
	return uint64(offset)+uint64(sizeInBytes) <= uint64(m.Size())
}

// Grow appends delta pages and returns the previous size in pages, or
// false if the limit would be exceeded. A failed grow is not a trap: the
// program observes -1.
func (m *MemoryInstance) Grow(delta uint32) (previous uint32, ok bool) {
	previous = m.PageSize()
	if uint64(previous)+uint64(delta) > uint64(m.Max) {
		return 0, false
	}
	m.Buffer = append(m.Buffer, make([]byte, delta*MemoryPageSize)...)
	return previous, true
}

// Init copies size bytes of the passive data segment starting at src into
// memory at dst. Returns false on overflow of either range.
func (m *MemoryInstance) Init(data []byte, dst, src, size uint32) bool {
	if uint64(src)+uint64(size) > uint64(len(data)) || !m.hasSize(dst, size) {
		return false
	}
	copy(m.Buffer[dst:dst+size], data[src:src+size])
	return true
}

// Copy moves size bytes from src to dst within the memory; copies across two
// instances go through CopyFrom. Overlapping ranges behave as if through an
// intermediate buffer.
func (m *MemoryInstance) Copy(dst, src, size uint32) bool {
	if !m.hasSize(src, size) || !m.hasSize(dst, size) {
		return false
	}
	copy(m.Buffer[dst:dst+size], m.Buffer[src:src+size])
	return true
}

// CopyFrom copies across two memory instances.
func (m *MemoryInstance) CopyFrom(src *MemoryInstance, dstOff, srcOff, size uint32) bool {
	if !src.hasSize(srcOff, size) || !m.hasSize(dstOff, size) {
		return false
	}
	copy(m.Buffer[dstOff:dstOff+size], src.Buffer[srcOff:srcOff+size])
	return true
}

// Fill writes size copies of val starting at dst.
func (m *MemoryInstance) Fill(dst uint32, val byte, size uint32) bool {
	if !m.hasSize(dst, size) {
		return false
	}
	buf := m.Buffer[dst : dst+size]
	for i := range buf {
		buf[i] = val
	}
	return true
}
