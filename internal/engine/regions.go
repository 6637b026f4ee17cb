package engine

import (
	"sort"

	"github.com/aoli-al/wizard-engine/internal/wasm"
)

// RegionKind classifies executable code ranges for the frame walker.
type RegionKind byte

const (
	// RegionInterpreter covers the interpreter's dispatch code; frames
	// whose pending return address lies here carry the full interpreter
	// frame header.
	RegionInterpreter RegionKind = iota
	// RegionSPC covers one compiled function's code.
	RegionSPC
	// RegionStub covers a stack-switch stub; the walker skips over these
	// using the frame size the stub reports.
	RegionStub
)

func (k RegionKind) String() (ret string) {
	switch k {
	case RegionInterpreter:
		ret = "interpreter"
	case RegionSPC:
		ret = "spc"
	case RegionStub:
		ret = "stub"
	}
	return
}

// Region is one registered code range.
type Region struct {
	Start, End uintptr
	Kind       RegionKind
	// Name is the stub name for RegionStub entries.
	Name string
	// FrameSize is how many bytes of native stack a stub frame occupies,
	// so the walker can step over it.
	FrameSize uintptr
	// Decl is set for RegionSPC: the declaration whose compiled entry this
	// region holds, carrying the OSR table used to reconstruct pcs.
	Decl *wasm.FuncDecl
	// Boundary marks the stub at which walking stops because the caller is
	// no longer Wasm (return-to-parent).
	Boundary bool
}

// regionMap is a sorted, non-overlapping set of regions looked up by
// address. Registration happens at engine init and compilation; lookups
// happen on every trap, so the map stays a sorted slice with binary search.
type regionMap struct {
	regions []Region
}

func (m *regionMap) register(r Region) {
	i := sort.Search(len(m.regions), func(i int) bool { return m.regions[i].Start >= r.Start })
	m.regions = append(m.regions, Region{})
	copy(m.regions[i+1:], m.regions[i:])
	m.regions[i] = r
}

// lookup returns the region containing ip, or nil.
func (m *regionMap) lookup(ip uintptr) *Region {
	i := sort.Search(len(m.regions), func(i int) bool { return m.regions[i].End > ip })
	if i == len(m.regions) || ip < m.regions[i].Start {
		return nil
	}
	return &m.regions[i]
}
