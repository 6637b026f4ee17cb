//go:build amd64

package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildStubs(t *testing.T) {
	e := newTestEngine(t)

	require.NotEmpty(t, e.stubs.resume)
	require.NotEmpty(t, e.stubs.enterFunc)
	require.NotEmpty(t, e.stubs.returnParent)

	// Every stub is registered as a code region the walker can classify.
	for _, tc := range []struct {
		name string
		addr uintptr
	}{
		{"resume", e.stubs.Resume()},
		{"enter-func", e.stubs.EnterFunc()},
		{"return-to-parent", e.stubs.ReturnParent()},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			region := e.regions.lookup(tc.addr)
			require.NotNil(t, region)
			require.Equal(t, RegionStub, region.Kind)
			require.Equal(t, tc.name, region.Name)
		})
	}

	// Only return-to-parent terminates a walk.
	require.True(t, e.regions.lookup(e.stubs.ReturnParent()).Boundary)
	require.False(t, e.regions.lookup(e.stubs.Resume()).Boundary)

	// The interpreter marker must classify as interpreter code.
	region := e.regions.lookup(e.stubs.InterpMarker())
	require.NotNil(t, region)
	require.Equal(t, RegionInterpreter, region.Kind)
}

func TestRegionLookup(t *testing.T) {
	var m regionMap
	m.register(Region{Start: 0x1000, End: 0x1100, Kind: RegionSPC})
	m.register(Region{Start: 0x2000, End: 0x2010, Kind: RegionStub})
	m.register(Region{Start: 0x0100, End: 0x0200, Kind: RegionInterpreter})

	require.Equal(t, RegionInterpreter, m.lookup(0x150).Kind)
	require.Equal(t, RegionSPC, m.lookup(0x1000).Kind)
	require.Equal(t, RegionSPC, m.lookup(0x10ff).Kind)
	require.Nil(t, m.lookup(0x1100))
	require.Nil(t, m.lookup(0x0ff0))
	require.Equal(t, RegionStub, m.lookup(0x2008).Kind)
	require.Nil(t, m.lookup(0x3000))
}
