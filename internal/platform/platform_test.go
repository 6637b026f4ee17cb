package platform

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func ptr(p uintptr) unsafe.Pointer { return unsafe.Pointer(p) }

func TestMapStackInvalidSizes(t *testing.T) {
	_, err := MapStack(PageSize + 1)
	require.Error(t, err)

	_, err = MapStack(2 * PageSize)
	require.Error(t, err)
}

func TestMapStackLayout(t *testing.T) {
	size := 64 * PageSize
	m, err := MapStack(size)
	require.NoError(t, err)
	defer func() { require.NoError(t, m.Unmap()) }()

	require.Equal(t, size, m.Size())
	require.Equal(t, m.Start()+size, m.End())
	require.Equal(t, m.Start()+PageSize, m.UsableStart())
	// The red zone separating the value stack from the native stack sits
	// one page below the topmost accessible page.
	require.Equal(t, m.Start()+size-2*PageSize, m.RedZoneStart())

	// The accessible regions must be writable.
	*(*uint64)(ptr(m.UsableStart())) = 42
	*(*uint64)(ptr(m.End() - 8)) = 42
}

func TestMapCodeRoundTrip(t *testing.T) {
	code := []byte{0xc3, 0x90, 0x90, 0x90} // ret; nop...
	seg, err := MapCode(code)
	require.NoError(t, err)
	require.Equal(t, code, seg[:len(code)])
	require.NoError(t, MunmapCode(seg))

	require.Panics(t, func() { _, _ = MapCode(nil) })
}
