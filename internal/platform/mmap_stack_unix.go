//go:build darwin || linux || freebsd

package platform

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mapping is an anonymous read-write reservation backing one stack object.
// The first page and the page at size-2*PageSize are no-access guard pages;
// any access into them raises SIGSEGV, which the signal handler classifies
// as stack overflow.
type Mapping struct {
	buf []byte
}

// MapStack reserves size bytes of anonymous read-write memory and protects
// the two guard pages. size must be a multiple of PageSize and large enough
// to hold both guards plus at least one usable page on either side.
func MapStack(size uintptr) (*Mapping, error) {
	if size%PageSize != 0 || size < 4*PageSize {
		return nil, fmt.Errorf("stack mapping size %#x must be page-aligned and at least %d pages", size, 4)
	}

	buf, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve stack mapping: %w", err)
	}

	// Guard the lowest page against value stack overflow and the page at
	// size-2*PageSize against native stack overflow. The topmost page stays
	// writable so the native stack has room for the stub return addresses.
	if err := unix.Mprotect(buf[:PageSize], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(buf)
		return nil, fmt.Errorf("failed to protect lower red zone: %w", err)
	}
	redZone := size - 2*PageSize
	if err := unix.Mprotect(buf[redZone:redZone+PageSize], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(buf)
		return nil, fmt.Errorf("failed to protect upper red zone: %w", err)
	}
	return &Mapping{buf: buf}, nil
}

// Start returns the address of the first byte of the reservation.
func (m *Mapping) Start() uintptr { return uintptr(unsafe.Pointer(&m.buf[0])) }

// End returns the address one past the last byte of the reservation.
func (m *Mapping) End() uintptr { return m.Start() + uintptr(len(m.buf)) }

// Size returns the full reservation size including guard pages.
func (m *Mapping) Size() uintptr { return uintptr(len(m.buf)) }

// UsableStart is the first accessible byte, just above the lower guard page.
func (m *Mapping) UsableStart() uintptr { return m.Start() + PageSize }

// RedZoneStart is the address of the upper guard page separating the value
// stack region from the native return-address region.
func (m *Mapping) RedZoneStart() uintptr { return m.Start() + m.Size() - 2*PageSize }

// Unmap releases the reservation. The Mapping must not be used afterwards.
func (m *Mapping) Unmap() error {
	buf := m.buf
	m.buf = nil
	return unix.Munmap(buf)
}
