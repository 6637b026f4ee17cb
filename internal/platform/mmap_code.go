//go:build !windows

package platform

import (
	"errors"
	"syscall"
)

// MapCode copies the generated code into a fresh executable region and
// returns the byte slice of the region.
// See https://man7.org/linux/man-pages/man2/mmap.2.html for mmap API and flags.
func MapCode(code []byte) ([]byte, error) {
	if len(code) == 0 {
		panic(errors.New("BUG: MapCode with zero length"))
	}
	// The region must be RWX: RW for writing the stub bytes, X for executing them.
	buf, err := syscall.Mmap(
		-1,
		0,
		len(code),
		syscall.PROT_READ|syscall.PROT_WRITE|syscall.PROT_EXEC,
		// Anonymous as this is not an actual file, but a memory,
		// Private as this is in-process memory region.
		syscall.MAP_ANON|syscall.MAP_PRIVATE,
	)
	if err != nil {
		return nil, err
	}
	copy(buf, code)
	return buf, nil
}

// MunmapCode unmaps a region previously returned by MapCode.
func MunmapCode(code []byte) error {
	if len(code) == 0 {
		panic(errors.New("BUG: MunmapCode with zero length"))
	}
	return syscall.Munmap(code)
}
