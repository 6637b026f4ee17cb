//go:build !(darwin || linux || freebsd)

package platform

import "fmt"

type Mapping struct{}

func MapStack(size uintptr) (*Mapping, error) {
	return nil, fmt.Errorf("stack mappings are not supported on this platform")
}

func (m *Mapping) Start() uintptr        { return 0 }
func (m *Mapping) End() uintptr          { return 0 }
func (m *Mapping) Size() uintptr         { return 0 }
func (m *Mapping) UsableStart() uintptr  { return 0 }
func (m *Mapping) RedZoneStart() uintptr { return 0 }
func (m *Mapping) Unmap() error          { return nil }
