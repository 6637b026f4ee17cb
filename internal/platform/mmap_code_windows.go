//go:build windows

package platform

import "fmt"

func MapCode(code []byte) ([]byte, error) {
	return nil, fmt.Errorf("executable mappings are not supported on windows")
}

func MunmapCode(code []byte) error { return nil }
