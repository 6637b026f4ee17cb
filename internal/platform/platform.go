// Package platform isolates the raw virtual memory syscalls needed by the
// execution core: guarded stack mappings and executable code mappings.
package platform

import "os"

// PageSize is the operating system page granularity. Red zones are placed
// and sized in units of this.
var PageSize = uintptr(os.Getpagesize())
