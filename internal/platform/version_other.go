//go:build !linux

package platform

import (
	"runtime"
	"strings"
)

// Version returns the OS name; release lookups are only wired on Linux
func (h *Host) Version() string {
	if runtime.GOOS == "" {
		return "unknown"
	}
	return strings.ToUpper(runtime.GOOS[:1]) + runtime.GOOS[1:]
}
