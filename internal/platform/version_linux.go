//go:build linux

package platform

import (
	"golang.org/x/sys/unix"
)

// Version returns "Linux <kernel release>"
func (h *Host) Version() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "Linux"
	}
	return "Linux " + unix.ByteSliceToString(uts.Release[:])
}
