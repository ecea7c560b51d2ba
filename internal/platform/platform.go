// Package platform answers the host queries the bridge passes through:
// OS version and battery level.
package platform

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Unavailable is the battery level reported when no battery can be read
const Unavailable = -1

// Host reads platform facts from the running system
type Host struct {
	// SysRoot prefixes /sys lookups; empty means "/"
	SysRoot string
}

// New returns a Host reading the live system
func New() *Host {
	return &Host{}
}

// BatteryLevel returns the charge percentage of the first battery found
// under /sys/class/power_supply, or Unavailable
func (h *Host) BatteryLevel() int {
	root := h.SysRoot
	if root == "" {
		root = "/"
	}

	supplies, _ := filepath.Glob(filepath.Join(root, "sys", "class", "power_supply", "*"))
	for _, supply := range supplies {
		kind, err := os.ReadFile(filepath.Join(supply, "type"))
		if err != nil || strings.TrimSpace(string(kind)) != "Battery" {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(supply, "capacity"))
		if err != nil {
			continue
		}

		level, err := strconv.Atoi(strings.TrimSpace(string(raw)))
		if err != nil || level < 0 || level > 100 {
			continue
		}
		return level
	}

	return Unavailable
}
