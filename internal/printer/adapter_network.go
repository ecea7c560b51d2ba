package printer

import (
	"context"
	"fmt"
	"io"
	"net"
	"sort"
	"time"

	"github.com/google/uuid"
)

// NetworkAdapter reaches ESC/POS printers (or printer emulators) over raw
// TCP, usually port 9100. Addresses are host:port; the "bonded" devices
// are the statically configured ones.
type NetworkAdapter struct {
	devices []Device
	timeout time.Duration
}

// NewNetworkAdapter creates an adapter listing devices. timeout bounds each
// dial; 0 uses 5s.
func NewNetworkAdapter(devices []Device, timeout time.Duration) *NetworkAdapter {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	sorted := append([]Device(nil), devices...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Address < sorted[j].Address
	})

	return &NetworkAdapter{
		devices: sorted,
		timeout: timeout,
	}
}

// Enabled is always true; the network stack has no power state
func (a *NetworkAdapter) Enabled() bool {
	return true
}

// CancelDiscovery is a no-op
func (a *NetworkAdapter) CancelDiscovery() error {
	return nil
}

// Dial opens a TCP connection to address
func (a *NetworkAdapter) Dial(ctx context.Context, address string, service uuid.UUID) (io.WriteCloser, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	dialer := net.Dialer{Timeout: a.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to network printer: %w", err)
	}

	return conn, nil
}

// BondedDevices returns the configured devices
func (a *NetworkAdapter) BondedDevices(ctx context.Context) ([]Device, error) {
	return append([]Device(nil), a.devices...), nil
}
