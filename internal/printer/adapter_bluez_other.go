//go:build !linux

package printer

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// BlueZAdapter is only available on Linux
type BlueZAdapter struct{}

// NewBlueZAdapter always fails outside Linux; use the serial transport
// with the COM port the OS binds to the paired printer instead.
func NewBlueZAdapter(name string, channel int) (*BlueZAdapter, error) {
	return nil, ErrNotSupported
}

func (a *BlueZAdapter) Enabled() bool { return false }

func (a *BlueZAdapter) CancelDiscovery() error { return ErrNotSupported }

func (a *BlueZAdapter) Dial(ctx context.Context, address string, service uuid.UUID) (io.WriteCloser, error) {
	return nil, ErrNotSupported
}

func (a *BlueZAdapter) BondedDevices(ctx context.Context) ([]Device, error) {
	return nil, ErrNotSupported
}

func (a *BlueZAdapter) Close() error { return nil }
