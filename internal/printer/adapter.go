package printer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// SerialPortProfile is the well-known SPP service class UUID
var SerialPortProfile = uuid.MustParse("00001101-0000-1000-8000-00805F9B34FB")

// Common errors
var (
	ErrAdapterUnavailable = errors.New("bluetooth adapter unavailable")
	ErrAdapterDisabled    = errors.New("bluetooth adapter is powered off")
	ErrInvalidAddress     = errors.New("invalid device address")
	ErrNotSupported       = errors.New("operation not supported on this platform")
)

// Adapter is the platform Bluetooth stack as seen by a Session.
// Implementations must be safe for concurrent use.
type Adapter interface {
	// Enabled reports whether the adapter exists and is powered on
	Enabled() bool

	// CancelDiscovery stops any in-progress inquiry. Discovery and socket
	// connection are mutually exclusive on most stacks.
	CancelDiscovery() error

	// Dial resolves address and opens a stream socket to the given service
	Dial(ctx context.Context, address string, service uuid.UUID) (io.WriteCloser, error)

	// BondedDevices lists devices already paired with the adapter
	BondedDevices(ctx context.Context) ([]Device, error)
}

// Device is a paired (bonded) remote device
type Device struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// String formats the device the way paired-device listings report it
func (d Device) String() string {
	return fmt.Sprintf("%s#%s", d.Name, d.Address)
}

// interruptibleConnect runs a blocking connect that interrupt can unblock
// once ctx is done. interrupt has returned by the time this does, so the
// caller may free whatever interrupt touches.
func interruptibleConnect(ctx context.Context, connect func() error, interrupt func()) error {
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(done)
		interrupt()
	})

	err := connect()
	if !stop() {
		<-done
		return ctx.Err()
	}
	return err
}
