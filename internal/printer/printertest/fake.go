// Package printertest provides an in-memory Bluetooth adapter for tests
package printertest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/thereceipt/btprinter-bridge/internal/printer"
)

// ErrRemoteClosed is what a Channel returns once Fail is called with nil
var ErrRemoteClosed = errors.New("broken pipe")

// Adapter is a scripted printer.Adapter
type Adapter struct {
	mu          sync.Mutex
	powered     bool
	devices     []printer.Device
	devicesErr  error
	dialErr     error
	gate        chan struct{}
	devicesGate chan struct{}
	dials       int
	cancelCalls int
	channels    []*Channel
}

// NewAdapter returns a powered adapter with no paired devices
func NewAdapter(devices ...printer.Device) *Adapter {
	return &Adapter{
		powered: true,
		devices: devices,
	}
}

// SetPowered switches the simulated controller on or off
func (a *Adapter) SetPowered(on bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.powered = on
}

// SetDevices replaces the bonded device list
func (a *Adapter) SetDevices(devices ...printer.Device) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.devices = devices
}

// SetDevicesError makes BondedDevices fail
func (a *Adapter) SetDevicesError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.devicesErr = err
}

// SetDialError makes every Dial fail with err
func (a *Adapter) SetDialError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dialErr = err
}

// HoldDials makes Dial block until the returned function is called
func (a *Adapter) HoldDials() (release func()) {
	gate := make(chan struct{})
	a.mu.Lock()
	a.gate = gate
	a.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// HoldDeviceQueries makes BondedDevices block until the returned function
// is called
func (a *Adapter) HoldDeviceQueries() (release func()) {
	gate := make(chan struct{})
	a.mu.Lock()
	a.devicesGate = gate
	a.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// DialCount returns how many times Dial was called
func (a *Adapter) DialCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dials
}

// CancelDiscoveryCount returns how many times CancelDiscovery was called
func (a *Adapter) CancelDiscoveryCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelCalls
}

// LastChannel returns the most recently opened channel, or nil
func (a *Adapter) LastChannel() *Channel {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.channels) == 0 {
		return nil
	}
	return a.channels[len(a.channels)-1]
}

func (a *Adapter) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.powered
}

func (a *Adapter) CancelDiscovery() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelCalls++
	return nil
}

// Dial ignores ctx on purpose so tests can exercise late completions
func (a *Adapter) Dial(ctx context.Context, address string, service uuid.UUID) (io.WriteCloser, error) {
	a.mu.Lock()
	a.dials++
	gate := a.gate
	a.mu.Unlock()

	if gate != nil {
		<-gate
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dialErr != nil {
		return nil, a.dialErr
	}
	ch := &Channel{Address: address, Service: service}
	a.channels = append(a.channels, ch)
	return ch, nil
}

func (a *Adapter) BondedDevices(ctx context.Context) ([]printer.Device, error) {
	a.mu.Lock()
	gate := a.devicesGate
	a.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.devicesErr != nil {
		return nil, a.devicesErr
	}
	return append([]printer.Device(nil), a.devices...), nil
}

// Channel records everything written to it
type Channel struct {
	Address string
	Service uuid.UUID

	mu       sync.Mutex
	buf      bytes.Buffer
	writes   int
	closed   int
	writeErr error
}

// Fail makes subsequent writes return err (ErrRemoteClosed when nil)
func (c *Channel) Fail(err error) {
	if err == nil {
		err = ErrRemoteClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed > 0 {
		return 0, io.ErrClosedPipe
	}
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.writes++
	return c.buf.Write(p)
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

// Bytes returns a copy of everything written
func (c *Channel) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf.Bytes()...)
}

// Writes returns the number of successful Write calls
func (c *Channel) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// CloseCount returns how many times Close was called
func (c *Channel) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
