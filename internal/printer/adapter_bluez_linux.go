//go:build linux

package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

const (
	bluezBus             = "org.bluez"
	bluezAdapterIface    = "org.bluez.Adapter1"
	bluezDeviceIface     = "org.bluez.Device1"
	getManagedObjects    = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
	defaultRFCOMMChannel = 1
)

// BlueZAdapter talks to the BlueZ daemon over the system D-Bus for adapter
// state and bonded devices, and opens RFCOMM sockets directly.
type BlueZAdapter struct {
	conn    *dbus.Conn
	name    string
	channel uint8
	powered atomic.Bool
}

// NewBlueZAdapter connects to the system bus for controller name (e.g.
// "hci0"). SPP printers almost always listen on RFCOMM channel 1; channel
// overrides it when positive.
func NewBlueZAdapter(name string, channel int) (*BlueZAdapter, error) {
	if name == "" {
		name = "hci0"
	}
	if channel <= 0 || channel > 30 {
		channel = defaultRFCOMMChannel
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	return &BlueZAdapter{
		conn:    conn,
		name:    name,
		channel: uint8(channel),
	}, nil
}

func (a *BlueZAdapter) path() dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + a.name)
}

// Enabled reports the controller's Powered property
func (a *BlueZAdapter) Enabled() bool {
	v, err := a.conn.Object(bluezBus, a.path()).GetProperty(bluezAdapterIface + ".Powered")
	if err != nil {
		// a failed read keeps the last answer
		return a.powered.Load()
	}
	powered, ok := v.Value().(bool)
	a.powered.Store(ok && powered)
	return ok && powered
}

// CancelDiscovery stops an inquiry if one is running
func (a *BlueZAdapter) CancelDiscovery() error {
	obj := a.conn.Object(bluezBus, a.path())

	v, err := obj.GetProperty(bluezAdapterIface + ".Discovering")
	if err != nil {
		return fmt.Errorf("failed to read discovery state: %w", err)
	}
	if discovering, _ := v.Value().(bool); !discovering {
		return nil
	}

	return obj.Call(bluezAdapterIface+".StopDiscovery", 0).Err
}

// Dial opens an RFCOMM stream to address. BlueZ exposes no SDP lookup
// without registering a profile, so service is informational and the
// configured channel is used.
func (a *BlueZAdapter) Dial(ctx context.Context, address string, service uuid.UUID) (io.WriteCloser, error) {
	return dialRFCOMM(ctx, address, a.channel)
}

// BondedDevices lists Device1 objects under this controller marked Paired
// or Bonded
func (a *BlueZAdapter) BondedDevices(ctx context.Context) ([]Device, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

	err := a.conn.Object(bluezBus, "/").CallWithContext(ctx, getManagedObjects, 0).Store(&objects)
	if err != nil {
		return nil, fmt.Errorf("failed to query bluez objects: %w", err)
	}

	prefix := string(a.path()) + "/"
	var devices []Device

	for path, ifaces := range objects {
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		props, ok := ifaces[bluezDeviceIface]
		if !ok {
			continue
		}
		if !variantBool(props["Paired"]) && !variantBool(props["Bonded"]) {
			continue
		}

		name := variantString(props["Alias"])
		if name == "" {
			name = variantString(props["Name"])
		}

		devices = append(devices, Device{
			Name:    name,
			Address: variantString(props["Address"]),
		})
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Address < devices[j].Address
	})

	return devices, nil
}

// Close releases the D-Bus connection
func (a *BlueZAdapter) Close() error {
	return a.conn.Close()
}

func variantBool(v dbus.Variant) bool {
	b, _ := v.Value().(bool)
	return b
}

func variantString(v dbus.Variant) string {
	s, _ := v.Value().(string)
	return s
}

// dialRFCOMM connects an AF_BLUETOOTH stream socket. The kernel stores
// BD_ADDR little-endian, so the parsed MAC is reversed.
func dialRFCOMM(ctx context.Context, address string, channel uint8) (io.WriteCloser, error) {
	hw, err := net.ParseMAC(address)
	if err != nil || len(hw) != 6 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	var addr [6]uint8
	for i := 0; i < 6; i++ {
		addr[i] = hw[5-i]
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("failed to create rfcomm socket: %w", err)
	}

	// Shutdown unblocks a pending connect without freeing the descriptor
	err = interruptibleConnect(ctx,
		func() error {
			return unix.Connect(fd, &unix.SockaddrRFCOMM{Addr: addr, Channel: channel})
		},
		func() { unix.Shutdown(fd, unix.SHUT_RDWR) },
	)
	if err != nil {
		unix.Close(fd)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("rfcomm connect to %s channel %d: %w", address, channel, err)
	}

	return os.NewFile(uintptr(fd), "rfcomm:"+address), nil
}
