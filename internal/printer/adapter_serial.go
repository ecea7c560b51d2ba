package printer

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/tarm/serial"
)

// windowsScanTTL bounds how often COM ports are probed
const windowsScanTTL = 30 * time.Second

// SerialAdapter reaches printers whose SPP link the OS already exposes as
// a serial device: /dev/rfcommN bound with `rfcomm bind`, the macOS
// /dev/cu.* entries for paired devices, or the outgoing COM port Windows
// creates on pairing. Addresses are port paths.
type SerialAdapter struct {
	baud int
	scan func() []string
	open func(name string, baud int) (io.WriteCloser, error)

	// scanned caches scan results when scanning is expensive; nil
	// rescans every time
	scanned *cache.Cache

	mu   sync.Mutex
	held map[string]int
}

// NewSerialAdapter creates a serial adapter. baud 0 uses 9600, the
// default for most thermal printers.
func NewSerialAdapter(baud int) *SerialAdapter {
	if baud == 0 {
		baud = 9600
	}
	a := &SerialAdapter{
		baud: baud,
		scan: scanBluetoothPorts,
		open: openSerialPort,
		held: make(map[string]int),
	}
	// each probe opens every COM port
	if runtime.GOOS == "windows" {
		a.scanned = cache.New(windowsScanTTL, 2*windowsScanTTL)
	}
	return a
}

// Enabled reports whether any candidate port exists. A port this adapter
// holds open counts even when a scan can no longer see it.
func (a *SerialAdapter) Enabled() bool {
	return len(a.ports()) > 0
}

// ports returns scanned ports plus those held open by this adapter
func (a *SerialAdapter) ports() []string {
	var found []string
	if a.scanned == nil {
		found = a.scan()
	} else if v, ok := a.scanned.Get("ports"); ok {
		found = v.([]string)
	} else {
		found = a.scan()
		a.scanned.SetDefault("ports", found)
	}

	a.mu.Lock()
	held := make([]string, 0, len(a.held))
	for port := range a.held {
		held = append(held, port)
	}
	a.mu.Unlock()
	slices.Sort(held)

	out := slices.Clone(found)
	for _, port := range held {
		if !slices.Contains(out, port) {
			out = append(out, port)
		}
	}
	return out
}

// hold marks port as open until the returned func is called
func (a *SerialAdapter) hold(port string) func() {
	a.mu.Lock()
	a.held[port]++
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			if a.held[port]--; a.held[port] <= 0 {
				delete(a.held, port)
			}
		})
	}
}

// CancelDiscovery is a no-op; the OS owns discovery for bound ports
func (a *SerialAdapter) CancelDiscovery() error {
	return nil
}

// Dial opens the serial port at address
func (a *SerialAdapter) Dial(ctx context.Context, address string, service uuid.UUID) (io.WriteCloser, error) {
	if address == "" {
		return nil, ErrInvalidAddress
	}

	port, err := a.open(address, a.baud)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	return &serialConn{port: port, release: a.hold(address)}, nil
}

func openSerialPort(name string, baud int) (io.WriteCloser, error) {
	return serial.OpenPort(&serial.Config{Name: name, Baud: baud})
}

// BondedDevices reports every candidate port as a device named after the
// port's base name
func (a *SerialAdapter) BondedDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	for _, port := range a.ports() {
		devices = append(devices, Device{
			Name:    filepath.Base(port),
			Address: port,
		})
	}
	return devices, nil
}

// serialConn serializes writes and makes Close idempotent
type serialConn struct {
	port    io.WriteCloser
	release func()
	mu      sync.Mutex
}

func (c *serialConn) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return 0, io.ErrClosedPipe
	}
	return c.port.Write(data)
}

func (c *serialConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	c.release()
	return err
}

func scanBluetoothPorts() []string {
	switch runtime.GOOS {
	case "darwin":
		matches, _ := filepath.Glob("/dev/cu.*")
		return filterPorts(matches, []string{"debug-console", "Bluetooth-Incoming-Port", "KeySerial"})
	case "linux":
		matches, _ := filepath.Glob("/dev/rfcomm*")
		return matches
	case "windows":
		return probeWindowsPorts()
	default:
		return nil
	}
}

// filterPorts drops ports whose path contains any of skip
func filterPorts(ports []string, skip []string) []string {
	var out []string
	for _, port := range ports {
		keep := true
		for _, pattern := range skip {
			if strings.Contains(port, pattern) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, port)
		}
	}
	return out
}

// probeWindowsPorts opens COM1-COM256 briefly; only ports that open count
func probeWindowsPorts() []string {
	var ports []string
	for i := 1; i <= 256; i++ {
		name := fmt.Sprintf("COM%d", i)
		port, err := serial.OpenPort(&serial.Config{Name: name, Baud: 9600})
		if err != nil {
			continue
		}
		port.Close()
		ports = append(ports, name)
	}
	return ports
}
