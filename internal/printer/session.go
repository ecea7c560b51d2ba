// Package printer manages a single serial (SPP) session to a Bluetooth
// thermal printer and encodes the ESC/POS bytes sent over it.
package printer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const (
	deviceNameTTL     = 10 * time.Minute
	deviceNameCleanup = 20 * time.Minute
)

// Session owns at most one open output channel to a remote printer.
// Every read or write of the channel happens under mu. connected and
// lastAddress mirror the guarded state for lock-free status reads while a
// connect is in flight.
type Session struct {
	adapter  Adapter
	notifier Notifier
	log      zerolog.Logger
	names    *cache.Cache

	mu      sync.Mutex
	address string
	channel io.WriteCloser

	connected   atomic.Bool
	lastAddress atomic.Value // string
}

// Option configures a Session
type Option func(*Session)

// WithNotifier sets where disconnect notices are sent
func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets the session logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// NewSession creates a disconnected session on top of adapter.
// A nil adapter behaves like a missing Bluetooth controller.
func NewSession(adapter Adapter, opts ...Option) *Session {
	s := &Session{
		adapter:  adapter,
		notifier: nopNotifier{},
		log:      zerolog.Nop(),
		names:    cache.New(deviceNameTTL, deviceNameCleanup),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AdapterEnabled reports whether the adapter exists and is powered on
func (s *Session) AdapterEnabled() bool {
	return s.adapter != nil && s.adapter.Enabled()
}

// Connected reports whether a channel is currently open
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Address returns the address of the most recent connect request
func (s *Session) Address() string {
	address, _ := s.lastAddress.Load().(string)
	return address
}

// setChannel must be called with mu held
func (s *Session) setChannel(ch io.WriteCloser) {
	s.channel = ch
	s.connected.Store(ch != nil)
}

// Connect opens a serial-profile channel to address. With a channel
// already open it reports the current state without dialing again.
func (s *Session) Connect(ctx context.Context, address string) bool {
	if address == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.address = address
	s.lastAddress.Store(address)
	if s.channel != nil {
		return true
	}

	log := s.log.With().Str("address", address).Logger()
	if name, ok := s.names.Get(address); ok {
		log = log.With().Str("device", name.(string)).Logger()
	}

	conn, err := s.open(ctx, address)
	if err != nil {
		log.Warn().Err(err).Msg("connect failed")
		return false
	}

	s.setChannel(conn)
	log.Info().Msg("connected to printer")
	return true
}

// open runs the blocking dial on its own goroutine so that ctx can abandon
// it. A socket that completes after ctx is done is closed.
func (s *Session) open(ctx context.Context, address string) (io.WriteCloser, error) {
	if s.adapter == nil {
		return nil, ErrAdapterUnavailable
	}
	if !s.adapter.Enabled() {
		return nil, ErrAdapterDisabled
	}

	if err := s.adapter.CancelDiscovery(); err != nil {
		s.log.Debug().Err(err).Msg("cancel discovery failed")
	}

	type dialResult struct {
		conn io.WriteCloser
		err  error
	}

	done := make(chan dialResult, 1)
	go func() {
		conn, err := s.adapter.Dial(ctx, address, SerialPortProfile)
		done <- dialResult{conn: conn, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("failed to open channel: %w", r.err)
		}
		return r.conn, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Disconnect closes the open channel. It returns false when there was
// nothing to close.
func (s *Session) Disconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channel == nil {
		return false
	}

	if err := s.channel.Close(); err != nil {
		s.log.Debug().Err(err).Str("address", s.address).Msg("close failed")
	}
	s.setChannel(nil)
	s.log.Info().Str("address", s.address).Msg("disconnected printer")
	return true
}

// WriteBytes sends a line feed followed by payload
func (s *Session) WriteBytes(payload []byte) bool {
	return s.write(EncodeRawWrite(payload))
}

// PrintText prints Latin-1 text using the standard font preset
func (s *Session) PrintText(text string) bool {
	return s.PrintTextSized(text, DefaultTextSize)
}

// PrintTextSized prints Latin-1 text preceded by the given size preset
func (s *Session) PrintTextSized(text string, size TextSize) bool {
	data, err := EncodeText(text, size)
	if err != nil {
		s.log.Warn().Err(err).Msg("print rejected")
		return false
	}
	return s.write(data)
}

// write sends data in a single call. On an I/O error the channel is torn
// down and the user is notified once.
func (s *Session) write(data []byte) bool {
	s.mu.Lock()

	if s.channel == nil {
		s.mu.Unlock()
		return false
	}

	_, err := s.channel.Write(data)
	if err == nil {
		s.mu.Unlock()
		return true
	}

	broken := s.channel
	s.setChannel(nil)
	address := s.address
	s.mu.Unlock()

	broken.Close()
	s.log.Warn().Err(err).Str("address", address).Msg("write failed, channel dropped")
	s.notifier.Notify(DisconnectedMessage)
	return false
}

// PairedDevices returns the adapter's bonded devices. Errors are reported
// to the caller; ListPairedDevices is the lenient variant.
func (s *Session) PairedDevices(ctx context.Context) ([]Device, error) {
	if s.adapter == nil {
		return nil, ErrAdapterUnavailable
	}

	devices, err := s.adapter.BondedDevices(ctx)
	if err != nil {
		return nil, err
	}

	for _, d := range devices {
		s.names.SetDefault(d.Address, d.Name)
	}
	return devices, nil
}

// ListPairedDevices formats every bonded device as "name#address". It
// never fails: an unavailable adapter yields an empty list.
func (s *Session) ListPairedDevices(ctx context.Context) []string {
	out := []string{}

	devices, err := s.PairedDevices(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("listing paired devices failed")
		return out
	}

	for _, d := range devices {
		out = append(out, d.String())
	}
	return out
}
