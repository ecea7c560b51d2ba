package printer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Monitor polls the adapter behind a session for power and pairing
// changes
type Monitor struct {
	session  *Session
	interval time.Duration
	notifier Notifier
	log      zerolog.Logger

	onAdapterState  func(enabled bool)
	onDeviceAdded   func(Device)
	onDeviceRemoved func(Device)

	primed   bool
	enabled  bool
	offPolls int
	known    map[string]Device
}

// offPollsToDisable is how many consecutive "off" reads it takes to treat
// an adapter that was on as powered off
const offPollsToDisable = 2

// NewMonitor creates a printer monitor. Callbacks must be registered
// before Run.
func NewMonitor(session *Session, interval time.Duration, notifier Notifier, log zerolog.Logger) *Monitor {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Monitor{
		session:  session,
		interval: interval,
		notifier: notifier,
		log:      log,
		known:    make(map[string]Device),
	}
}

// OnAdapterState sets a callback for adapter power transitions
func (m *Monitor) OnAdapterState(callback func(enabled bool)) {
	m.onAdapterState = callback
}

// OnDeviceAdded sets a callback for newly paired devices
func (m *Monitor) OnDeviceAdded(callback func(Device)) {
	m.onDeviceAdded = callback
}

// OnDeviceRemoved sets a callback for devices no longer paired
func (m *Monitor) OnDeviceRemoved(callback func(Device)) {
	m.onDeviceRemoved = callback
}

// Run polls until ctx is done
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.checkChanges(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.checkChanges(ctx)
		}
	}
}

func (m *Monitor) checkChanges(ctx context.Context) {
	enabled := m.session.AdapterEnabled()
	if enabled {
		m.offPolls = 0
	} else {
		m.offPolls++
	}

	// A single failed read does not take down a live link
	if !enabled && m.primed && m.enabled && m.offPolls < offPollsToDisable {
		m.log.Debug().Int("off_polls", m.offPolls).Msg("adapter reported off, waiting for confirmation")
		enabled = true
	}

	// The first poll reports the initial state
	if !m.primed || enabled != m.enabled {
		m.log.Info().Bool("enabled", enabled).Msg("adapter state")
		if m.onAdapterState != nil {
			m.onAdapterState(enabled)
		}
	}
	m.enabled = enabled

	// A powered-off controller has already dropped the link
	if !enabled && m.session.Disconnect() {
		m.log.Warn().Msg("adapter powered off, session closed")
		m.notifier.Notify(DisconnectedMessage)
	}

	m.primed = true

	devices, err := m.session.PairedDevices(ctx)
	if err != nil {
		m.log.Debug().Err(err).Msg("paired device scan failed")
		return
	}

	current := make(map[string]Device, len(devices))
	for _, d := range devices {
		current[d.Address] = d
	}

	for address, d := range current {
		if _, exists := m.known[address]; !exists {
			m.log.Info().Str("device", d.String()).Msg("device paired")
			if m.onDeviceAdded != nil {
				m.onDeviceAdded(d)
			}
		}
	}

	for address, d := range m.known {
		if _, exists := current[address]; !exists {
			m.log.Info().Str("device", d.String()).Msg("device unpaired")
			if m.onDeviceRemoved != nil {
				m.onDeviceRemoved(d)
			}
		}
	}

	m.known = current
}
