package printer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/thereceipt/btprinter-bridge/internal/printer"
	"github.com/thereceipt/btprinter-bridge/internal/printer/printertest"
)

type monitorEvents struct {
	mu      sync.Mutex
	added   []string
	removed []string
	states  []bool
}

func (e *monitorEvents) snapshot() (added, removed []string, states []bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.added...), append([]string(nil), e.removed...), append([]bool(nil), e.states...)
}

func startMonitor(t *testing.T, session *printer.Session, notifier printer.Notifier) *monitorEvents {
	t.Helper()

	events := &monitorEvents{}
	m := printer.NewMonitor(session, 5*time.Millisecond, notifier, zerolog.Nop())
	m.OnDeviceAdded(func(d printer.Device) {
		events.mu.Lock()
		defer events.mu.Unlock()
		events.added = append(events.added, d.Address)
	})
	m.OnDeviceRemoved(func(d printer.Device) {
		events.mu.Lock()
		defer events.mu.Unlock()
		events.removed = append(events.removed, d.Address)
	})
	m.OnAdapterState(func(enabled bool) {
		events.mu.Lock()
		defer events.mu.Unlock()
		events.states = append(events.states, enabled)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return events
}

func TestMonitor_DeviceChanges(t *testing.T) {
	adapter := printertest.NewAdapter(printer.Device{Name: "PT-210", Address: "00:11:22:33:44:55"})
	session := printer.NewSession(adapter)

	events := startMonitor(t, session, nil)

	assert.Eventually(t, func() bool {
		added, _, _ := events.snapshot()
		return len(added) == 1
	}, time.Second, 5*time.Millisecond)

	adapter.SetDevices(printer.Device{Name: "MTP-II", Address: "66:77:88:99:AA:BB"})

	assert.Eventually(t, func() bool {
		added, removed, _ := events.snapshot()
		return len(added) == 2 && len(removed) == 1
	}, time.Second, 5*time.Millisecond)

	added, removed, _ := events.snapshot()
	assert.Equal(t, []string{"00:11:22:33:44:55", "66:77:88:99:AA:BB"}, added)
	assert.Equal(t, []string{"00:11:22:33:44:55"}, removed)
}

func TestMonitor_AdapterPowerOffClosesSession(t *testing.T) {
	session, adapter, notifier := connected(t)

	events := startMonitor(t, session, notifier)

	adapter.SetPowered(false)

	assert.Eventually(t, func() bool {
		return !session.Connected()
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, _, states := events.snapshot()
		return len(states) > 0 && !states[len(states)-1]
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return len(notifier.Messages()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, printer.DisconnectedMessage, notifier.Messages()[0])
	assert.Equal(t, 1, adapter.LastChannel().CloseCount())
}

func TestMonitor_SingleOffReadKeepsSession(t *testing.T) {
	session, adapter, notifier := connected(t)
	ctx := context.Background()

	var states []bool
	m := printer.NewMonitor(session, time.Hour, notifier, zerolog.Nop())
	m.OnAdapterState(func(enabled bool) { states = append(states, enabled) })

	m.Poll(ctx)
	adapter.SetPowered(false)
	m.Poll(ctx)
	adapter.SetPowered(true)
	m.Poll(ctx)

	assert.True(t, session.Connected())
	assert.Equal(t, []bool{true}, states)
	assert.Empty(t, notifier.Messages())

	adapter.SetPowered(false)
	m.Poll(ctx)
	assert.True(t, session.Connected())
	m.Poll(ctx)

	assert.False(t, session.Connected())
	assert.Equal(t, []bool{true, false}, states)
	assert.Equal(t, []string{printer.DisconnectedMessage}, notifier.Messages())
}

func TestMonitor_InitiallyOff(t *testing.T) {
	adapter := printertest.NewAdapter()
	adapter.SetPowered(false)

	var states []bool
	m := printer.NewMonitor(printer.NewSession(adapter), time.Hour, nil, zerolog.Nop())
	m.OnAdapterState(func(enabled bool) { states = append(states, enabled) })

	m.Poll(context.Background())
	assert.Equal(t, []bool{false}, states)
}
