package tui

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereceipt/btprinter-bridge/internal/bridge"
	"github.com/thereceipt/btprinter-bridge/internal/command"
	"github.com/thereceipt/btprinter-bridge/internal/printer"
	"github.com/thereceipt/btprinter-bridge/internal/printer/printertest"
)

type stubPlatform struct{}

func (stubPlatform) Version() string   { return "Linux" }
func (stubPlatform) BatteryLevel() int { return -1 }

func newApp(t *testing.T, devices ...printer.Device) (*TViewApp, *printer.Session, *printertest.Adapter) {
	t.Helper()

	adapter := printertest.NewAdapter(devices...)
	session := printer.NewSession(adapter)
	b := bridge.New(session, stubPlatform{}, time.Second, zerolog.Nop())
	return NewTViewApp(session, command.NewExecutor(b), "12212"), session, adapter
}

func refreshDevicesNow(t *testing.T, app *TViewApp) {
	t.Helper()
	devices, err := app.loadDevices()
	app.applyDevices(devices, err)
}

func TestRefreshDevices(t *testing.T) {
	app, session, _ := newApp(t,
		printer.Device{Name: "PT-210", Address: "00:11:22:33:44:55"},
		printer.Device{Name: "MTP-II", Address: "66:55:44:33:22:11"},
	)

	refreshDevicesNow(t, app)
	require.Equal(t, 2, app.devicesList.GetItemCount())
	main, secondary := app.devicesList.GetItemText(0)
	assert.Equal(t, "⚪ PT-210", main)
	assert.Equal(t, "00:11:22:33:44:55", secondary)

	require.True(t, session.Connect(context.Background(), "00:11:22:33:44:55"))
	refreshDevicesNow(t, app)
	main, _ = app.devicesList.GetItemText(0)
	assert.Equal(t, "🟢 PT-210", main)
}

func TestRefreshDevices_Empty(t *testing.T) {
	app, _, adapter := newApp(t)

	refreshDevicesNow(t, app)
	main, _ := app.devicesList.GetItemText(0)
	assert.Equal(t, "No paired devices", main)

	adapter.SetDevicesError(fmt.Errorf("dbus gone"))
	refreshDevicesNow(t, app)
	_, secondary := app.devicesList.GetItemText(0)
	assert.Equal(t, "dbus gone", secondary)
}

func TestRefreshDevices_DoesNotBlockCaller(t *testing.T) {
	app, _, adapter := newApp(t, printer.Device{Name: "PT-210", Address: "00:11:22:33:44:55"})
	release := adapter.HoldDeviceQueries()
	defer release()

	done := make(chan struct{})
	go func() {
		defer close(done)
		app.RefreshDevices()
		app.refreshAll()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresh waited on the adapter")
	}
	assert.Equal(t, 0, app.devicesList.GetItemCount())
}

func TestShowStatus(t *testing.T) {
	app, session, adapter := newApp(t, printer.Device{Name: "PT-210", Address: "00:11:22:33:44:55"})

	app.showStatus(session.AdapterEnabled())
	text := app.statusBox.GetText(true)
	assert.Contains(t, text, "Bluetooth: 🟢 On")
	assert.Contains(t, text, "not connected")
	assert.Contains(t, text, "API: :12212")

	require.True(t, session.Connect(context.Background(), "00:11:22:33:44:55"))
	adapter.SetPowered(false)
	app.Notify(printer.DisconnectedMessage)
	app.showStatus(session.AdapterEnabled())

	text = app.statusBox.GetText(true)
	assert.Contains(t, text, "Bluetooth: 🔴 Off")
	assert.Contains(t, text, "00:11:22:33:44:55")
	assert.Contains(t, text, printer.DisconnectedMessage)
}

func TestLogWriter(t *testing.T) {
	app, _, _ := newApp(t)

	input := []byte("first line\nsecond line\n\n")
	n, err := app.LogWriter().Write(input)
	require.NoError(t, err)
	assert.Equal(t, len(input), n)

	logs := app.logsArea.GetText(true)
	assert.Contains(t, logs, "first line")
	assert.Contains(t, logs, "second line")
	assert.Eventually(t, app.dirty.Load, time.Second, 5*time.Millisecond)
}

func TestLogResult(t *testing.T) {
	app, _, _ := newApp(t)

	app.logResult(&command.Result{Success: false, Error: "print failed"})
	app.logResult(&command.Result{
		Success: true,
		Message: "Found 1 paired device(s)",
		Data:    map[string]interface{}{"devices": []string{"PT-210#00:11:22:33:44:55"}},
	})

	logs := app.logsArea.GetText(true)
	assert.Contains(t, logs, "print failed")
	assert.Contains(t, logs, "PT-210#00:11:22:33:44:55")
}
