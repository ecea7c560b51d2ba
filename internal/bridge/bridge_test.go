package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereceipt/btprinter-bridge/internal/printer"
	"github.com/thereceipt/btprinter-bridge/internal/printer/printertest"
)

type fakePlatform struct {
	version string
	battery int
}

func (p fakePlatform) Version() string   { return p.version }
func (p fakePlatform) BatteryLevel() int { return p.battery }

func newBridge(t *testing.T, devices ...printer.Device) (*Bridge, *printertest.Adapter) {
	t.Helper()

	adapter := printertest.NewAdapter(devices...)
	session := printer.NewSession(adapter)
	b := New(session, fakePlatform{version: "Linux 6.1.0", battery: 64}, time.Second, zerolog.Nop())
	return b, adapter
}

func call(t *testing.T, b *Bridge, method string, args any) Result {
	t.Helper()

	c, err := NewCall(method, args)
	require.NoError(t, err)
	return b.Handle(context.Background(), c)
}

func TestHandle_PlatformQueries(t *testing.T) {
	b, _ := newBridge(t)

	assert.Equal(t, Result{Value: "Linux 6.1.0"}, call(t, b, MethodPlatformVersion, nil))
	assert.Equal(t, Result{Value: 64}, call(t, b, MethodBatteryLevel, nil))
}

func TestHandle_BatteryUnavailable(t *testing.T) {
	b := New(printer.NewSession(nil), fakePlatform{battery: -1}, 0, zerolog.Nop())

	res := call(t, b, MethodBatteryLevel, nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeUnavailable, res.Error.Code)
}

func TestHandle_BluetoothStatus(t *testing.T) {
	b, adapter := newBridge(t)
	assert.Equal(t, true, call(t, b, MethodBluetoothStatus, nil).Value)

	adapter.SetPowered(false)
	assert.Equal(t, false, call(t, b, MethodBluetoothStatus, nil).Value)
	assert.Equal(t, false, call(t, b, MethodConnectPrinter, "AA:BB:CC:DD:EE:FF").Value)
}

func TestHandle_ConnectWriteDisconnect(t *testing.T) {
	b, adapter := newBridge(t)

	assert.Equal(t, false, call(t, b, MethodConnectPrinter, "").Value)
	assert.Equal(t, false, call(t, b, MethodConnectPrinter, nil).Value)
	assert.Equal(t, 0, adapter.DialCount())

	assert.Equal(t, true, call(t, b, MethodConnectPrinter, "AA:BB:CC:DD:EE:FF").Value)
	assert.Equal(t, true, call(t, b, MethodWriteBytes, []int{27, 64}).Value)
	assert.Equal(t, true, call(t, b, MethodPrintText, "A").Value)
	assert.Equal(t, true, call(t, b, MethodPrintText, map[string]any{"text": "B", "size": 3}).Value)

	assert.Equal(t, []byte{
		0x0a, 27, 64,
		0x1b, 0x4d, 0x00, 'A',
		0x1d, 0x21, 0x11, 'B',
	}, adapter.LastChannel().Bytes())

	assert.Equal(t, true, call(t, b, MethodDisconnectPrinter, nil).Value)
	assert.Equal(t, false, call(t, b, MethodWriteBytes, []int{1}).Value)

	// disconnect always reports true
	assert.Equal(t, true, call(t, b, MethodDisconnectPrinter, nil).Value)
}

func TestHandle_WriteBytesArguments(t *testing.T) {
	b, adapter := newBridge(t)
	call(t, b, MethodConnectPrinter, "AA:BB:CC:DD:EE:FF")

	tests := []struct {
		name string
		args any
		want []byte
	}{
		{name: "null writes only the line feed", args: nil, want: []byte{0x0a}},
		{name: "values keep their low byte", args: []int{1, 256, -1, 511}, want: []byte{0x0a, 1, 0, 0xff, 0xff}},
		{name: "string is an empty list", args: "hello", want: []byte{0x0a}},
		{name: "object is an empty list", args: map[string]any{"bytes": []int{1}}, want: []byte{0x0a}},
		{name: "mixed list is an empty list", args: []any{1, "2"}, want: []byte{0x0a}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(adapter.LastChannel().Bytes())

			res := call(t, b, MethodWriteBytes, tt.args)
			assert.Nil(t, res.Error)
			assert.Equal(t, true, res.Value)
			assert.Equal(t, tt.want, adapter.LastChannel().Bytes()[before:])
		})
	}
}

func TestHandle_ArgumentsAreStringified(t *testing.T) {
	b, adapter := newBridge(t, printer.Device{Name: "PT-210", Address: "42"})

	res := call(t, b, MethodConnectPrinter, 42)
	assert.Nil(t, res.Error)
	assert.Equal(t, true, res.Value)
	assert.Equal(t, "42", adapter.LastChannel().Address)

	for _, args := range []any{7, true, []int{1, 2}, map[string]any{"text": 9}} {
		res := call(t, b, MethodPrintText, args)
		assert.Nil(t, res.Error)
		assert.Equal(t, true, res.Value)
	}

	assert.Equal(t, []byte{
		0x1b, 0x4d, 0x00, '7',
		0x1b, 0x4d, 0x00, 't', 'r', 'u', 'e',
		0x1b, 0x4d, 0x00, '[', '1', ',', '2', ']',
		0x1b, 0x4d, 0x00, '9',
	}, adapter.LastChannel().Bytes())
}

func TestHandle_PrintTextBadSize(t *testing.T) {
	b, adapter := newBridge(t)
	call(t, b, MethodConnectPrinter, "AA:BB:CC:DD:EE:FF")

	for _, size := range []any{6, -1, 2.5, "big"} {
		res := call(t, b, MethodPrintText, map[string]any{"text": "x", "size": size})
		assert.Nil(t, res.Error, "size %v", size)
		assert.Equal(t, false, res.Value, "size %v", size)
	}
	assert.Empty(t, adapter.LastChannel().Bytes())
}

func TestHandle_LinkedDevices(t *testing.T) {
	b, _ := newBridge(t, printer.Device{Name: "PT-210", Address: "00:11:22:33:44:55"})

	assert.Equal(t, []string{"PT-210#00:11:22:33:44:55"}, call(t, b, MethodLinkedDevices, nil).Value)

	empty := New(printer.NewSession(nil), fakePlatform{}, 0, zerolog.Nop())
	assert.Equal(t, []string{}, call(t, empty, MethodLinkedDevices, nil).Value)
}

func TestHandle_NotImplemented(t *testing.T) {
	b, _ := newBridge(t)

	res := b.Handle(context.Background(), MethodCall{Method: "getPrinterFirmware"})
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeNotImplemented, res.Error.Code)
	assert.False(t, res.OK())
}

func TestConnectAsync_Timeout(t *testing.T) {
	adapter := printertest.NewAdapter()
	release := adapter.HoldDials()
	defer release()

	b := New(printer.NewSession(adapter), fakePlatform{}, 20*time.Millisecond, zerolog.Nop())

	select {
	case ok := <-b.ConnectAsync(context.Background(), "AA:BB:CC:DD:EE:FF"):
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("connect did not honour the timeout")
	}
}

func TestResultJSON(t *testing.T) {
	raw, err := json.Marshal(Result{Value: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":true}`, string(raw))

	raw, err = json.Marshal(failure(CodeUnavailable, "Battery level not available."))
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":null,"error":{"code":"UNAVAILABLE","message":"Battery level not available."}}`, string(raw))
}
