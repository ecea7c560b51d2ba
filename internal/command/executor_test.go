package command

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereceipt/btprinter-bridge/internal/bridge"
	"github.com/thereceipt/btprinter-bridge/internal/printer"
	"github.com/thereceipt/btprinter-bridge/internal/printer/printertest"
)

type stubPlatform struct{}

func (stubPlatform) Version() string   { return "Linux 6.1.0" }
func (stubPlatform) BatteryLevel() int { return -1 }

func newExecutor(t *testing.T) (*Executor, *printertest.Adapter) {
	t.Helper()

	adapter := printertest.NewAdapter(printer.Device{Name: "PT-210", Address: "00:11:22:33:44:55"})
	b := bridge.New(printer.NewSession(adapter), stubPlatform{}, 0, zerolog.Nop())
	return NewExecutor(b), adapter
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"status", []string{"status"}},
		{"  connect   AA:BB  ", []string{"connect", "AA:BB"}},
		{`print "hello world" --size 3`, []string{"print", "hello world", "--size", "3"}},
		{`print 'it"s'`, []string{"print", `it"s`}},
		{`print ""`, []string{"print", ""}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseCommand(tt.in), tt.in)
	}
}

func TestExecute_ConnectPrintDisconnect(t *testing.T) {
	e, adapter := newExecutor(t)
	ctx := context.Background()

	res := e.Execute(ctx, "connect PT-210#00:11:22:33:44:55")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "00:11:22:33:44:55", adapter.LastChannel().Address)

	res = e.Execute(ctx, `print "Table 4" --size 3`)
	require.True(t, res.Success, res.Error)

	res = e.Execute(ctx, "write 0x1b 64")
	require.True(t, res.Success, res.Error)

	assert.Equal(t, append(
		[]byte{0x1d, 0x21, 0x11, 'T', 'a', 'b', 'l', 'e', ' ', '4'},
		0x0a, 0x1b, 0x40,
	), adapter.LastChannel().Bytes())

	res = e.Execute(ctx, "disconnect")
	assert.True(t, res.Success)

	res = e.Execute(ctx, "print again")
	assert.False(t, res.Success)
}

func TestExecute_Errors(t *testing.T) {
	e, _ := newExecutor(t)
	ctx := context.Background()

	for _, cmd := range []string{
		"",
		"frobnicate",
		"connect",
		"write 300",
		"print",
		"print x --size",
		"print x --size big",
		"print x --size -1",
		"print x --size 6",
		"call",
		"call printText {broken",
		"battery",
	} {
		res := e.Execute(ctx, cmd)
		assert.False(t, res.Success, cmd)
		assert.NotEmpty(t, res.Error, cmd)
	}
}

func TestExecute_Queries(t *testing.T) {
	e, adapter := newExecutor(t)
	ctx := context.Background()

	res := e.Execute(ctx, "devices")
	require.True(t, res.Success)
	assert.Equal(t, []string{"PT-210#00:11:22:33:44:55"}, res.Data["devices"])

	res = e.Execute(ctx, "status")
	assert.Equal(t, true, res.Data["enabled"])

	adapter.SetPowered(false)
	res = e.Execute(ctx, "status")
	assert.Equal(t, "Bluetooth adapter is off", res.Message)

	res = e.Execute(ctx, "version")
	assert.Equal(t, "Linux 6.1.0", res.Message)

	res = e.Execute(ctx, `call getPlatformVersion`)
	assert.Equal(t, "Linux 6.1.0", res.Data["value"])

	res = e.Execute(ctx, "help")
	assert.Contains(t, res.Message, "connect <address>")
}
