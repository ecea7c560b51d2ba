package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/thereceipt/btprinter-bridge/internal/bridge"
	"github.com/thereceipt/btprinter-bridge/internal/printer"
)

func (e *Executor) call(ctx context.Context, method string, args any) bridge.Result {
	c, err := bridge.NewCall(method, args)
	if err != nil {
		// handler arguments are plain strings, ints and maps
		return bridge.Result{Value: false}
	}
	return e.bridge.Handle(ctx, c)
}

// fromBoolean turns a boolean method result into a command result
func fromBoolean(res bridge.Result, okMsg, failMsg string) *Result {
	if res.Error != nil {
		return &Result{Success: false, Error: res.Error.Error()}
	}
	if ok, _ := res.Value.(bool); !ok {
		return &Result{Success: false, Error: failMsg}
	}
	return &Result{Success: true, Message: okMsg}
}

// handleStatus handles status command
// Usage: status
func (e *Executor) handleStatus(ctx context.Context) *Result {
	res := e.call(ctx, bridge.MethodBluetoothStatus, nil)
	enabled, _ := res.Value.(bool)

	state := "off"
	if enabled {
		state = "on"
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Bluetooth adapter is %s", state),
		Data: map[string]interface{}{
			"enabled": enabled,
		},
	}
}

// handleDevices handles devices command
// Usage: devices
func (e *Executor) handleDevices(ctx context.Context) *Result {
	res := e.call(ctx, bridge.MethodLinkedDevices, nil)
	devices, _ := res.Value.([]string)

	return &Result{
		Success: true,
		Message: fmt.Sprintf("Found %d paired device(s)", len(devices)),
		Data: map[string]interface{}{
			"devices": devices,
		},
	}
}

// handleConnect handles connect command
// Usage: connect <address>
func (e *Executor) handleConnect(ctx context.Context, args []string) *Result {
	if len(args) != 1 {
		return &Result{
			Success: false,
			Error:   "usage: connect <address>",
		}
	}

	address := args[0]
	// "name#address" as printed by devices is accepted too
	if i := strings.LastIndex(address, "#"); i >= 0 {
		address = address[i+1:]
	}

	res := e.call(ctx, bridge.MethodConnectPrinter, address)
	return fromBoolean(res,
		fmt.Sprintf("Connected to %s", address),
		fmt.Sprintf("failed to connect to %s", address))
}

// handleDisconnect handles disconnect command
// Usage: disconnect
func (e *Executor) handleDisconnect(ctx context.Context) *Result {
	res := e.call(ctx, bridge.MethodDisconnectPrinter, nil)
	return fromBoolean(res, "Disconnected", "disconnect failed")
}

// handleWrite handles write command
// Usage: write <byte> [byte...]   (decimal, 0x hex or 0 octal)
func (e *Executor) handleWrite(ctx context.Context, args []string) *Result {
	values := make([]int, 0, len(args))
	for _, arg := range args {
		v, err := strconv.ParseUint(arg, 0, 8)
		if err != nil {
			return &Result{
				Success: false,
				Error:   fmt.Sprintf("invalid byte: %s", arg),
			}
		}
		values = append(values, int(v))
	}

	res := e.call(ctx, bridge.MethodWriteBytes, values)
	out := fromBoolean(res,
		fmt.Sprintf("Wrote %d byte(s)", len(values)+1),
		"write failed: printer not connected")
	return out
}

// handlePrint handles print command
// Usage: print <text...> [--size n]
func (e *Executor) handlePrint(ctx context.Context, args []string) *Result {
	var words []string
	var size printer.TextSize
	sized := false

	for i := 0; i < len(args); i++ {
		if args[i] == "--size" {
			if i+1 >= len(args) {
				return &Result{Success: false, Error: "usage: print <text> [--size 0-5]"}
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil || !printer.TextSize(n).Valid() {
				return &Result{Success: false, Error: fmt.Sprintf("invalid size: %s (want 0-5)", args[i+1])}
			}
			size, sized = printer.TextSize(n), true
			i++
			continue
		}
		words = append(words, args[i])
	}

	if len(words) == 0 {
		return &Result{Success: false, Error: "usage: print <text> [--size 0-5]"}
	}
	text := strings.Join(words, " ")

	var payload any = text
	if sized {
		payload = map[string]interface{}{"text": text, "size": int(size)}
	}

	res := e.call(ctx, bridge.MethodPrintText, payload)
	return fromBoolean(res, "Printed", "print failed: printer not connected")
}

// handleVersion handles version command
func (e *Executor) handleVersion(ctx context.Context) *Result {
	res := e.call(ctx, bridge.MethodPlatformVersion, nil)
	return &Result{
		Success: true,
		Message: fmt.Sprint(res.Value),
	}
}

// handleBattery handles battery command
func (e *Executor) handleBattery(ctx context.Context) *Result {
	res := e.call(ctx, bridge.MethodBatteryLevel, nil)
	if res.Error != nil {
		return &Result{Success: false, Error: res.Error.Error()}
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Battery at %v%%", res.Value),
		Data: map[string]interface{}{
			"level": res.Value,
		},
	}
}

// handleCall handles raw method calls
// Usage: call <method> [json-arguments]
func (e *Executor) handleCall(ctx context.Context, args []string) *Result {
	if len(args) == 0 || len(args) > 2 {
		return &Result{
			Success: false,
			Error:   "usage: call <method> [json-arguments]",
		}
	}

	c := bridge.MethodCall{Method: args[0]}
	if len(args) == 2 {
		if !json.Valid([]byte(args[1])) {
			return &Result{Success: false, Error: "arguments must be valid JSON"}
		}
		c.Arguments = json.RawMessage(args[1])
	}

	res := e.bridge.Handle(ctx, c)
	if res.Error != nil {
		return &Result{Success: false, Error: res.Error.Error()}
	}
	return &Result{
		Success: true,
		Data: map[string]interface{}{
			"value": res.Value,
		},
	}
}

// handleHelp handles help command
func (e *Executor) handleHelp() *Result {
	helpText := `Available Commands:

  status
    Show whether the Bluetooth adapter is on

  devices
    List paired devices as name#address

  connect <address>
    Open the serial channel to a paired printer

  disconnect
    Close the serial channel

  write <byte> [byte...]
    Send raw bytes (a line feed is sent first)

  print <text> [--size 0-5]
    Print Latin-1 text; size picks a preset (default 2)
      0 normal  1 condensed  2 standard  3 double  4 triple  5 quadruple

  version | battery
    Platform queries

  call <method> [json-arguments]
    Invoke a bridge method directly

Examples:
  connect AA:BB:CC:DD:EE:FF
  print "Table 4" --size 3
  write 0x1b 0x40
  call printText '{"text":"hi","size":5}'
`

	return &Result{
		Success: true,
		Message: helpText,
	}
}
