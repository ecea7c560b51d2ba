// Package bridge exposes the printer session as a method-call surface: a
// method name plus JSON arguments in, a typed value or coded error out.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/thereceipt/btprinter-bridge/internal/printer"
)

// Method names understood by Handle
const (
	MethodPlatformVersion   = "getPlatformVersion"
	MethodBatteryLevel      = "getBatteryLevel"
	MethodBluetoothStatus   = "BluetoothStatus"
	MethodConnectPrinter    = "connectPrinter"
	MethodDisconnectPrinter = "disconnectPrinter"
	MethodWriteBytes        = "writeBytes"
	MethodPrintText         = "printText"
	MethodLinkedDevices     = "bluetothLinked"
)

// Error codes carried by Result.Error
const (
	CodeUnavailable    = "UNAVAILABLE"
	CodeNotImplemented = "NOT_IMPLEMENTED"
)

// Printer is the session surface the bridge drives
type Printer interface {
	AdapterEnabled() bool
	Connect(ctx context.Context, address string) bool
	Disconnect() bool
	WriteBytes(payload []byte) bool
	PrintTextSized(text string, size printer.TextSize) bool
	ListPairedDevices(ctx context.Context) []string
}

// Platform answers host queries. BatteryLevel returns -1 when unknown.
type Platform interface {
	Version() string
	BatteryLevel() int
}

// MethodCall is one request on the channel
type MethodCall struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// NewCall builds a MethodCall, encoding args as JSON. nil args are omitted.
func NewCall(method string, args any) (MethodCall, error) {
	call := MethodCall{Method: method}
	if args == nil {
		return call, nil
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return call, fmt.Errorf("failed to encode arguments: %w", err)
	}
	call.Arguments = raw
	return call, nil
}

// Error is a coded failure returned to the caller
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result is the reply to a MethodCall. Exactly one of Value and Error is
// meaningful.
type Result struct {
	Value any    `json:"value"`
	Error *Error `json:"error,omitempty"`
}

// OK reports whether the call succeeded at the transport level
func (r Result) OK() bool {
	return r.Error == nil
}

func value(v any) Result {
	return Result{Value: v}
}

func failure(code, format string, args ...any) Result {
	return Result{Error: &Error{Code: code, Message: fmt.Sprintf(format, args...)}}
}

// Bridge dispatches method calls to a printer session
type Bridge struct {
	printer        Printer
	platform       Platform
	connectTimeout time.Duration
	log            zerolog.Logger
}

// New creates a bridge. connectTimeout bounds each connect attempt; 0
// leaves it to the caller's context and the socket's own timeout.
func New(p Printer, platform Platform, connectTimeout time.Duration, log zerolog.Logger) *Bridge {
	return &Bridge{
		printer:        p,
		platform:       platform,
		connectTimeout: connectTimeout,
		log:            log,
	}
}

// Handle executes call and returns its result. Arguments of the wrong shape
// are coerced rather than rejected, so only UNAVAILABLE and NOT_IMPLEMENTED
// ever come back as errors.
func (b *Bridge) Handle(ctx context.Context, call MethodCall) Result {
	b.log.Debug().Str("method", call.Method).Msg("method call")

	switch call.Method {
	case MethodPlatformVersion:
		return value(b.platform.Version())

	case MethodBatteryLevel:
		level := b.platform.BatteryLevel()
		if level < 0 {
			return failure(CodeUnavailable, "Battery level not available.")
		}
		return value(level)

	case MethodBluetoothStatus:
		return value(b.printer.AdapterEnabled())

	case MethodConnectPrinter:
		return value(<-b.ConnectAsync(ctx, argString(call.Arguments)))

	case MethodDisconnectPrinter:
		b.printer.Disconnect()
		return value(true)

	case MethodWriteBytes:
		return value(b.printer.WriteBytes(decodeBytes(call.Arguments)))

	case MethodPrintText:
		text, size, ok := decodePrintArgs(call.Arguments)
		if !ok {
			b.log.Debug().RawJSON("arguments", call.Arguments).Msg("printText size is not a known preset")
			return value(false)
		}
		return value(b.printer.PrintTextSized(text, size))

	case MethodLinkedDevices:
		return value(b.printer.ListPairedDevices(ctx))

	default:
		return failure(CodeNotImplemented, "method %q is not implemented", call.Method)
	}
}

// ConnectAsync starts a connect attempt on its own goroutine and returns a
// channel that yields its outcome exactly once. Cancelling ctx abandons
// the attempt and yields false.
func (b *Bridge) ConnectAsync(ctx context.Context, address string) <-chan bool {
	out := make(chan bool, 1)

	go func() {
		if b.connectTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, b.connectTimeout)
			defer cancel()
		}
		out <- b.printer.Connect(ctx, address)
	}()

	return out
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// argString renders any argument as text. Strings decode as themselves,
// null is empty and everything else keeps its JSON spelling.
func argString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(bytes.TrimSpace(raw))
	}
	return compact.String()
}

// decodeBytes reads a list of numbers, keeping the low 8 bits of each.
// Anything that is not a list of numbers is an empty payload.
func decodeBytes(raw json.RawMessage) []byte {
	var values []float64
	if isNull(raw) || json.Unmarshal(raw, &values) != nil {
		return []byte{}
	}

	payload := make([]byte, len(values))
	for i, v := range values {
		payload[i] = byte(int64(v))
	}
	return payload
}

// decodePrintArgs accepts a bare value or {text, size}. ok is false only
// when size names no preset.
func decodePrintArgs(raw json.RawMessage) (string, printer.TextSize, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return argString(raw), printer.DefaultTextSize, true
	}

	var req struct {
		Text json.RawMessage `json:"text"`
		Size json.RawMessage `json:"size"`
	}
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return argString(raw), printer.DefaultTextSize, true
	}

	size := printer.DefaultTextSize
	if !isNull(req.Size) {
		var n int
		if err := json.Unmarshal(req.Size, &n); err != nil {
			return "", 0, false
		}
		if size = printer.TextSize(n); !size.Valid() {
			return "", 0, false
		}
	}
	return argString(req.Text), size, true
}
