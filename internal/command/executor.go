// Package command provides a text command system on top of the bridge
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/thereceipt/btprinter-bridge/internal/bridge"
)

// Executor executes commands
type Executor struct {
	bridge *bridge.Bridge
}

// NewExecutor creates a new command executor
func NewExecutor(b *bridge.Bridge) *Executor {
	return &Executor{
		bridge: b,
	}
}

// Result represents the result of executing a command
type Result struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Execute executes a command string and returns a result
func (e *Executor) Execute(ctx context.Context, cmdStr string) *Result {
	parts := parseCommand(cmdStr)
	if len(parts) == 0 {
		return &Result{
			Success: false,
			Error:   "empty command",
		}
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "status":
		return e.handleStatus(ctx)
	case "devices", "linked":
		return e.handleDevices(ctx)
	case "connect":
		return e.handleConnect(ctx, args)
	case "disconnect":
		return e.handleDisconnect(ctx)
	case "write":
		return e.handleWrite(ctx, args)
	case "print":
		return e.handlePrint(ctx, args)
	case "version":
		return e.handleVersion(ctx)
	case "battery":
		return e.handleBattery(ctx)
	case "call":
		return e.handleCall(ctx, args)
	case "help":
		return e.handleHelp()
	default:
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("unknown command: %s. Type 'help' for available commands", command),
		}
	}
}

// parseCommand parses a command string into parts, handling quoted strings
func parseCommand(cmdStr string) []string {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return []string{}
	}

	var parts []string
	var current strings.Builder
	inQuotes := false
	quoted := false
	quoteChar := byte(0)

	for i := 0; i < len(cmdStr); i++ {
		char := cmdStr[i]

		if char == '"' || char == '\'' {
			if !inQuotes {
				inQuotes = true
				quoted = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else {
				current.WriteByte(char)
			}
		} else if char == ' ' && !inQuotes {
			if current.Len() > 0 || quoted {
				parts = append(parts, current.String())
				current.Reset()
				quoted = false
			}
		} else {
			current.WriteByte(char)
		}
	}

	if current.Len() > 0 || quoted {
		parts = append(parts, current.String())
	}

	return parts
}
