package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
)

const (
	defaultServerURL = "http://localhost:12212"
)

func main() {
	var serverURL string
	flag.StringVarP(&serverURL, "server", "s", defaultServerURL, "Server URL")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}

	result := executeCommand(serverURL, joinArgs(flag.Args()))

	if result.Success {
		printSuccess(result)
		os.Exit(0)
	} else {
		printError(result)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Bluetooth Printer Bridge CLI

Usage:
  btprinter-cli [flags] <command>

Flags:
  -s, --server <url>    Server URL (default: %s)

Commands:
  status                         Bluetooth adapter state
  devices                        Paired devices as name#address
  connect <address>              Open the printer channel
  disconnect                     Close the printer channel
  write <byte> [byte...]         Send raw bytes
  print <text> [--size 0-5]      Print text with a size preset
  version | battery              Host queries
  call <method> [json-arguments] Invoke a bridge method directly
  help                           Show the server's command help

Examples:
  btprinter-cli devices
  btprinter-cli connect AA:BB:CC:DD:EE:FF
  btprinter-cli print "Order 42" --size 3
  btprinter-cli write 0x1d 0x56 0x00
  btprinter-cli -s http://10.0.0.5:12212 status
`, defaultServerURL)
}

// joinArgs rebuilds a command line, quoting arguments the shell unquoted
func joinArgs(args []string) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		switch {
		case arg == "" || strings.ContainsAny(arg, " \t"):
			if strings.Contains(arg, `"`) {
				parts[i] = "'" + arg + "'"
			} else {
				parts[i] = `"` + arg + `"`
			}
		case strings.ContainsAny(arg, `"'`):
			// protect JSON arguments from the server's quote handling
			if strings.Contains(arg, "'") {
				parts[i] = `"` + arg + `"`
			} else {
				parts[i] = "'" + arg + "'"
			}
		default:
			parts[i] = arg
		}
	}
	return strings.Join(parts, " ")
}

// CommandResult is the server's reply to POST /command. Data fields come
// back flattened next to success and message.
type CommandResult struct {
	Success bool
	Message string
	Error   string
	Data    map[string]interface{}
}

func executeCommand(serverURL, command string) *CommandResult {
	url := strings.TrimSuffix(serverURL, "/") + "/command"

	jsonData, err := json.Marshal(map[string]string{
		"command": command,
	})
	if err != nil {
		return &CommandResult{
			Success: false,
			Error:   fmt.Sprintf("failed to marshal request: %v", err),
		}
	}

	// connects may take a while on a slow link
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return &CommandResult{
			Success: false,
			Error:   fmt.Sprintf("failed to connect to server: %v", err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &CommandResult{
			Success: false,
			Error:   fmt.Sprintf("failed to read response: %v", err),
		}
	}

	return parseResult(body)
}

func parseResult(body []byte) *CommandResult {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return &CommandResult{
			Success: false,
			Error:   fmt.Sprintf("failed to parse response: %v", err),
		}
	}

	result := &CommandResult{Data: make(map[string]interface{})}
	for k, v := range raw {
		switch k {
		case "success":
			result.Success, _ = v.(bool)
		case "message":
			result.Message, _ = v.(string)
		case "error":
			result.Error, _ = v.(string)
		default:
			result.Data[k] = v
		}
	}
	return result
}

func printSuccess(result *CommandResult) {
	if result.Message != "" {
		fmt.Println(result.Message)
	}

	if devices, ok := result.Data["devices"].([]interface{}); ok {
		for _, d := range devices {
			fmt.Printf("  %v\n", d)
		}
	}
	if value, ok := result.Data["value"]; ok {
		out, _ := json.Marshal(value)
		fmt.Println(string(out))
	}
}

func printError(result *CommandResult) {
	if result.Error != "" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", result.Error)
	} else if result.Message != "" {
		fmt.Fprintf(os.Stderr, "%s\n", result.Message)
	}
}
