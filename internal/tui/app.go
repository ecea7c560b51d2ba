// Package tui is the terminal dashboard of the bridge server
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/thereceipt/btprinter-bridge/internal/command"
	"github.com/thereceipt/btprinter-bridge/internal/printer"
)

// Session is what the dashboard shows about the printer session
type Session interface {
	AdapterEnabled() bool
	Connected() bool
	Address() string
	PairedDevices(ctx context.Context) ([]printer.Device, error)
}

// TViewApp is the main TUI application using tview
type TViewApp struct {
	App      *tview.Application
	session  Session
	executor *command.Executor
	port     string

	// Main layout
	flex *tview.Flex

	// Panels
	devicesList  *tview.List
	statusBox    *tview.TextView
	logsArea     *tview.TextView
	commandInput *tview.InputField

	// State
	mu        sync.Mutex
	notice    string
	dirty     atomic.Bool // logs changed since the last draw
	startTime time.Time
}

const maxLogs = 200

// NewTViewApp creates a new tview-based TUI
func NewTViewApp(session Session, executor *command.Executor, port string) *TViewApp {
	t := &TViewApp{
		App:       tview.NewApplication(),
		session:   session,
		executor:  executor,
		port:      port,
		startTime: time.Now(),
	}

	t.setupUI()
	return t
}

func (t *TViewApp) setupUI() {
	t.devicesList = tview.NewList()
	t.devicesList.SetBorder(true)
	t.devicesList.SetTitle("Paired Devices (Enter to connect)")

	t.statusBox = tview.NewTextView()
	t.statusBox.SetBorder(true)
	t.statusBox.SetTitle("Printer Status")
	t.statusBox.SetDynamicColors(true)

	t.logsArea = tview.NewTextView()
	t.logsArea.SetBorder(true)
	t.logsArea.SetTitle("Server Logs")
	t.logsArea.SetDynamicColors(true)
	t.logsArea.SetScrollable(true)
	t.logsArea.SetMaxLines(maxLogs)
	t.logsArea.SetChangedFunc(func() {
		t.dirty.Store(true)
	})

	t.commandInput = tview.NewInputField().
		SetLabel("> ").
		SetFieldWidth(0).
		SetPlaceholder("Type a command (e.g., 'help')").
		SetDoneFunc(func(key tcell.Key) {
			if key == tcell.KeyEnter {
				t.executeCommand(t.commandInput.GetText())
				t.commandInput.SetText("")
			}
		})

	topRow := tview.NewFlex().
		AddItem(t.devicesList, 0, 2, true).
		AddItem(t.statusBox, 0, 1, false)

	bottom := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(t.logsArea, 0, 3, false).
		AddItem(t.commandInput, 1, 0, false)

	t.flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 1, true).
		AddItem(bottom, 0, 2, false)

	t.App.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if t.commandInput.HasFocus() {
			if event.Key() == tcell.KeyEsc {
				t.App.SetFocus(t.devicesList)
				return nil
			}
			return event
		}

		switch event.Key() {
		case tcell.KeyCtrlC, tcell.KeyEsc:
			t.App.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case ':':
				t.App.SetFocus(t.commandInput)
				return nil
			case 'q':
				t.App.Stop()
				return nil
			case 'x':
				t.executeCommand("disconnect")
				return nil
			case 'r':
				t.refreshAll()
				return nil
			}
		}
		return event
	})

	t.App.SetRoot(t.flex, true)
}

// Run starts the TUI and blocks until it quits or ctx is cancelled
func (t *TViewApp) Run(ctx context.Context) error {
	t.refreshAll()

	go t.refreshTicker(ctx)
	go func() {
		<-ctx.Done()
		t.App.Stop()
	}()

	return t.App.Run()
}

func (t *TViewApp) refreshTicker(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	logTicker := time.NewTicker(200 * time.Millisecond)
	defer logTicker.Stop()

	for {
		select {
		case <-ticker.C:
			t.refreshStatus()
		case <-logTicker.C:
			if t.dirty.Swap(false) {
				t.App.QueueUpdateDraw(func() {})
			}
		case <-ctx.Done():
			return
		}
	}
}

// RefreshDevices reloads the device panel. The adapter is queried off the
// UI goroutine and only the result is applied on it.
func (t *TViewApp) RefreshDevices() {
	go func() {
		devices, err := t.loadDevices()
		t.App.QueueUpdateDraw(func() {
			t.applyDevices(devices, err)
		})
	}()
}

// refreshStatus reloads the status panel the same way
func (t *TViewApp) refreshStatus() {
	go func() {
		enabled := t.session.AdapterEnabled()
		t.App.QueueUpdateDraw(func() {
			t.showStatus(enabled)
		})
	}()
}

// refreshAll is safe to call from any goroutine
func (t *TViewApp) refreshAll() {
	t.RefreshDevices()
	t.refreshStatus()
}

func (t *TViewApp) loadDevices() ([]printer.Device, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.session.PairedDevices(ctx)
}

// applyDevices must run on the UI goroutine
func (t *TViewApp) applyDevices(devices []printer.Device, err error) {
	t.devicesList.Clear()

	if err != nil {
		t.devicesList.AddItem("Error loading devices", err.Error(), 0, nil)
		return
	}
	if len(devices) == 0 {
		t.devicesList.AddItem("No paired devices", "Pair the printer with the OS first", 0, nil)
		return
	}

	connected := t.session.Address()
	for _, d := range devices {
		icon := "⚪"
		if t.session.Connected() && d.Address == connected {
			icon = "🟢"
		}

		address := d.Address
		t.devicesList.AddItem(fmt.Sprintf("%s %s", icon, d.Name), address, 0, func() {
			t.connect(address)
		})
	}
}

// showStatus must run on the UI goroutine
func (t *TViewApp) showStatus(enabled bool) {
	uptime := time.Since(t.startTime)
	hours := int(uptime.Hours())
	minutes := int(uptime.Minutes()) % 60

	bluetooth := "[red]🔴 Off[white]"
	if enabled {
		bluetooth = "[green]🟢 On[white]"
	}

	link := "[yellow]not connected[white]"
	if t.session.Connected() {
		link = fmt.Sprintf("[green]%s[white]", t.session.Address())
	}

	t.mu.Lock()
	notice := t.notice
	t.mu.Unlock()

	status := fmt.Sprintf(`Bluetooth: %s
Printer: %s

Uptime: %dh %dm
API: :%s`, bluetooth, link, hours, minutes, t.port)

	if notice != "" {
		status += fmt.Sprintf("\n\n[red]%s[white]", notice)
	}

	t.statusBox.SetText(status)
}

func (t *TViewApp) connect(address string) {
	t.AddLog(fmt.Sprintf("Connecting to %s...", address), "info")
	go t.run("connect " + address)
}

// run executes a command off the UI goroutine and logs the outcome
func (t *TViewApp) run(cmd string) {
	result := t.executor.Execute(context.Background(), cmd)
	t.logResult(result)

	t.mu.Lock()
	if result.Success {
		t.notice = ""
	}
	t.mu.Unlock()

	t.refreshAll()
}

func (t *TViewApp) logResult(result *command.Result) {
	if !result.Success {
		t.AddLog(result.Error, "error")
		return
	}
	if result.Message != "" {
		t.AddLog(result.Message, "info")
	}
	if devices, ok := result.Data["devices"].([]string); ok {
		for _, d := range devices {
			t.AddLog("  "+d, "info")
		}
	}
	if value, ok := result.Data["value"]; ok {
		t.AddLog(fmt.Sprintf("  %v", value), "info")
	}
}

func (t *TViewApp) executeCommand(cmd string) {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return
	}

	t.AddLog(fmt.Sprintf("> %s", cmd), "command")

	switch strings.ToLower(cmd) {
	case "clear":
		t.logsArea.Clear()
	case "refresh":
		t.refreshAll()
	case "quit", "q":
		t.App.Stop()
	default:
		go t.run(cmd)
	}
}

// Notify surfaces a user-facing message in the logs and the status panel
func (t *TViewApp) Notify(message string) {
	t.mu.Lock()
	t.notice = message
	t.mu.Unlock()

	t.AddLog(message, "warning")
}

// AddLog adds a log entry
func (t *TViewApp) AddLog(message string, level string) {
	var color string
	var icon string

	switch level {
	case "error":
		color = "[red]"
		icon = "❌"
	case "warning":
		color = "[yellow]"
		icon = "⚠️"
	case "command":
		color = "[cyan]"
		icon = ">"
	default:
		color = "[white]"
		icon = "ℹ️"
	}

	timeStr := time.Now().Format("15:04:05")
	fmt.Fprintf(t.logsArea, "%s%s %s %s[white]\n", color, timeStr, icon, tview.Escape(message))
	t.logsArea.ScrollToEnd()
}

// LogWriter creates an io.Writer that writes to the logs panel
func (t *TViewApp) LogWriter() io.Writer {
	return &tviewLogWriter{app: t}
}

type tviewLogWriter struct {
	app *TViewApp
}

func (w *tviewLogWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(strings.TrimSpace(string(p)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			w.app.AddLog(line, "info")
		}
	}
	return len(p), nil
}
