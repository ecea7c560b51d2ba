package printer

// DisconnectedMessage is shown to the user when a write finds the link dead
const DisconnectedMessage = "Device was disconnected, reconnect"

// Notifier delivers short user-facing messages (toasts, TUI log lines,
// WebSocket events)
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a plain function to Notifier
type NotifierFunc func(message string)

// Notify calls f(message)
func (f NotifierFunc) Notify(message string) {
	f(message)
}

// MultiNotifier fans a message out to several notifiers
type MultiNotifier []Notifier

// Notify forwards message to every non-nil notifier in order
func (m MultiNotifier) Notify(message string) {
	for _, n := range m {
		if n != nil {
			n.Notify(message)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}
