// Package config defines the runtime configuration of the bridge server
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"github.com/thereceipt/btprinter-bridge/internal/printer"
)

// Transports selectable with --transport
const (
	TransportBlueZ   = "bluez"
	TransportSerial  = "serial"
	TransportNetwork = "network"
)

// Config holds every tuneable for one bridge process
type Config struct {
	// ── API ─────────────────────────────────────────────────────────
	Port string

	// ── Bluetooth ───────────────────────────────────────────────────
	Transport      string
	Adapter        string // BlueZ controller, e.g. hci0
	Channel        int    // RFCOMM channel
	SerialBaud     int
	NetworkDevices []string // name=host:port
	ConnectTimeout time.Duration

	// ── Monitoring ──────────────────────────────────────────────────
	MonitorInterval time.Duration

	// ── Output ──────────────────────────────────────────────────────
	LogLevel string
	Headless bool
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		Port:            "12212",
		Transport:       TransportBlueZ,
		Adapter:         "hci0",
		Channel:         1,
		SerialBaud:      9600,
		ConnectTimeout:  15 * time.Second,
		MonitorInterval: 2 * time.Second,
		LogLevel:        "info",
	}
}

// Load parses args (without the program name). Environment variables fill
// in anything not given on the command line.
func Load(args []string) (*Config, error) {
	cfg := Defaults()
	applyEnv(cfg, os.Getenv)

	fs := flag.NewFlagSet("btprinter-bridge", flag.ContinueOnError)

	fs.StringVarP(&cfg.Port, "port", "p", cfg.Port, "API listen port")
	fs.StringVarP(&cfg.Transport, "transport", "t", cfg.Transport, "Printer transport: bluez, serial or network")
	fs.StringVar(&cfg.Adapter, "adapter", cfg.Adapter, "BlueZ controller name")
	fs.IntVar(&cfg.Channel, "channel", cfg.Channel, "RFCOMM channel of the printer's serial port service")
	fs.IntVar(&cfg.SerialBaud, "baud", cfg.SerialBaud, "Baud rate for the serial transport")
	fs.StringSliceVar(&cfg.NetworkDevices, "device", cfg.NetworkDevices, "Network printer as name=host:port (repeatable)")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "Upper bound on a connect attempt")
	fs.DurationVar(&cfg.MonitorInterval, "monitor-interval", cfg.MonitorInterval, "Adapter polling interval")
	fs.StringVarP(&cfg.LogLevel, "log-level", "l", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run without the terminal dashboard")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("SERVER_PORT"); v != "" {
		cfg.Port = v
	}
	if v := getenv("BTPRINTER_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := getenv("BTPRINTER_ADAPTER"); v != "" {
		cfg.Adapter = v
	}
	if v := getenv("BTPRINTER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("BTPRINTER_DEVICES"); v != "" {
		cfg.NetworkDevices = strings.Split(v, ",")
	}
	if v := getenv("BTPRINTER_HEADLESS"); v == "1" || v == "true" {
		cfg.Headless = true
	}
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportBlueZ, TransportSerial, TransportNetwork:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}

	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.Channel < 1 || c.Channel > 30 {
		return fmt.Errorf("rfcomm channel %d out of range 1-30", c.Channel)
	}
	if c.MonitorInterval <= 0 {
		return fmt.Errorf("monitor interval must be positive")
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("connect timeout must not be negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.Devices(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel
func (c *Config) Level() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Devices parses NetworkDevices
func (c *Config) Devices() ([]printer.Device, error) {
	var devices []printer.Device
	for _, entry := range c.NetworkDevices {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, address, ok := strings.Cut(entry, "=")
		if !ok || name == "" || address == "" {
			return nil, fmt.Errorf("invalid device %q, want name=host:port", entry)
		}
		devices = append(devices, printer.Device{Name: name, Address: address})
	}
	return devices, nil
}
