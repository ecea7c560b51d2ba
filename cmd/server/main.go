package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"github.com/thereceipt/btprinter-bridge/internal/api"
	"github.com/thereceipt/btprinter-bridge/internal/bridge"
	"github.com/thereceipt/btprinter-bridge/internal/command"
	"github.com/thereceipt/btprinter-bridge/internal/config"
	"github.com/thereceipt/btprinter-bridge/internal/platform"
	"github.com/thereceipt/btprinter-bridge/internal/printer"
	"github.com/thereceipt/btprinter-bridge/internal/tui"
	"golang.org/x/sync/errgroup"
)

// Version is set during build via ldflags
var Version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	level, err := cfg.Level()
	if err != nil {
		return err
	}

	sink := &logSink{out: zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}}
	log := zerolog.New(sink).Level(level).With().Timestamp().Logger()

	adapter, closeAdapter, err := newAdapter(cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s transport: %w", cfg.Transport, err)
	}
	defer closeAdapter()

	// The API server and dashboard are built after the session, so
	// notices go through a late-bound fan-out.
	notify := &fanout{}

	session := printer.NewSession(adapter,
		printer.WithNotifier(notify),
		printer.WithLogger(log.With().Str("component", "session").Logger()),
	)

	b := bridge.New(session, platform.New(), cfg.ConnectTimeout, log.With().Str("component", "bridge").Logger())
	executor := command.NewExecutor(b)
	server := api.NewServer(b, session, executor, log.With().Str("component", "api").Logger())
	notify.add(server)

	monitor := printer.NewMonitor(session, cfg.MonitorInterval, notify, log.With().Str("component", "monitor").Logger())

	var dash *tui.TViewApp
	if !cfg.Headless {
		dash = tui.NewTViewApp(session, executor, cfg.Port)
		sink.set(zerolog.ConsoleWriter{Out: dash.LogWriter(), NoColor: true, TimeFormat: "15:04:05", PartsExclude: []string{zerolog.TimestampFieldName}})
		notify.add(dash)
	}

	monitor.OnAdapterState(func(enabled bool) {
		server.BroadcastAdapterState(enabled)
		if enabled {
			log.Info().Msg("🟢 Bluetooth adapter on")
		} else {
			log.Warn().Msg("🔴 Bluetooth adapter off")
		}
	})
	monitor.OnDeviceAdded(func(d printer.Device) {
		server.BroadcastDeviceAdded(d)
		log.Info().Str("device", d.String()).Msg("🟢 Device paired")
		if dash != nil {
			dash.RefreshDevices()
		}
	})
	monitor.OnDeviceRemoved(func(d printer.Device) {
		server.BroadcastDeviceRemoved(d)
		log.Info().Str("device", d.String()).Msg("🔴 Device unpaired")
		if dash != nil {
			dash.RefreshDevices()
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return monitor.Run(ctx)
	})

	g.Go(func() error {
		addr := fmt.Sprintf("0.0.0.0:%s", cfg.Port)
		log.Info().Str("transport", cfg.Transport).Str("version", Version).Msgf("🚀 Starting API server on %s", addr)
		if err := server.Run(ctx, addr); err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	if dash != nil {
		g.Go(func() error {
			if err := dash.Run(ctx); err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			// quitting the dashboard stops the process
			stop()
			return nil
		})
	}

	err = g.Wait()

	if session.Disconnect() {
		log.Info().Msg("🛑 Printer disconnected on shutdown")
	}
	return err
}

func newAdapter(cfg *config.Config) (printer.Adapter, func(), error) {
	switch cfg.Transport {
	case config.TransportSerial:
		return printer.NewSerialAdapter(cfg.SerialBaud), func() {}, nil

	case config.TransportNetwork:
		devices, err := cfg.Devices()
		if err != nil {
			return nil, nil, err
		}
		return printer.NewNetworkAdapter(devices, cfg.ConnectTimeout), func() {}, nil

	default:
		adapter, err := printer.NewBlueZAdapter(cfg.Adapter, cfg.Channel)
		if err != nil {
			return nil, nil, err
		}
		return adapter, func() { adapter.Close() }, nil
	}
}

// fanout is a printer.Notifier whose targets are added after construction
type fanout struct {
	mu      sync.RWMutex
	targets printer.MultiNotifier
}

func (f *fanout) add(n printer.Notifier) {
	f.mu.Lock()
	f.targets = append(f.targets, n)
	f.mu.Unlock()
}

func (f *fanout) Notify(message string) {
	f.mu.RLock()
	targets := f.targets
	f.mu.RUnlock()
	targets.Notify(message)
}

// logSink lets the log destination move to the dashboard once it exists
type logSink struct {
	mu  sync.Mutex
	out io.Writer
}

func (s *logSink) set(w io.Writer) {
	s.mu.Lock()
	s.out = w
	s.mu.Unlock()
}

func (s *logSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Write(p)
}
