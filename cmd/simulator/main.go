// Command simulator emulates a data-center power meter feeding the relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/ghostrelay/internal/config"
	"github.com/okian/ghostrelay/internal/domain/model"
	"github.com/okian/ghostrelay/internal/simulator"
	"github.com/okian/ghostrelay/pkg/logger"
)

const usage = `Ghost Relay Device Simulator
============================

Generates (or loads) an RSA-2048 device key under <keys>/<device>/, registers
it with the relay, then submits a signed power reading every interval.
Power follows five data-center sizes (small 1-5 MW up to mega 60-100 MW),
rotating every 10 readings unless -scenario pins one.

Usage:
  simulator -address 0x... [options]

Options:
`

func main() {
	if err := logger.Init(); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, _ = config.LoadDotEnv(config.DotEnvPaths()...)

	cfg, level, err := parseFlags(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(2) //nolint:gocritic // exitAfterDefer: nothing to flush yet
	}
	if err := logger.SetLevelString(level); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	runner, err := simulator.NewRunner(cfg)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if _, err := runner.Run(ctx); err != nil {
		logger.Get().Error(ctx, "simulator failed", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// parseFlags builds the simulator config. RELAY_URL seeds the -url default.
func parseFlags(args []string) (simulator.Config, string, error) {
	fs := flag.NewFlagSet("simulator", flag.ContinueOnError)
	fs.Usage = func() {
		_, _ = fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}

	defaultURL := simulator.DefaultRelayURL
	if v := os.Getenv("RELAY_URL"); v != "" {
		defaultURL = v
	}

	var (
		cfg      simulator.Config
		protocol int
		level    string
	)
	fs.StringVar(&cfg.RelayURL, "url", defaultURL, "Base URL of the relay")
	fs.StringVar(&cfg.DeviceID, "device", "device-1", "Device name; keys live in <keys>/<device>/")
	fs.StringVar(&cfg.DeviceAddress, "address", "", "Ledger address of the device's ghost (required)")
	fs.StringVar(&cfg.KeyDir, "keys", simulator.DefaultKeyDir, "Folder holding device keys")
	fs.DurationVar(&cfg.Interval, "interval", simulator.DefaultInterval, "Time between readings")
	fs.IntVar(&cfg.Count, "count", 0, "Readings to send; 0 runs until interrupted")
	fs.IntVar(&protocol, "protocol", int(model.ProtocolV2), "Submission protocol: 1 (pre-hashed) or 2")
	fs.IntVar(&cfg.Scenario, "scenario", -1, "Pin a scenario 0-4 (small..mega); -1 rotates")
	fs.DurationVar(&cfg.Timeout, "timeout", simulator.DefaultTimeout, "HTTP request timeout")
	fs.StringVar(&level, "log-level", "info", "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return simulator.Config{}, "", err
	}
	// Positional form: simulator <device> <address>
	if rest := fs.Args(); len(rest) > 0 {
		cfg.DeviceID = rest[0]
		if len(rest) > 1 && cfg.DeviceAddress == "" {
			cfg.DeviceAddress = rest[1]
		}
	}
	cfg.Protocol = model.ProtocolVersion(protocol)

	if err := cfg.Validate(); err != nil {
		return simulator.Config{}, "", err
	}
	return cfg, level, nil
}
