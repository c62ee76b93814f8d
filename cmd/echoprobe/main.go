// Package main provides the echoprobe command line tool.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/postalsys/echoprobe/internal/config"
	"github.com/postalsys/echoprobe/internal/icmp"
	"github.com/postalsys/echoprobe/internal/logging"
	"github.com/postalsys/echoprobe/internal/metrics"
	"github.com/postalsys/echoprobe/internal/rawsock"
	"github.com/postalsys/echoprobe/internal/sysinfo"
)

// exitError ends the process with code without printing anything further.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	mode       string
	privileged bool
}

func main() {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "echoprobe",
		Short: "echoprobe - ICMP echo probe",
		Long: `echoprobe sends ICMP echo requests over unprivileged datagram or raw
sockets and reports the replies.

It probes IPv4 and IPv6 literals only; no name resolution is performed.`,
		Version:       sysinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format override (text, json)")
	flags.StringVarP(&opts.mode, "mode", "m", "", "Socket mode override (dgram, raw, packetconn)")
	flags.BoolVar(&opts.privileged, "privileged", false, "Use raw IP sockets in packetconn mode")

	rootCmd.AddCommand(probeCmd(opts))
	rootCmd.AddCommand(watchCmd(opts))
	rootCmd.AddCommand(checkCmd(opts))
	rootCmd.AddCommand(statusCmd(opts))
	rootCmd.AddCommand(serviceCmd(opts))
	rootCmd.AddCommand(initCmd())

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app bundles the components built from configuration.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	transport rawsock.Transport
	prober    *icmp.Prober
}

func loadConfig(opts *globalOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	if opts.mode != "" {
		cfg.Probe.Mode = opts.mode
	}
	if opts.privileged {
		cfg.Probe.Privileged = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(opts *globalOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	registry := prometheus.NewRegistry()
	m := metrics.NewMetricsWithRegistry(registry)

	topts := cfg.TransportOptions()
	topts.Logger = logger
	transport := rawsock.New(topts)

	prober := icmp.NewProber(transport, cfg.ProberConfig(), logger)
	prober.SetMetrics(m)

	logger.Debug("configuration loaded",
		logging.KeyMode, cfg.Probe.Mode,
		logging.KeyTimeout, cfg.Probe.Timeout,
		"version", sysinfo.Version)

	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		metrics:   m,
		transport: transport,
		prober:    prober,
	}, nil
}
