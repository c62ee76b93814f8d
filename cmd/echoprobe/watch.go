package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/postalsys/echoprobe/internal/control"
	"github.com/postalsys/echoprobe/internal/health"
	"github.com/postalsys/echoprobe/internal/icmp"
	"github.com/postalsys/echoprobe/internal/logging"
)

// watcher exposes a running series to the health and control servers.
type watcher struct {
	target  string
	stats   *icmp.Stats
	history *control.History
	running atomic.Bool
}

func newWatcher(target string) *watcher {
	return &watcher{
		target:  target,
		stats:   icmp.NewStats(),
		history: control.NewHistory(control.DefaultHistorySize),
	}
}

func (w *watcher) Target() string {
	return w.target
}

func (w *watcher) IsRunning() bool {
	return w.running.Load()
}

func (w *watcher) Stats() icmp.Snapshot {
	return w.stats.Snapshot()
}

func (w *watcher) Recent() []health.ProbeResult {
	return w.history.Recent()
}

func (w *watcher) record(identifier uint16, r icmp.Result) {
	w.stats.Add(r.Reply, r.Err)
	w.history.Add(health.NewProbeResult(w.target, identifier, r.Sequence, r.Reply, r.Err))
}

func watchCmd(opts *globalOptions) *cobra.Command {
	var (
		metricsAddr   string
		controlSocket string
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "watch <address>",
		Short: "Probe an address continuously and serve metrics",
		Long: `Probe an address at the configured interval until interrupted (or until
watch.count probes were sent), optionally serving /metrics, /health,
/healthz, /probe and /probe/ws over HTTP and status queries on a Unix
control socket.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			address := args[0]

			if _, err := icmp.ParseAddress(address); err != nil {
				return err
			}

			if metricsAddr != "" {
				a.cfg.Metrics.Enabled = true
				a.cfg.Metrics.Address = metricsAddr
			}

			if controlSocket != "" {
				a.cfg.Watch.ControlSocket = controlSocket
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := newWatcher(address)

			if a.cfg.Metrics.Enabled {
				srv := health.NewServer(health.ServerConfig{
					Address:      a.cfg.Metrics.Address,
					ReadTimeout:  a.cfg.Metrics.ReadTimeout,
					WriteTimeout: a.cfg.Metrics.WriteTimeout,
					Gatherer:     a.registry,
					Target:       address,
				}, w, a.prober, a.logger)
				if err := srv.Start(); err != nil {
					return fmt.Errorf("failed to start metrics server: %w", err)
				}
				defer srv.Stop()
			}

			if a.cfg.Watch.ControlSocket != "" {
				ctl := control.NewServer(control.ServerConfig{
					SocketPath:   a.cfg.Watch.ControlSocket,
					ReadTimeout:  a.cfg.Metrics.ReadTimeout,
					WriteTimeout: a.cfg.Metrics.WriteTimeout,
				}, w)
				if err := ctl.Start(); err != nil {
					return fmt.Errorf("failed to start control socket: %w", err)
				}
				defer ctl.Stop()
				a.logger.Debug("control socket listening", "socket", ctl.SocketPath())
			}

			out := newPrinter(os.Stdout, asJSON)
			identifier := uint16(a.cfg.Probe.Identifier)

			a.logger.Info("watch started",
				logging.KeyAddress, address,
				"interval", a.cfg.Watch.Interval,
				logging.KeyCount, a.cfg.Watch.Count)

			w.running.Store(true)
			_, err = a.prober.Series(ctx, address, icmp.SeriesOptions{
				Count:         a.cfg.Watch.Count,
				Interval:      a.cfg.Watch.Interval,
				Identifier:    identifier,
				StartSequence: 1,
			}, func(r icmp.Result) {
				w.record(identifier, r)
				out.result(address, identifier, r.Sequence, r.Reply, r.Err)
			})
			w.running.Store(false)
			if err != nil {
				return err
			}

			snap := w.Stats()
			out.summary(address, snap)
			a.logger.Info("watch stopped", logging.KeyAddress, address, logging.KeyCount, snap.Sent)

			if snap.Received == 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve metrics on this address (enables the metrics server)")
	cmd.Flags().StringVar(&controlSocket, "control-socket", "", "Serve status queries on this Unix socket")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON lines")

	return cmd
}
