package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/postalsys/echoprobe/internal/icmp"
)

func probeCmd(opts *globalOptions) *cobra.Command {
	var (
		identifier uint16
		sequence   uint16
		timeout    time.Duration
		count      int
		interval   time.Duration
		asJSON     bool
		dumpMetric bool
	)

	cmd := &cobra.Command{
		Use:   "probe <address>",
		Short: "Send echo requests to an address",
		Long: `Send one or more ICMP echo requests to an IPv4 or IPv6 literal and
print each reply. Exits 0 when at least one matching echo reply arrived.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 0 {
				return fmt.Errorf("count must not be negative")
			}

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			address := args[0]

			if !cmd.Flags().Changed("id") {
				identifier = uint16(a.cfg.Probe.Identifier)
			}
			if !cmd.Flags().Changed("interval") {
				interval = a.cfg.Watch.Interval
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := newPrinter(os.Stdout, asJSON)

			var received int
			if count == 1 {
				reply, err := a.prober.Probe(ctx, address, identifier, sequence, timeout)
				out.result(address, identifier, sequence, reply, err)
				if err == nil && reply.IsEchoReply() && reply.Matched {
					received = 1
				}
			} else {
				stats, err := a.prober.Series(ctx, address, icmp.SeriesOptions{
					Count:         count,
					Interval:      interval,
					Identifier:    identifier,
					StartSequence: sequence,
					Timeout:       timeout,
				}, func(r icmp.Result) {
					out.result(address, identifier, r.Sequence, r.Reply, r.Err)
				})
				if err != nil {
					out.result(address, identifier, sequence, nil, err)
				} else {
					snap := stats.Snapshot()
					received = snap.Received
					out.summary(address, snap)
				}
			}

			if dumpMetric {
				if err := dumpMetrics(os.Stderr, a.registry); err != nil {
					return err
				}
			}

			if received == 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().Uint16Var(&identifier, "id", 0, "Echo identifier (default from config)")
	cmd.Flags().Uint16Var(&sequence, "seq", 1, "Sequence number of the first request")
	cmd.Flags().DurationVarP(&timeout, "timeout", "W", 0, "Reply timeout (default from config)")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of requests, 0 to run until interrupted")
	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "Delay between requests (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON lines")
	cmd.Flags().BoolVar(&dumpMetric, "dump-metrics", false, "Write Prometheus metrics to stderr when done")

	return cmd
}
