package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/postalsys/echoprobe/internal/control"
)

func statusCmd(opts *globalOptions) *cobra.Command {
	var (
		socketPath string
		recent     bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running watch",
		Long: `Query the control socket of a running "echoprobe watch" and print its
statistics. With --recent, also print the latest probe results.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if socketPath == "" {
				cfg, err := loadConfig(opts)
				if err != nil {
					return err
				}
				socketPath = cfg.Watch.ControlSocket
			}
			if socketPath == "" {
				socketPath = control.DefaultServerConfig().SocketPath
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			client := control.NewClient(socketPath)
			defer client.Close()

			status, err := client.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to query %s: %w", socketPath, err)
			}

			out := newPrinter(os.Stdout, asJSON)
			if recent {
				res, err := client.Recent(ctx)
				if err != nil {
					return fmt.Errorf("failed to query %s: %w", socketPath, err)
				}
				for _, r := range res.Results {
					out.stored(r)
				}
			}

			if asJSON {
				out.encode(status)
				return nil
			}

			state := out.ok.Render("running")
			if !status.Running {
				state = out.warn.Render("stopped")
			}
			fmt.Fprintf(out.w, "%s %s (version %s, up %s)\n",
				out.bold.Render(status.Target), state, status.Version,
				time.Duration(status.UptimeSeconds)*time.Second)
			out.summary(status.Target, status.Stats)
			return nil
		},
	}

	cmd.Flags().StringVar(&socketPath, "socket", "", "Control socket path (default: watch.control_socket)")
	cmd.Flags().BoolVar(&recent, "recent", false, "Also print the latest probe results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}
