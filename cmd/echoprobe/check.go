package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/postalsys/echoprobe/internal/rawsock"
)

var loopback = map[rawsock.Family]string{
	rawsock.IPv4: "127.0.0.1",
	rawsock.IPv6: "::1",
}

func checkCmd(opts *globalOptions) *cobra.Command {
	var probeLoopback bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether ICMP sockets can be opened",
		Long: `Open and close one socket per address family with the configured mode
and report which families are usable. With --loopback, also probe the
loopback address of every usable family.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			out := newPrinter(os.Stdout, false)

			fmt.Fprintf(out.w, "mode: %s\n", out.bold.Render(a.cfg.Probe.Mode))

			usable := 0
			for _, family := range []rawsock.Family{rawsock.IPv4, rawsock.IPv6} {
				if err := rawsock.Check(a.transport, family); err != nil {
					fmt.Fprintf(out.w, "%-5s %s\n", family, out.fail.Render("unavailable: "+err.Error()))
					continue
				}
				usable++
				fmt.Fprintf(out.w, "%-5s %s\n", family, out.ok.Render("ok"))

				if probeLoopback {
					address := loopback[family]
					reply, err := a.prober.Probe(context.Background(), address, uint16(a.cfg.Probe.Identifier), 1, 2*time.Second)
					out.result(address, uint16(a.cfg.Probe.Identifier), 1, reply, err)
				}
			}

			if usable == 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&probeLoopback, "loopback", false, "Also probe the loopback address")

	return cmd
}
