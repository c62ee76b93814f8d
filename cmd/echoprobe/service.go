package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/postalsys/echoprobe/internal/icmp"
	"github.com/postalsys/echoprobe/internal/rawsock"
	"github.com/postalsys/echoprobe/internal/service"
)

func serviceCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage echoprobe watch as a systemd service",
	}

	var name string
	cmd.PersistentFlags().StringVar(&name, "name", "echoprobe", "Service name")

	cmd.AddCommand(serviceInstallCmd(opts, &name))
	cmd.AddCommand(serviceUninstallCmd(&name))
	cmd.AddCommand(serviceStatusCmd(&name))

	return cmd
}

func serviceInstallCmd(opts *globalOptions, name *string) *cobra.Command {
	var (
		user  string
		group string
	)

	cmd := &cobra.Command{
		Use:   "install <address>",
		Short: "Install a service that watches an address",
		Long: `Install and start a systemd unit running "echoprobe watch -c <config> <address>".
A config file is required. Raw and privileged modes grant the unit CAP_NET_RAW.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !service.IsSupported() {
				return fmt.Errorf("service installation is not supported on this platform")
			}
			if opts.configPath == "" {
				return fmt.Errorf("a config file is required (-c)")
			}
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if _, err := icmp.ParseAddress(args[0]); err != nil {
				return err
			}

			svc := service.DefaultConfig(opts.configPath, args[0])
			svc.Name = *name
			svc.User = user
			svc.Group = group
			mode, _ := rawsock.ParseMode(cfg.Probe.Mode)
			svc.RawSockets = mode == rawsock.ModeRaw || cfg.Probe.Privileged

			return service.Install(svc)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Run the service as this user")
	cmd.Flags().StringVar(&group, "group", "", "Run the service as this group")

	return cmd
}

func serviceUninstallCmd(name *string) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Stop and remove the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return service.Uninstall(*name)
		},
	}
}

func serviceStatusCmd(name *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the service state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !service.IsInstalled(*name) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not installed\n", *name)
				return nil
			}
			status, err := service.Status(*name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", *name, status)
			return nil
		},
	}
}
