package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dockervirt/dockervirt/internal/config"
	"github.com/dockervirt/dockervirt/internal/docker"
)

func newEngine(configPath string) (*docker.Client, error) {
	cfg, err := config.NewFromFile(configPath)
	if err != nil {
		return nil, err
	}
	engine, err := docker.NewClient(cfg.Endpoint, cfg.APIVersion, cfg.APITimeout)
	if err != nil {
		return nil, fmt.Errorf("create engine client: %w", err)
	}
	return engine, nil
}

func newCheckCommand(configPath *string) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the container engine daemon is reachable.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if wait {
				engine, err := newEngine(*configPath)
				if err != nil {
					return err
				}
				if err = engine.WaitDaemonReady(cmd.Context()); err != nil {
					return err
				}
			} else {
				d, err := newDriver(*configPath)
				if err != nil {
					return err
				}
				if err := d.InitHost(cmd.Context()); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Container engine daemon is reachable.")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false,
		"Wait for the daemon to start instead of failing immediately")
	return cmd
}

func newListCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List instances known to the engine on this host.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine(*configPath)
			if err != nil {
				return err
			}
			names, err := engine.ListContainerNames(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				running, err := engine.ContainerRunning(cmd.Context(), name)
				if err != nil {
					return err
				}
				state := "stopped"
				if running {
					state = "running"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, state)
			}
			return nil
		},
	}
}

func newResourcesCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "Report host capacity as seen by the scheduler.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDriver(*configPath)
			if err != nil {
				return err
			}
			nodes, err := d.AvailableNodes()
			if err != nil {
				return err
			}
			res, err := d.AvailableResource(cmd.Context(), nodes[0])
			if err != nil {
				return err
			}
			uptime, err := d.HostUptime()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Node:      %s\n", res.HypervisorHostname)
			fmt.Fprintf(out, "Uptime:    %s\n", uptime)
			fmt.Fprintf(out, "VCPUs:     %d\n", res.VCPUs)
			fmt.Fprintf(out, "Memory MB: %d used / %d total\n", res.MemoryMBUsed, res.MemoryMB)
			fmt.Fprintf(out, "Disk GB:   %d used / %d total (%d available)\n",
				res.LocalGBUsed, res.LocalGB, res.DiskAvailableLeast)
			return nil
		},
	}
}

func newInfoCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "info INSTANCE_FILE",
		Short: "Show the live state of an instance.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadInstanceSpec(args[0])
			if err != nil {
				return err
			}
			d, err := newDriver(*configPath)
			if err != nil {
				return err
			}
			info, err := d.GetInfo(cmd.Context(), spec.Instance)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "State:  %s\n", info.State)
			fmt.Fprintf(out, "Memory: %d bytes\n", info.MaxMemBytes)
			fmt.Fprintf(out, "VCPUs:  %d\n", info.NumCPU)
			return nil
		},
	}
}

func newConsoleCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "console INSTANCE_FILE",
		Short: "Print the console output of an instance.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadInstanceSpec(args[0])
			if err != nil {
				return err
			}
			d, err := newDriver(*configPath)
			if err != nil {
				return err
			}
			output, err := d.ConsoleOutput(cmd.Context(), spec.Instance)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), output)
			return nil
		},
	}
}
