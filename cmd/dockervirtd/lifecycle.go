package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dockervirt/dockervirt/pkg/virt"
)

func newSpawnCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "spawn INSTANCE_FILE",
		Short: "Create and start an instance from an instance file.",
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
			return d.Spawn(cmd.Context(), spec.Instance, spec.Image, spec.Network)
		},
	}
}

func newDestroyCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "destroy INSTANCE_FILE",
		Short: "Stop and remove an instance, its volumes and network state.",
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
			return d.Destroy(cmd.Context(), spec.Instance, spec.Network)
		},
	}
}

func newRebootCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reboot INSTANCE_FILE",
		Short: "Restart an instance and re-attach its network interfaces.",
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
			return d.Reboot(cmd.Context(), spec.Instance, spec.Network)
		},
	}
}

func newPowerOnCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "power-on INSTANCE_FILE",
		Short: "Start a stopped instance.",
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
			return d.PowerOn(cmd.Context(), spec.Instance, spec.Network)
		},
	}
}

func newPowerOffCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "power-off INSTANCE_FILE",
		Short: "Gracefully stop a running instance.",
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
			return d.PowerOff(cmd.Context(), spec.Instance)
		},
	}
}

func newPauseCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pause INSTANCE_FILE",
		Short: "Pause a running instance.",
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
			return d.Pause(cmd.Context(), spec.Instance)
		},
	}
}

func newUnpauseCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "unpause INSTANCE_FILE",
		Short: "Unpause a paused instance.",
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
			return d.Unpause(cmd.Context(), spec.Instance)
		},
	}
}

func newSnapshotCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot INSTANCE_FILE IMAGE_REF",
		Short: "Commit an instance to an image.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadInstanceSpec(args[0])
			if err != nil {
				return err
			}
			d, err := newDriver(*configPath)
			if err != nil {
				return err
			}
			return d.Snapshot(cmd.Context(), spec.Instance, args[1])
		},
	}
}

func newMigrateCommand(configPath *string) *cobra.Command {
	var flavor virt.Flavor
	cmd := &cobra.Command{
		Use:   "migrate INSTANCE_FILE DEST_HOST",
		Short: "Export an instance, power it off and ship it to another host.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadInstanceSpec(args[0])
			if err != nil {
				return err
			}
			d, err := newDriver(*configPath)
			if err != nil {
				return err
			}
			target := flavor
			if target.VCPUs == 0 && spec.Instance.Flavor != nil {
				target = *spec.Instance.Flavor
			}
			if err = d.MigrateDiskAndPowerOff(cmd.Context(), spec.Instance, args[1], &target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Instance %q migrated to %s.\n", spec.Instance.Name, args[1])
			return nil
		},
	}
	cmd.Flags().IntVar(&flavor.VCPUs, "vcpus", 0, "Target flavor vcpus (defaults to the instance flavor)")
	cmd.Flags().Int64Var(&flavor.MemoryMB, "memory-mb", 0, "Target flavor memory in MiB")
	cmd.Flags().Int64Var(&flavor.RootGB, "root-gb", 0, "Target flavor root disk in GiB")
	cmd.Flags().Int64Var(&flavor.EphemeralGB, "ephemeral-gb", 0, "Target flavor ephemeral disk in GiB")
	return cmd
}
