package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dockervirt/dockervirt/internal/config"
	"github.com/dockervirt/dockervirt/internal/docker"
	"github.com/dockervirt/dockervirt/internal/driver"
	"github.com/dockervirt/dockervirt/internal/log"
	"github.com/dockervirt/dockervirt/internal/network"
	"github.com/dockervirt/dockervirt/internal/sshexec"
)

const defaultConfigPath = "/etc/dockervirt/config.yaml"

func main() {
	log.InitFromEnv()

	var configPath string
	cmd := &cobra.Command{
		Use:           "dockervirtd",
		Short:         "VM lifecycle driver backed by a container engine.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to the driver configuration file")
	_ = cmd.MarkFlagFilename("config", "yaml", "yml")

	cmd.AddCommand(
		newCheckCommand(&configPath),
		newListCommand(&configPath),
		newResourcesCommand(&configPath),
		newSpawnCommand(&configPath),
		newDestroyCommand(&configPath),
		newRebootCommand(&configPath),
		newPowerOnCommand(&configPath),
		newPowerOffCommand(&configPath),
		newPauseCommand(&configPath),
		newUnpauseCommand(&configPath),
		newInfoCommand(&configPath),
		newConsoleCommand(&configPath),
		newSnapshotCommand(&configPath),
		newMigrateCommand(&configPath),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cobra.CheckErr(cmd.ExecuteContext(ctx))
}

// newDriver wires a driver from the configuration file. The veth VIF backend
// and SSH archive transfer are the only host-level collaborators selected
// here; an external image store is not wired into the CLI.
func newDriver(configPath string) (*driver.Driver, error) {
	cfg, err := config.NewFromFile(configPath)
	if err != nil {
		return nil, err
	}
	engine, err := docker.NewClient(cfg.Endpoint, cfg.APIVersion, cfg.APITimeout)
	if err != nil {
		return nil, fmt.Errorf("create engine client: %w", err)
	}

	vif := network.NewVethDriver(cfg.NetnsDir)
	ns := network.NewNetnsDir(cfg.NetnsDir)
	transfer := &sshexec.Transfer{User: cfg.SSHUser, KeyFile: cfg.SSHKeyFile}

	return driver.New(cfg, engine, vif, ns, nil, transfer), nil
}
