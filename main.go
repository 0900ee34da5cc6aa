package main

import (
	"context"
	"fmt"
	"os"

	"github.com/natej/panos-upgrade/cmd/cmdctx"
	cmddaemon "github.com/natej/panos-upgrade/cmd/daemon"
	cmddevice "github.com/natej/panos-upgrade/cmd/device"
	cmdjob "github.com/natej/panos-upgrade/cmd/job"
	cmdpath "github.com/natej/panos-upgrade/cmd/path"
	cmdupgrade "github.com/natej/panos-upgrade/cmd/upgrade"
	cliconfig "github.com/natej/panos-upgrade/cmd/config"
	"github.com/paularlott/cli"
)

// group wraps a flat subcommand slice in a named parent, the way the
// original Click CLI nests `job submit`, `device status`, etc under
// their respective groups.
func group(name, usage string, commands []*cli.Command) *cli.Command {
	return &cli.Command{
		Name:     name,
		Usage:    usage,
		Commands: commands,
	}
}

func main() {
	commands := []*cli.Command{
		group("daemon", "Manage the upgrade daemon process", cmddaemon.Commands()),
		group("job", "Submit and manage upgrade jobs", cmdjob.Commands()),
		group("device", "Inspect and validate fleet devices", cmddevice.Commands()),
		group("config", "Read and write daemon configuration", cliconfig.Commands()),
		group("path", "Inspect the upgrade-path table and bootstrap the work directory", cmdpath.Commands()),
	}
	commands = append(commands, cmdupgrade.Commands()...)

	root := &cli.Command{
		Name:        "panos-upgrade",
		Usage:       "Orchestrate PAN-OS firmware upgrades across the fleet",
		Description: "A file-system-based control plane for staged, HA-aware PAN-OS upgrades",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: cmdctx.WorkDirFlagName, Usage: "Work directory root (overrides PANOS_UPGRADE_HOME and the user config file)"},
		},
		Commands: commands,
	}

	ctx := context.Background()
	if err := root.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
