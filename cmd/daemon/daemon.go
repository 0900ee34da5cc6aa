package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/natej/panos-upgrade/cmd/cmdctx"
	"github.com/natej/panos-upgrade/internal/cliout"
	"github.com/natej/panos-upgrade/internal/daemon"
	"github.com/natej/panos-upgrade/internal/fsstore"
	"github.com/natej/panos-upgrade/internal/log"
	"github.com/paularlott/cli"
)

// Commands returns the `daemon` subcommand group: start, stop, restart,
// status.
func Commands() []*cli.Command {
	return []*cli.Command{
		StartCommand(),
		StopCommand(),
		RestartCommand(),
		StatusCommand(),
	}
}

func StartCommand() *cli.Command {
	return &cli.Command{
		Name:        "start",
		Usage:       "Start the upgrade daemon",
		Description: "Run the daemon in the foreground: job intake, command intake, worker pool, status writer",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "workers", Usage: "Override the configured number of worker goroutines"},
			&cli.IntFlag{Name: "shutdown-deadline-seconds", Usage: "Seconds to wait for in-flight workflows to stop after they are signalled to cancel", DefaultValue: 30},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := cmdctx.Load(cmd.GetString(cmdctx.WorkDirFlagName))
			if err != nil {
				return err
			}
			if n := cmd.GetInt("workers"); n > 0 {
				cfg.Workers.Max = n
			}

			d, err := daemon.New(cfg, nil)
			if err != nil {
				return fmt.Errorf("starting daemon: %w", err)
			}

			deadline := time.Duration(cmd.GetInt("shutdown-deadline-seconds")) * time.Second
			fmt.Printf("Starting PAN-OS upgrade daemon with %d workers...\n", cfg.Workers.Max)
			return d.Run(ctx, deadline)
		},
	}
}

func StopCommand() *cli.Command {
	return &cli.Command{
		Name:        "stop",
		Usage:       "Stop the upgrade daemon",
		Description: "The daemon has no supervisor of its own: send it SIGTERM/SIGINT directly",
		Run: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Println("Stopping PAN-OS upgrade daemon...")
			fmt.Println("Send SIGTERM/SIGINT to the running process, or: pkill -f 'panos-upgrade daemon start'")
			return nil
		},
	}
}

func RestartCommand() *cli.Command {
	return &cli.Command{
		Name:        "restart",
		Usage:       "Restart the upgrade daemon",
		Description: "Print guidance for restarting the daemon through a process supervisor; this command does not stop or start the daemon itself",
		Run: func(ctx context.Context, cmd *cli.Command) error {
			log.Info("daemon restart requested")
			fmt.Println("Restart the daemon process via your process supervisor (systemd, etc).")
			return nil
		},
	}
}

func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:        "status",
		Usage:       "Show daemon status",
		Description: "Read status/daemon.json and status/workers.json",
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := cmdctx.Load(cmd.GetString(cmdctx.WorkDirFlagName))
			if err != nil {
				return err
			}

			var ds struct {
				Running       bool      `json:"running"`
				Workers       int       `json:"workers"`
				ActiveJobs    int       `json:"active_jobs"`
				PendingJobs   int       `json:"pending_jobs"`
				CompletedJobs int       `json:"completed_jobs"`
				FailedJobs    int       `json:"failed_jobs"`
				CancelledJobs int       `json:"cancelled_jobs"`
				StartedAt     time.Time `json:"started_at"`
				LastUpdated   time.Time `json:"last_updated"`
			}
			if err := fsstore.ReadJSON(cfg.DaemonStatusPath(), &ds); err != nil {
				fmt.Println("Daemon Status: Not running or status file not found")
				fmt.Printf("  Expected status file: %s\n", cfg.DaemonStatusPath())
				return nil
			}

			fmt.Println("Daemon Status:")
			fmt.Printf("  Running: %v\n", ds.Running)
			fmt.Printf("  Workers: %d\n", ds.Workers)
			fmt.Printf("  Active Jobs: %d\n", ds.ActiveJobs)
			fmt.Printf("  Pending Jobs: %d\n", ds.PendingJobs)
			fmt.Printf("  Completed Jobs: %d\n", ds.CompletedJobs)
			fmt.Printf("  Failed Jobs: %d\n", ds.FailedJobs)
			fmt.Printf("  Cancelled Jobs: %d\n", ds.CancelledJobs)
			fmt.Printf("  Started At: %s\n", cliout.Relative(ds.StartedAt))
			fmt.Printf("  Last Updated: %s\n", cliout.Relative(ds.LastUpdated))
			return nil
		},
	}
}
