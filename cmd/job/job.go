package job

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/natej/panos-upgrade/cmd/cmdctx"
	"github.com/natej/panos-upgrade/internal/cliout"
	"github.com/natej/panos-upgrade/internal/fsstore"
	"github.com/natej/panos-upgrade/internal/model"
	"github.com/paularlott/cli"
)

// Commands returns the `job` subcommand group: submit, list, status,
// cancel.
func Commands() []*cli.Command {
	return []*cli.Command{
		SubmitCommand(),
		ListCommand(),
		StatusCommand(),
		CancelCommand(),
	}
}

func SubmitCommand() *cli.Command {
	return &cli.Command{
		Name:        "submit",
		Usage:       "Submit an upgrade job",
		Description: "Write a job descriptor to queue/pending for the daemon to pick up",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "device", Usage: "Device serial number"},
			&cli.StringFlag{Name: "ha-pair", Usage: "Second device serial, for an HA-pair job alongside --device"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Perform a dry run without mutating device calls"},
			&cli.BoolFlag{Name: "download-only", Usage: "Download images only, skip install/reboot"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := cmdctx.Load(cmd.GetString(cmdctx.WorkDirFlagName))
			if err != nil {
				return err
			}

			device := cmd.GetString("device")
			haPair := cmd.GetString("ha-pair")
			if device == "" {
				return fmt.Errorf("must specify --device (optionally with --ha-pair for the second member)")
			}

			devices := []string{device}
			jobType := model.JobStandalone
			if cmd.GetBool("download-only") {
				jobType = model.JobDownloadOnly
			}
			if haPair != "" {
				devices = append(devices, haPair)
				jobType = model.JobHAPair
				if cmd.GetBool("download-only") {
					jobType = model.JobDownloadOnlyHA
				}
			}

			if conflict, err := checkExisting(cfg, devices, jobType); err != nil {
				return err
			} else if conflict != "" {
				return fmt.Errorf("%s\nUse 'panos-upgrade job cancel %s' to cancel it first", conflict, conflict)
			}

			jobID := "cli-" + uuid.NewString()
			job := model.Job{
				JobID:     jobID,
				Type:      jobType,
				Devices:   devices,
				DryRun:    cmd.GetBool("dry-run"),
				CreatedAt: time.Now().UTC(),
			}
			if haPair != "" {
				job.HAPairName = device + "-" + haPair
			}

			path := cfg.QueueDir("pending") + "/" + jobID + ".json"
			if err := fsstore.WriteJSON(path, job); err != nil {
				return fmt.Errorf("submitting job: %w", err)
			}

			fmt.Printf("Submitting %s job for device(s): %v\n", jobType, devices)
			if job.DryRun {
				fmt.Println("  Mode: DRY RUN")
			}
			fmt.Printf("  Job ID: %s\n", jobID)
			fmt.Println("  Status: Queued")
			fmt.Printf("\nMonitor with: panos-upgrade device status %s\n", device)
			return nil
		},
	}
}

// checkExisting implements the Duplicate-Job Guard at submission time, the
// same rule the daemon's Job Intake enforces, so an operator gets an
// immediate answer instead of a silent rejection later.
func checkExisting(cfgPathFn interface {
	QueueDir(string) string
}, devices []string, jobType model.JobType) (conflict string, err error) {
	for _, dir := range []string{"pending", "active"} {
		entries, err := fsstore.ListJSONFiles(cfgPathFn.QueueDir(dir))
		if err != nil {
			continue
		}
		for _, e := range entries {
			var existing model.Job
			if err := fsstore.ReadJSON(e.Path, &existing); err != nil {
				continue
			}
			for _, serial := range devices {
				if !contains(existing.Devices, serial) {
					continue
				}
				if existing.Type.IsDownloadOnly() != jobType.IsDownloadOnly() {
					return fmt.Sprintf("Error: device %s has job %s of a conflicting type (%s); cannot mix download-only and normal upgrades", serial, existing.JobID, existing.Type), nil
				}
				return fmt.Sprintf("Error: device %s already has job %s %s", serial, existing.JobID, dir), nil
			}
		}
	}
	return "", nil
}

func contains(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

func ListCommand() *cli.Command {
	return &cli.Command{
		Name:        "list",
		Usage:       "List upgrade jobs",
		Description: "List job descriptors across the queue directories, optionally filtered by status",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Usage: "Filter by status: pending, active, completed, failed, cancelled"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := cmdctx.Load(cmd.GetString(cmdctx.WorkDirFlagName))
			if err != nil {
				return err
			}

			statuses := []string{"pending", "active", "completed", "failed", "cancelled"}
			if filter := cmd.GetString("status"); filter != "" {
				statuses = []string{filter}
			}

			total := 0
			for _, status := range statuses {
				entries, err := fsstore.ListJSONFiles(cfg.QueueDir(status))
				if err != nil {
					continue
				}
				for _, e := range entries {
					var job model.Job
					if err := fsstore.ReadJSON(e.Path, &job); err != nil {
						continue
					}
					fmt.Printf("%s\t%s\t%s\t%v\n", job.JobID, cliout.Status(status), job.Type, job.Devices)
					total++
				}
			}
			if total == 0 {
				fmt.Println("No jobs found")
			}
			return nil
		},
	}
}

func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:        "status",
		Usage:       "Show job status",
		Description: "Locate a job descriptor by ID across the queue directories",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "job_id"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := cmdctx.Load(cmd.GetString(cmdctx.WorkDirFlagName))
			if err != nil {
				return err
			}
			jobID := cmd.GetStringArg("job_id")

			for _, status := range []string{"pending", "active", "completed", "failed", "cancelled"} {
				path := cfg.QueueDir(status) + "/" + jobID + ".json"
				var job model.Job
				if err := fsstore.ReadJSON(path, &job); err == nil {
					fmt.Printf("Job: %s\n", job.JobID)
					fmt.Printf("  Status: %s\n", cliout.Status(status))
					fmt.Printf("  Type: %s\n", job.Type)
					fmt.Printf("  Devices: %v\n", job.Devices)
					fmt.Printf("  Dry run: %v\n", job.DryRun)
					fmt.Printf("  Created: %s\n", cliout.Relative(job.CreatedAt))
					return nil
				}
			}
			return fmt.Errorf("job %s not found in any queue", jobID)
		},
	}
}

func CancelCommand() *cli.Command {
	return &cli.Command{
		Name:        "cancel",
		Usage:       "Cancel an upgrade job",
		Description: "Write a cancel_upgrade command descriptor to commands/incoming",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "job_id"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "reason", Usage: "Reason recorded alongside the cancellation"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := cmdctx.Load(cmd.GetString(cmdctx.WorkDirFlagName))
			if err != nil {
				return err
			}
			jobID := cmd.GetStringArg("job_id")

			command := model.Command{
				Command:   "cancel_upgrade",
				Target:    model.CommandTargetJob,
				JobID:     jobID,
				Reason:    cmd.GetString("reason"),
				Timestamp: time.Now().UTC(),
			}
			path := cfg.CommandsIncomingDir() + "/cancel-" + uuid.NewString() + ".json"
			if err := fsstore.WriteJSON(path, command); err != nil {
				return fmt.Errorf("submitting cancellation: %w", err)
			}

			fmt.Printf("Cancelling job: %s\n", jobID)
			return nil
		},
	}
}
