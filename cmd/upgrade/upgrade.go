// Package upgrade implements the CSV-driven bulk submission commands:
// `upgrade`, `upgrade-ha-pairs`, `download`, `download-ha-pairs`. These
// mirror the original CLI's `download queue-all` bulk path, one job per
// device (or one job per HA pair), never one job spanning many devices.
package upgrade

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/natej/panos-upgrade/cmd/cmdctx"
	"github.com/natej/panos-upgrade/internal/fsstore"
	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/internal/pathtable"
	"github.com/paularlott/cli"
)

// Commands returns the top-level upgrade and download bulk commands.
func Commands() []*cli.Command {
	return []*cli.Command{
		UpgradeCommand(),
		UpgradeHAPairsCommand(),
		DownloadCommand(),
		DownloadHAPairsCommand(),
	}
}

type summary struct {
	queued             int
	skippedNoPath      int
	skippedExistingJob int
	errors             int
}

func (s summary) print() {
	fmt.Printf("Queued: %d\n", s.queued)
	if s.skippedNoPath > 0 {
		fmt.Printf("Skipped (no upgrade path): %d\n", s.skippedNoPath)
	}
	if s.skippedExistingJob > 0 {
		fmt.Printf("Skipped (existing job): %d\n", s.skippedExistingJob)
	}
	if s.errors > 0 {
		fmt.Printf("Errors: %d\n", s.errors)
	}
}

// readSerialRows reads a one-or-two-column CSV of device serials. Each
// row is either "serial" (standalone) or "serial_a,serial_b" (HA pair).
func readSerialRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if len(record) == 0 {
			continue
		}
		trimmed := strings.TrimSpace(record[0])
		if trimmed == "" || strings.EqualFold(trimmed, "serial") || strings.EqualFold(trimmed, "serial_a") {
			continue // blank line or header row
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func hasActiveOrPendingJob(cfgDir func(string) string, serial string) bool {
	for _, dir := range []string{"pending", "active"} {
		entries, err := fsstore.ListJSONFiles(cfgDir(dir))
		if err != nil {
			continue
		}
		for _, e := range entries {
			var job model.Job
			if err := fsstore.ReadJSON(e.Path, &job); err != nil {
				continue
			}
			for _, d := range job.Devices {
				if d == serial {
					return true
				}
			}
		}
	}
	return false
}

func submitJob(cfg interface{ QueueDir(string) string }, jobType model.JobType, devices []string, dryRun bool) (string, error) {
	jobID := "bulk-" + uuid.NewString()
	job := model.Job{
		JobID:     jobID,
		Type:      jobType,
		Devices:   devices,
		DryRun:    dryRun,
		CreatedAt: time.Now().UTC(),
	}
	if len(devices) == 2 {
		job.HAPairName = devices[0] + "-" + devices[1]
	}
	path := cfg.QueueDir("pending") + "/" + jobID + ".json"
	return jobID, fsstore.WriteJSON(path, job)
}

func UpgradeCommand() *cli.Command {
	return &cli.Command{
		Name:        "upgrade",
		Usage:       "Submit upgrade jobs for every device serial in CSV",
		Description: "One standalone upgrade job per row; rows with no known upgrade path or an existing job are skipped",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "csv", Required: true},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Mark every queued job as a dry run"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			return runBulk(cmd, model.JobStandalone, 1)
		},
	}
}

func DownloadCommand() *cli.Command {
	return &cli.Command{
		Name:        "download",
		Usage:       "Submit download-only jobs for every device serial in CSV",
		Description: "Like `upgrade`, but the queued jobs only download images, skipping install/reboot; hashes are verified only when validation.verify_hashes is on and the device reports one",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "csv", Required: true},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Mark every queued job as a dry run"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			return runBulk(cmd, model.JobDownloadOnly, 1)
		},
	}
}

func UpgradeHAPairsCommand() *cli.Command {
	return &cli.Command{
		Name:        "upgrade-ha-pairs",
		Usage:       "Submit HA-pair upgrade jobs for every pair in CSV",
		Description: "CSV rows are serial_a,serial_b; one ha_pair job per row, passive member upgraded first",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "csv", Required: true},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Mark every queued job as a dry run"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			return runBulk(cmd, model.JobHAPair, 2)
		},
	}
}

func DownloadHAPairsCommand() *cli.Command {
	return &cli.Command{
		Name:        "download-ha-pairs",
		Usage:       "Submit download-only HA-pair jobs for every pair in CSV",
		Description: "Like `upgrade-ha-pairs`, but skips install/reboot on both members",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "csv", Required: true},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Mark every queued job as a dry run"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			return runBulk(cmd, model.JobDownloadOnlyHA, 2)
		},
	}
}

// runBulk is shared by all four commands: load the CSV and the upgrade
// paths table, then queue one job per row, skipping rows with no path
// from their devices' current version or a pending or active job.
func runBulk(cmd *cli.Command, jobType model.JobType, devicesPerRow int) error {
	cfg, err := cmdctx.Load(cmd.GetString(cmdctx.WorkDirFlagName))
	if err != nil {
		return err
	}
	csvPath := cmd.GetStringArg("csv")
	dryRun := cmd.GetBool("dry-run")

	rows, err := readSerialRows(csvPath)
	if err != nil {
		return err
	}

	var doc model.InventoryDocument
	if err := fsstore.ReadJSONOrDefault(cfg.InventoryPath(), &doc); err != nil {
		return fmt.Errorf("reading inventory: %w", err)
	}
	paths, err := pathtable.Load(cfg.UpgradePathsPath())
	if err != nil {
		return fmt.Errorf("reading upgrade paths: %w", err)
	}

	var s summary
	for _, row := range rows {
		if len(row) < devicesPerRow {
			fmt.Printf("Skipping malformed row %v: expected %d serial(s)\n", row, devicesPerRow)
			s.errors++
			continue
		}
		devices := row[:devicesPerRow]

		skip := false
		for _, serial := range devices {
			dev, ok := doc.Devices[serial]
			if !ok {
				fmt.Printf("Skipping %s: not in inventory\n", serial)
				s.errors++
				skip = true
				break
			}
			if _, ok := paths.Plan(dev.CurrentVersion); !ok {
				fmt.Printf("Skipping %s: no upgrade path from %s\n", serial, dev.CurrentVersion)
				s.skippedNoPath++
				skip = true
				break
			}
			if hasActiveOrPendingJob(cfg.QueueDir, serial) {
				fmt.Printf("Skipping %s: already has a pending or active job\n", serial)
				s.skippedExistingJob++
				skip = true
				break
			}
		}
		if skip {
			continue
		}

		jobID, err := submitJob(cfg, jobType, devices, dryRun)
		if err != nil {
			fmt.Printf("Error queuing %v: %v\n", devices, err)
			s.errors++
			continue
		}
		fmt.Printf("Queued %s for %v: %s\n", jobType, devices, jobID)
		s.queued++
	}

	s.print()
	return nil
}
