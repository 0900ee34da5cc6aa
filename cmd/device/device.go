package device

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/natej/panos-upgrade/cmd/cmdctx"
	"github.com/natej/panos-upgrade/internal/cliout"
	"github.com/natej/panos-upgrade/internal/fsstore"
	"github.com/natej/panos-upgrade/internal/model"
	"github.com/paularlott/cli"
)

// Commands returns the `device` subcommand group: list, status, validate,
// metrics, discover, export.
func Commands() []*cli.Command {
	return []*cli.Command{
		ListCommand(),
		StatusCommand(),
		ValidateCommand(),
		MetricsCommand(),
		DiscoverCommand(),
		ExportCommand(),
	}
}

func ListCommand() *cli.Command {
	return &cli.Command{
		Name:        "list",
		Usage:       "List devices",
		Description: "List every device in devices/inventory.json",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "ha-pairs", Usage: "Show only devices that are part of an HA pair"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := cmdctx.Load(cmd.GetString(cmdctx.WorkDirFlagName))
			if err != nil {
				return err
			}

			var doc model.InventoryDocument
			if err := fsstore.ReadJSONOrDefault(cfg.InventoryPath(), &doc); err != nil {
				return fmt.Errorf("reading inventory: %w", err)
			}

			devices := make([]model.Device, 0, len(doc.Devices))
			for _, d := range doc.Devices {
				if cmd.GetBool("ha-pairs") && d.DeviceType != model.DeviceHAPair {
					continue
				}
				devices = append(devices, d)
			}
			sort.Slice(devices, func(i, j int) bool { return devices[i].Serial < devices[j].Serial })

			if len(devices) == 0 {
				fmt.Println("No devices found")
				return nil
			}
			for _, d := range devices {
				fmt.Printf("%s\t%s\t%s\t%s\t%s\n", d.Serial, d.Hostname, d.MgmtIP, d.CurrentVersion, d.DeviceType)
			}
			return nil
		},
	}
}

func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:        "status",
		Usage:       "Show device status",
		Description: "Read status/devices/{serial}.json",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "serial", Required: true},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := cmdctx.Load(cmd.GetString(cmdctx.WorkDirFlagName))
			if err != nil {
				return err
			}
			serial := cmd.GetStringArg("serial")

			var st model.DeviceStatus
			if err := fsstore.ReadJSON(cfg.DeviceStatusPath(serial), &st); err != nil {
				fmt.Printf("No status recorded yet for device: %s\n", serial)
				return nil
			}

			fmt.Printf("Device: %s (%s)\n", st.Serial, st.Hostname)
			fmt.Printf("  Status: %s\n", cliout.Status(string(st.UpgradeStatus)))
			fmt.Printf("  Phase: %s (%d%%)\n", cliout.Status(string(st.CurrentPhase)), st.Progress)
			fmt.Printf("  Version: %s -> %s (target %s)\n", st.StartingVersion, st.CurrentVersion, st.TargetVersion)
			fmt.Printf("  Path: %v (position %d)\n", st.UpgradePath, st.CurrentPathIndex)
			if st.UpgradeMessage != "" {
				fmt.Printf("  Message: %s\n", st.UpgradeMessage)
			}
			if st.SkipReason != "" {
				fmt.Printf("  Skip reason: %s\n", st.SkipReason)
			}
			if len(st.Errors) > 0 {
				fmt.Println("  Errors:")
				for _, e := range st.Errors {
					fmt.Printf("    [%s] %s: %s\n", e.Timestamp.Format(time.RFC3339), e.Phase, e.Message)
				}
			}
			fmt.Printf("  Last updated: %s\n", cliout.Relative(st.LastUpdated))
			return nil
		},
	}
}

func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:        "validate",
		Usage:       "Validate device readiness for upgrade",
		Description: "Check the device appears in inventory with a management IP and has a known upgrade path",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "serial", Required: true},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := cmdctx.Load(cmd.GetString(cmdctx.WorkDirFlagName))
			if err != nil {
				return err
			}
			serial := cmd.GetStringArg("serial")

			var doc model.InventoryDocument
			if err := fsstore.ReadJSONOrDefault(cfg.InventoryPath(), &doc); err != nil {
				return fmt.Errorf("reading inventory: %w", err)
			}
			dev, ok := doc.Devices[serial]
			if !ok {
				return fmt.Errorf("device %s not found in inventory", serial)
			}
			if dev.MgmtIP == "" {
				return fmt.Errorf("device %s has no management IP on file", serial)
			}

			var paths map[string][]string
			if err := fsstore.ReadJSONOrDefault(cfg.UpgradePathsPath(), &paths); err != nil {
				return fmt.Errorf("reading upgrade paths: %w", err)
			}

			fmt.Printf("Validating device: %s\n", serial)
			fmt.Printf("  Inventory: ok (%s, %s)\n", dev.Hostname, dev.MgmtIP)
			if path, ok := paths[dev.CurrentVersion]; ok {
				fmt.Printf("  Upgrade path from %s: %v\n", dev.CurrentVersion, path)
			} else {
				fmt.Printf("  No upgrade path defined from %s; device would be skipped\n", dev.CurrentVersion)
			}
			return nil
		},
	}
}

func MetricsCommand() *cli.Command {
	return &cli.Command{
		Name:        "metrics",
		Usage:       "Show device metrics",
		Description: "Read the most recent pre-flight or post-flight validation artifact",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "serial", Required: true},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := cmdctx.Load(cmd.GetString(cmdctx.WorkDirFlagName))
			if err != nil {
				return err
			}
			serial := cmd.GetStringArg("serial")

			var artifact model.PreFlightArtifact
			var post model.PostFlightArtifact
			path := cfg.ValidationPostDir() + "/" + serial + ".json"
			if err := fsstore.ReadJSON(path, &post); err == nil && post.PostFlight.Serial != "" {
				artifact = post.PostFlight
			} else {
				path = cfg.ValidationPreDir() + "/" + serial + ".json"
				if err := fsstore.ReadJSON(path, &artifact); err != nil {
					fmt.Printf("No metrics recorded yet for device: %s\n", serial)
					return nil
				}
			}

			fmt.Printf("Metrics for device: %s\n", serial)
			fmt.Printf("  Collected at: %s\n", artifact.Timestamp)
			fmt.Printf("  TCP sessions: %d\n", artifact.TCPSessions)
			fmt.Printf("  Routes: %d\n", artifact.RouteCount)
			fmt.Printf("  ARP entries: %d\n", artifact.ARPCount)
			fmt.Printf("  Disk available: %.1f GB\n", artifact.DiskAvailableGB)
			return nil
		},
	}
}

func DiscoverCommand() *cli.Command {
	return &cli.Command{
		Name:        "discover",
		Usage:       "Refresh the device inventory from disk",
		Description: "Re-read devices/inventory.json; discovery against an external collaborator is out of scope (spec Non-goals)",
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := cmdctx.Load(cmd.GetString(cmdctx.WorkDirFlagName))
			if err != nil {
				return err
			}
			var doc model.InventoryDocument
			if err := fsstore.ReadJSONOrDefault(cfg.InventoryPath(), &doc); err != nil {
				return fmt.Errorf("reading inventory: %w", err)
			}
			fmt.Printf("Inventory loaded: %d devices\n", len(doc.Devices))
			fmt.Printf("Last updated: %s\n", doc.LastUpdated)
			fmt.Println("Discovery against Panorama is performed by an external collaborator; this command only reloads its output.")
			return nil
		},
	}
}

func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:        "export",
		Usage:       "Export the device inventory as CSV",
		Description: "Print serial,hostname,mgmt_ip,current_version,device_type,ha_state for every inventoried device",
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := cmdctx.Load(cmd.GetString(cmdctx.WorkDirFlagName))
			if err != nil {
				return err
			}
			var doc model.InventoryDocument
			if err := fsstore.ReadJSONOrDefault(cfg.InventoryPath(), &doc); err != nil {
				return fmt.Errorf("reading inventory: %w", err)
			}

			devices := make([]model.Device, 0, len(doc.Devices))
			for _, d := range doc.Devices {
				devices = append(devices, d)
			}
			sort.Slice(devices, func(i, j int) bool { return devices[i].Serial < devices[j].Serial })

			fmt.Println("serial,hostname,mgmt_ip,current_version,device_type,ha_state")
			for _, d := range devices {
				fmt.Printf("%s,%s,%s,%s,%s,%s\n", d.Serial, d.Hostname, d.MgmtIP, d.CurrentVersion, d.DeviceType, d.HAState)
			}
			return nil
		},
	}
}
