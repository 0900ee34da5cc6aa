// Package path implements the `path` subcommand group: show, validate,
// and the supplemented init command that bootstraps a user config file.
package path

import (
	"context"
	"fmt"

	"github.com/natej/panos-upgrade/cmd/cmdctx"
	"github.com/natej/panos-upgrade/internal/config"
	"github.com/natej/panos-upgrade/internal/fsstore"
	"github.com/natej/panos-upgrade/internal/pathtable"
	"github.com/paularlott/cli"
)

// Commands returns the `path` subcommand group: show, validate, init.
func Commands() []*cli.Command {
	return []*cli.Command{
		ShowCommand(),
		ValidateCommand(),
		InitCommand(),
	}
}

func ShowCommand() *cli.Command {
	return &cli.Command{
		Name:        "show",
		Usage:       "Show the upgrade-path table",
		Description: "Print config/upgrade_paths.json, or the sequence for one source version when given",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "from_version"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := cmdctx.Load(cmd.GetString(cmdctx.WorkDirFlagName))
			if err != nil {
				return err
			}
			paths, err := pathtable.Load(cfg.UpgradePathsPath())
			if err != nil {
				return err
			}

			if from := cmd.GetStringArg("from_version"); from != "" {
				sequence, ok := paths.Plan(from)
				if !ok {
					return fmt.Errorf("no upgrade path defined from %s", from)
				}
				fmt.Printf("%s -> %v\n", from, sequence)
				return nil
			}

			var raw map[string][]string
			if err := fsstore.ReadJSONOrDefault(cfg.UpgradePathsPath(), &raw); err != nil {
				return err
			}
			for from, sequence := range raw {
				fmt.Printf("%s -> %v\n", from, sequence)
			}
			return nil
		},
	}
}

func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:        "validate",
		Usage:       "Validate the upgrade-path table",
		Description: "Check every path is non-empty, has no empty hop, and never repeats the preceding version (starting from the source version); versions are not parsed and their order is not checked",
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := cmdctx.Load(cmd.GetString(cmdctx.WorkDirFlagName))
			if err != nil {
				return err
			}

			var raw map[string][]string
			if err := fsstore.ReadJSONOrDefault(cfg.UpgradePathsPath(), &raw); err != nil {
				return fmt.Errorf("reading upgrade paths: %w", err)
			}

			problems := 0
			for from, sequence := range raw {
				if len(sequence) == 0 {
					fmt.Printf("INVALID %s: empty path\n", from)
					problems++
					continue
				}
				prev := from
				for _, hop := range sequence {
					if hop == "" {
						fmt.Printf("INVALID %s: empty hop in %v\n", from, sequence)
						problems++
						break
					}
					if hop == prev {
						fmt.Printf("INVALID %s: repeated version %s in %v\n", from, hop, sequence)
						problems++
						break
					}
					prev = hop
				}
			}

			if problems == 0 {
				fmt.Printf("OK: %d upgrade paths validated\n", len(raw))
				return nil
			}
			return fmt.Errorf("%d invalid upgrade path(s)", problems)
		},
	}
}

func InitCommand() *cli.Command {
	return &cli.Command{
		Name:        "init",
		Usage:       "Bootstrap a work directory and remember it",
		Description: "Create the directory layout under --work-dir and write ~/.panos-upgrade.config.json so future invocations don't need the flag",
		Run: func(ctx context.Context, cmd *cli.Command) error {
			resolution := config.ResolveWorkDir(cmd.GetString(cmdctx.WorkDirFlagName))
			if _, err := config.Load(resolution.Path); err != nil {
				return fmt.Errorf("initializing %s: %w", resolution.Path, err)
			}

			userCfgPath, err := config.WriteUserConfig(resolution.Path)
			if err != nil {
				return fmt.Errorf("writing user config: %w", err)
			}

			fmt.Printf("Initialized work directory: %s\n", resolution.Path)
			fmt.Printf("Remembered in: %s\n", userCfgPath)
			return nil
		},
	}
}
