// Package config implements the `config` subcommand group: set and show,
// backed by internal/config's dot-notation accessors.
package config

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/natej/panos-upgrade/cmd/cmdctx"
	"github.com/natej/panos-upgrade/internal/config"
	"github.com/paularlott/cli"
)

// Commands returns the `config` subcommand group: set, show.
func Commands() []*cli.Command {
	return []*cli.Command{
		SetCommand(),
		ShowCommand(),
	}
}

func SetCommand() *cli.Command {
	return &cli.Command{
		Name:        "set",
		Usage:       "Set a configuration value",
		Description: "Set a dot-notation key (e.g. validation.min_disk_gb) and persist config/config.json",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "key", Required: true},
			&cli.StringArg{Name: "value", Required: true},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := cmdctx.Load(cmd.GetString(cmdctx.WorkDirFlagName))
			if err != nil {
				return err
			}
			key := cmd.GetStringArg("key")
			value := cmd.GetStringArg("value")

			if err := config.Set(cfg, key, value); err != nil {
				return err
			}
			fmt.Printf("Set %s = %s\n", key, value)
			return nil
		},
	}
}

func ShowCommand() *cli.Command {
	return &cli.Command{
		Name:        "show",
		Usage:       "Show configuration",
		Description: "Print config/config.json, or a single dot-notation key when given",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "key"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := cmdctx.Load(cmd.GetString(cmdctx.WorkDirFlagName))
			if err != nil {
				return err
			}

			if key := cmd.GetStringArg("key"); key != "" {
				value, err := config.Get(cfg, key)
				if err != nil {
					return err
				}
				data, _ := json.MarshalIndent(value, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
