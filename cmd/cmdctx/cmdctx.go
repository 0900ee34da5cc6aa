// Package cmdctx resolves the work directory and loads configuration once
// per CLI invocation, mirroring the root group's ctx.obj setup in the
// original Click-based CLI.
package cmdctx

import (
	"github.com/natej/panos-upgrade/internal/config"
	"github.com/natej/panos-upgrade/internal/log"
)

// WorkDirFlagName is the global flag every subcommand reads to resolve
// work_dir before loading its Config.
const WorkDirFlagName = "work-dir"

// Load resolves work_dir (CLI flag > PANOS_UPGRADE_HOME > user config file
// > default), configures logging against it, and loads the daemon config.
func Load(cliWorkDir string) (*config.Config, error) {
	resolution := config.ResolveWorkDir(cliWorkDir)

	cfg, err := config.Load(resolution.Path)
	if err != nil {
		return nil, err
	}

	log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.WorkDir)
	log.Info("work directory resolved", "path", resolution.Path, "source", string(resolution.Source))
	return cfg, nil
}
