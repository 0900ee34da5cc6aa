package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/natej/panos-upgrade/internal/fsstore"
)

// Source identifies which step of the resolution chain produced a
// WorkDirResolution, for the "work directory resolved" log line.
type Source string

const (
	SourceCLIFlag Source = "from --work-dir flag"
	SourceEnvVar  Source = "from PANOS_UPGRADE_HOME environment variable"
	SourceUserCfg Source = "from ~/.panos-upgrade.config.json"
	SourceDefault Source = "default"
)

// EnvVarName is the environment variable consulted ahead of the user
// config file.
const EnvVarName = "PANOS_UPGRADE_HOME"

// DefaultWorkDir is used when no flag, env var, or user config resolves.
const DefaultWorkDir = "/opt/panos-upgrade"

const userConfigFileName = ".panos-upgrade.config.json"

// WorkDirResolution is the outcome of resolving work_dir, carrying enough
// to log where it came from.
type WorkDirResolution struct {
	Path   string
	Source Source
}

func (r WorkDirResolution) String() string {
	return r.Path + " (" + string(r.Source) + ")"
}

type userConfigFile struct {
	WorkDir   string    `json:"work_dir"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}

func userConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, userConfigFileName), nil
}

// ResolveWorkDir implements the priority chain in spec §6: CLI flag, then
// PANOS_UPGRADE_HOME, then the user config file, then the hard default.
func ResolveWorkDir(cliFlag string) WorkDirResolution {
	if cliFlag != "" {
		return WorkDirResolution{Path: absOrSelf(cliFlag), Source: SourceCLIFlag}
	}
	if env := os.Getenv(EnvVarName); env != "" {
		return WorkDirResolution{Path: absOrSelf(env), Source: SourceEnvVar}
	}
	if path, err := userConfigPath(); err == nil {
		var uc userConfigFile
		if err := fsstore.ReadJSON(path, &uc); err == nil && uc.WorkDir != "" {
			return WorkDirResolution{Path: uc.WorkDir, Source: SourceUserCfg}
		}
	}
	return WorkDirResolution{Path: DefaultWorkDir, Source: SourceDefault}
}

func absOrSelf(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// WriteUserConfig persists workDir to ~/.panos-upgrade.config.json so that
// future invocations resolve it without repeating the flag or env var.
// Grounded on original_source/work_dir_resolver.py's write_user_config.
func WriteUserConfig(workDir string) (string, error) {
	path, err := userConfigPath()
	if err != nil {
		return "", err
	}
	doc := userConfigFile{
		WorkDir:   workDir,
		CreatedAt: time.Now().UTC(),
		CreatedBy: "panos-upgrade path init",
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	if err := fsstore.WriteFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}
