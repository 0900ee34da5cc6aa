// Package config resolves the work directory and loads/saves the daemon's
// on-disk configuration, following the teacher's (rackd) config.Load
// pattern generalized to the richer section layout of
// original_source/config.py.
package config

import (
	"fmt"

	"github.com/natej/panos-upgrade/internal/fsstore"
)

// Directory layout under work_dir, grounded on original_source/constants.py.
const (
	DirConfig            = "config"
	DirDevices           = "devices"
	DirQueue             = "queue"
	DirQueuePending      = "queue/pending"
	DirQueueActive       = "queue/active"
	DirQueueCompleted    = "queue/completed"
	DirQueueCancelled    = "queue/cancelled"
	DirQueueFailed       = "queue/failed"
	DirCommands          = "commands"
	DirCommandsIncoming  = "commands/incoming"
	DirCommandsProcessed = "commands/processed"
	DirStatus            = "status"
	DirStatusDevices     = "status/devices"
	DirValidation        = "validation"
	DirValidationPre     = "validation/pre_flight"
	DirValidationPost    = "validation/post_flight"
	DirLogs              = "logs"
	DirLogsStructured    = "logs/structured"
	DirLogsText          = "logs/text"
)

// AllDirs is every directory EnsureDirs needs to create under work_dir.
var AllDirs = []string{
	DirConfig, DirDevices,
	DirQueuePending, DirQueueActive, DirQueueCompleted, DirQueueCancelled, DirQueueFailed,
	DirCommandsIncoming, DirCommandsProcessed,
	DirStatusDevices,
	DirValidationPre, DirValidationPost,
	DirLogsStructured, DirLogsText,
}

const (
	InventoryFileName     = "inventory.json"
	UpgradePathsFileName  = "upgrade_paths.json"
	VersionHashesFileName = "version_hashes.json"
	ConfigFileName        = "config.json"
	DaemonStatusFileName  = "daemon.json"
	WorkersStatusFileName = "workers.json"
)

// WorkersConfig bounds the Worker Pool.
type WorkersConfig struct {
	Max       int `json:"max"`
	QueueSize int `json:"queue_size"`
}

// DeviceAPIConfig carries the timeouts and retry budgets §4.4/§6 require
// of any Device-API implementation.
type DeviceAPIConfig struct {
	SoftwareCheckTimeoutSeconds  int `json:"software_check_timeout_seconds"`
	SoftwareInfoTimeoutSeconds   int `json:"software_info_timeout_seconds"`
	JobStallTimeoutSeconds       int `json:"job_stall_timeout_seconds"`
	MaxRebootPollIntervalSeconds int `json:"max_reboot_poll_interval_seconds"`
	RebootWaitTimeoutSeconds     int `json:"reboot_wait_timeout_seconds"`
	DownloadRetryAttempts        int `json:"download_retry_attempts"`
}

// ValidationConfig carries the margins §4.5 compares against and the
// pre-download disk floor.
type ValidationConfig struct {
	TCPSessionMarginPercent float64  `json:"tcp_session_margin_percent"`
	RouteMargin             int      `json:"route_margin"`
	ARPMargin               int      `json:"arp_margin"`
	MinDiskGB               float64  `json:"min_disk_gb"`
	CustomMetrics           []string `json:"custom_metrics,omitempty"`
	VerifyHashes            bool     `json:"verify_hashes"`
}

// DiscoveryConfig holds the retry and rate settings for the (external,
// out-of-scope) discovery endpoint. They are loaded and saved with the
// rest of the configuration; no code in this module reads them.
type DiscoveryConfig struct {
	RetryAttempts     int `json:"retry_attempts"`
	RequestsPerMinute int `json:"requests_per_minute"`
}

// LoggingConfig selects the console/JSON format and level.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Config is the daemon's process-level configuration singleton: read-only
// after `daemon start`, written only via `config set` (which requires a
// restart to take effect).
type Config struct {
	WorkDir               string           `json:"-"`
	Workers               WorkersConfig    `json:"workers"`
	DeviceAPI             DeviceAPIConfig  `json:"device_api"`
	Validation            ValidationConfig `json:"validation"`
	Discovery             DiscoveryConfig  `json:"discovery"`
	Logging               LoggingConfig    `json:"logging"`
	StatusIntervalSeconds int              `json:"status_interval_seconds"`
}

// Default returns the configuration baseline, grounded on
// original_source/constants.py's DEFAULT_* values.
func Default(workDir string) *Config {
	return &Config{
		WorkDir: workDir,
		Workers: WorkersConfig{
			Max:       5,
			QueueSize: 1000,
		},
		DeviceAPI: DeviceAPIConfig{
			SoftwareCheckTimeoutSeconds:  300,
			SoftwareInfoTimeoutSeconds:   60,
			JobStallTimeoutSeconds:       600,
			MaxRebootPollIntervalSeconds: 30,
			RebootWaitTimeoutSeconds:     1800,
			DownloadRetryAttempts:        3,
		},
		Validation: ValidationConfig{
			TCPSessionMarginPercent: 5.0,
			RouteMargin:             0,
			ARPMargin:               0,
			MinDiskGB:               5.0,
			VerifyHashes:            false,
		},
		Discovery: DiscoveryConfig{
			RetryAttempts:     3,
			RequestsPerMinute: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		StatusIntervalSeconds: 5,
	}
}

func configFilePath(workDir string) string {
	return workDir + "/" + DirConfig + "/" + ConfigFileName
}

// Load reads work_dir/config/config.json, falling back to Default and
// persisting it when the file does not yet exist, then ensures the rest
// of the directory layout is present.
func Load(workDir string) (*Config, error) {
	cfg := Default(workDir)
	path := configFilePath(workDir)

	err := fsstore.ReadJSON(path, cfg)
	switch {
	case err == nil:
		cfg.WorkDir = workDir
	case err == fsstore.ErrNotFound:
		if err := Save(cfg); err != nil {
			return nil, fmt.Errorf("config: writing default config: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}

	if err := fsstore.EnsureDirs(workDir, AllDirs); err != nil {
		return nil, fmt.Errorf("config: ensuring directory layout: %w", err)
	}
	return cfg, nil
}

// Save atomically persists cfg to work_dir/config/config.json.
func Save(cfg *Config) error {
	return fsstore.WriteJSON(configFilePath(cfg.WorkDir), cfg)
}

// InventoryPath, UpgradePathsPath, VersionHashesPath and the status/queue
// helpers below are the well-known file locations under work_dir used
// throughout the core.
func (c *Config) InventoryPath() string     { return c.WorkDir + "/" + DirDevices + "/" + InventoryFileName }
func (c *Config) UpgradePathsPath() string  { return c.WorkDir + "/" + DirConfig + "/" + UpgradePathsFileName }
func (c *Config) VersionHashesPath() string { return c.WorkDir + "/" + DirConfig + "/" + VersionHashesFileName }
func (c *Config) DaemonStatusPath() string  { return c.WorkDir + "/" + DirStatus + "/" + DaemonStatusFileName }
func (c *Config) WorkersStatusPath() string { return c.WorkDir + "/" + DirStatus + "/" + WorkersStatusFileName }
func (c *Config) DeviceStatusPath(serial string) string {
	return c.WorkDir + "/" + DirStatusDevices + "/" + serial + ".json"
}
func (c *Config) QueueDir(status string) string { return c.WorkDir + "/" + DirQueue + "/" + status }
func (c *Config) CommandsIncomingDir() string    { return c.WorkDir + "/" + DirCommandsIncoming }
func (c *Config) CommandsProcessedDir() string   { return c.WorkDir + "/" + DirCommandsProcessed }
func (c *Config) ValidationPreDir() string       { return c.WorkDir + "/" + DirValidationPre }
func (c *Config) ValidationPostDir() string      { return c.WorkDir + "/" + DirValidationPost }
