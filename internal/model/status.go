package model

import "time"

// UpgradeStatus is DeviceStatus.upgrade_status, the per-device workflow
// phase. Values pending/validating/downloading/installing/rebooting form
// the non-terminal spine; complete and download_complete end a successful
// workflow, and failed/cancelled/skipped are the terminals reachable from
// any non-terminal state.
type UpgradeStatus string

const (
	StatusPending           UpgradeStatus = "pending"
	StatusValidating        UpgradeStatus = "validating"
	StatusDownloading       UpgradeStatus = "downloading"
	StatusInstalling        UpgradeStatus = "installing"
	StatusRebooting         UpgradeStatus = "rebooting"
	StatusComplete          UpgradeStatus = "complete"
	StatusFailed            UpgradeStatus = "failed"
	StatusCancelled         UpgradeStatus = "cancelled"
	StatusSkipped           UpgradeStatus = "skipped"
	StatusDownloadComplete  UpgradeStatus = "download_complete"
)

// IsTerminal reports whether the status ends the workflow.
func (s UpgradeStatus) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusCancelled, StatusSkipped, StatusDownloadComplete:
		return true
	default:
		return false
	}
}

// IsActive reports whether a workflow is still performing an operation
// that should block a concurrent second daemon instance from starting one
// for the same serial.
func (s UpgradeStatus) IsActive() bool {
	switch s {
	case StatusValidating, StatusDownloading, StatusInstalling, StatusRebooting:
		return true
	default:
		return false
	}
}

// StatusError is one entry in DeviceStatus.errors.
type StatusError struct {
	Timestamp time.Time `json:"timestamp"`
	Phase     string    `json:"phase"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
}

// DiskSpace records the most recent pre-download disk precheck result.
type DiskSpace struct {
	AvailableGB float64 `json:"available_gb"`
	RequiredGB  float64 `json:"required_gb"`
	CheckPassed bool    `json:"check_passed"`
}

// DeviceStatus is the per-device workflow record, written exclusively by
// the workflow currently executing for that serial and readable by any
// number of concurrent observers.
type DeviceStatus struct {
	Serial  string  `json:"serial"`
	Hostname string `json:"hostname"`
	HARole  HAState `json:"ha_role"`

	StartingVersion  string   `json:"starting_version"`
	CurrentVersion   string   `json:"current_version"`
	UpgradePath      []string `json:"upgrade_path"`
	CurrentPathIndex int      `json:"current_path_index"`
	TargetVersion    string   `json:"target_version"`

	UpgradeStatus  UpgradeStatus `json:"upgrade_status"`
	CurrentPhase   string        `json:"current_phase"`
	Progress       int           `json:"progress"`
	UpgradeMessage string        `json:"upgrade_message"`

	DownloadedVersions []string `json:"downloaded_versions,omitempty"`
	SkippedVersions    []string `json:"skipped_versions,omitempty"`
	ReadyForInstall    bool     `json:"ready_for_install"`

	Errors      []StatusError `json:"errors,omitempty"`
	LastUpdated time.Time     `json:"last_updated"`
	SkipReason  string        `json:"skip_reason,omitempty"`

	DiskSpace DiskSpace `json:"disk_space"`
}

// Target returns the final element of the plan, or "" for an empty path.
func (d *DeviceStatus) Target() string {
	if len(d.UpgradePath) == 0 {
		return ""
	}
	return d.UpgradePath[len(d.UpgradePath)-1]
}

// AtTarget reports whether current_path_index has reached the end of the
// planned path, the invariant required when upgrade_status is complete or
// download_complete.
func (d *DeviceStatus) AtTarget() bool {
	return d.CurrentPathIndex >= len(d.UpgradePath)
}

// DaemonStatus is status/daemon.json.
type DaemonStatus struct {
	Running        bool      `json:"running"`
	Workers        int       `json:"workers"`
	ActiveJobs     int       `json:"active_jobs"`
	PendingJobs    int       `json:"pending_jobs"`
	CompletedJobs  int       `json:"completed_jobs"`
	FailedJobs     int       `json:"failed_jobs"`
	CancelledJobs  int       `json:"cancelled_jobs"`
	StartedAt      time.Time `json:"started_at"`
	LastUpdated    time.Time `json:"last_updated"`
}

// WorkerState is one entry of status/workers.json.
type WorkerState string

const (
	WorkerIdle WorkerState = "idle"
	WorkerBusy WorkerState = "busy"
)

// WorkerStatus is published by each pool executor to the Status Writer.
type WorkerStatus struct {
	WorkerID      int         `json:"worker_id"`
	Status        WorkerState `json:"status"`
	CurrentJobID  string      `json:"current_job_id,omitempty"`
	CurrentDevice string      `json:"current_device,omitempty"`
	LastUpdated   time.Time   `json:"last_updated"`
}

// WorkersDocument is the shape of status/workers.json.
type WorkersDocument struct {
	Workers []WorkerStatus `json:"workers"`
}
