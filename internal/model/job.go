package model

import "time"

// JobType is the variant of upgrade workflow requested for a job's devices.
type JobType string

const (
	JobStandalone       JobType = "standalone"
	JobHAPair           JobType = "ha_pair"
	JobDownloadOnly     JobType = "download_only"
	JobDownloadOnlyHA   JobType = "download_only_ha"
)

// IsDownloadOnly reports whether the job type belongs to the download-only
// family, which must never run concurrently with a full-upgrade job on the
// same device.
func (t JobType) IsDownloadOnly() bool {
	return t == JobDownloadOnly || t == JobDownloadOnlyHA
}

// IsHA reports whether the job targets an HA pair (two devices).
func (t JobType) IsHA() bool {
	return t == JobHAPair || t == JobDownloadOnlyHA
}

// JobStatus is the terminal/non-terminal lifecycle state of a Job, encoded
// by which queue directory currently holds the descriptor.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is a client-created, daemon-owned descriptor for one upgrade run
// targeting one or two devices.
type Job struct {
	JobID       string    `json:"job_id"`
	Type        JobType   `json:"type"`
	Devices     []string  `json:"devices"`
	HAPairName  string    `json:"ha_pair_name,omitempty"`
	DryRun      bool      `json:"dry_run"`
	CreatedAt   time.Time `json:"created_at"`
}

// CommandTarget selects whether a Command addresses a whole job or a
// single device's workflow.
type CommandTarget string

const (
	CommandTargetJob    CommandTarget = "job"
	CommandTargetDevice CommandTarget = "device"
)

// Command is a single-shot operator instruction delivered via
// commands/incoming/, consumed exactly once.
type Command struct {
	Command      string        `json:"command"`
	Target       CommandTarget `json:"target"`
	JobID        string        `json:"job_id,omitempty"`
	DeviceSerial string        `json:"device_serial,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// RejectionDetail is the structured record written as an error sidecar
// alongside a job or command descriptor moved to a terminal/processed
// directory without having run, following original_source/exceptions.py's
// DuplicateJobError/ActiveJobError/PendingJobError/ConflictingJobTypeError.
type RejectionDetail struct {
	Reason            string    `json:"reason"`
	Detail            string    `json:"detail"`
	BlockingJobID     string    `json:"blocking_job_id,omitempty"`
	BlockingStatus    JobStatus `json:"blocking_status,omitempty"`
	BlockingCreatedAt time.Time `json:"blocking_created_at,omitempty"`
	RejectedAt        time.Time `json:"rejected_at"`
}
