// Package intake implements the Job Intake and Command Intake components
// of spec §4.9/§4.10: periodic directory polling of queue/pending and
// commands/incoming, processed mtime-ascending, with the Duplicate-Job
// Guard and a startup recovery scan of queue/active.
package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/natej/panos-upgrade/internal/config"
	"github.com/natej/panos-upgrade/internal/fsstore"
	"github.com/natej/panos-upgrade/internal/inventory"
	"github.com/natej/panos-upgrade/internal/log"
	"github.com/natej/panos-upgrade/internal/model"
)

// ErrDuplicateJob is returned when a pending job targets a device already
// covered by an admitted (active) job. Other files still in the pending
// queue are not scanned, so BlockingStatus is always active.
type ErrDuplicateJob struct {
	Serial            string
	ConflictWith      string
	BlockingStatus    model.JobStatus
	BlockingCreatedAt time.Time
}

func (e *ErrDuplicateJob) Error() string {
	return fmt.Sprintf("intake: device %s already targeted by %s job %s", e.Serial, e.BlockingStatus, e.ConflictWith)
}

// ErrConflictingJobType is returned when a pending job's type would mix a
// download-only workflow with a full-upgrade workflow on the same device.
type ErrConflictingJobType struct {
	Serial            string
	ConflictWith      string
	BlockingStatus    model.JobStatus
	BlockingCreatedAt time.Time
}

func (e *ErrConflictingJobType) Error() string {
	return fmt.Sprintf("intake: device %s has a conflicting in-flight job type from %s job %s", e.Serial, e.BlockingStatus, e.ConflictWith)
}

// ErrInvalidJob is returned by validateAdmission when a job descriptor
// fails the admission checks of spec §4.9 step 2: an empty device list, a
// device count that doesn't match the job type's arity, or a serial the
// Inventory Store doesn't recognize.
type ErrInvalidJob struct {
	Reason string
}

func (e *ErrInvalidJob) Error() string {
	return fmt.Sprintf("intake: invalid job: %s", e.Reason)
}

// Dispatcher is implemented by the daemon wiring to hand an admitted job to
// the Worker Pool / HA Coordinator.
type Dispatcher interface {
	Dispatch(ctx context.Context, job model.Job) error
}

// JobIntake polls queue/pending, validates and admits jobs, and performs
// the startup recovery scan of queue/active.
type JobIntake struct {
	cfg        *config.Config
	inventory  *inventory.Store
	dispatcher Dispatcher

	// active tracks which serial each in-flight job is currently holding,
	// for the Duplicate-Job Guard, since queue/active alone does not say
	// which devices within a multi-device job are still running.
	active map[string]activeJob
}

type activeJob struct {
	JobID     string
	Type      model.JobType
	CreatedAt time.Time
}

// New returns a JobIntake bound to cfg's queue directories and inv for
// admission-time serial resolvability checks.
func New(cfg *config.Config, inv *inventory.Store, dispatcher Dispatcher) *JobIntake {
	return &JobIntake{cfg: cfg, inventory: inv, dispatcher: dispatcher, active: map[string]activeJob{}}
}

// RecoverActive re-admits every job descriptor still sitting in
// queue/active at startup: a prior daemon crash leaves them there with no
// guarantee their workflow goroutines are still running, so they are
// treated exactly like freshly admitted pending jobs.
func (j *JobIntake) RecoverActive(ctx context.Context) error {
	entries, err := fsstore.ListJSONFiles(j.cfg.QueueDir("active"))
	if err != nil {
		return fmt.Errorf("intake: listing active queue: %w", err)
	}
	for _, e := range entries {
		var job model.Job
		if err := fsstore.ReadJSON(e.Path, &job); err != nil {
			log.Error("intake: unreadable active job descriptor, skipping", "path", e.Path, "error", err.Error())
			continue
		}
		log.Info("intake: recovering job from active queue after restart", "job_id", job.JobID)
		j.markActive(job)
		if err := j.dispatcher.Dispatch(ctx, job); err != nil {
			log.Error("intake: recovered job dispatch failed", "job_id", job.JobID, "error", err.Error())
		}
	}
	return nil
}

// Poll runs one scan of queue/pending, admitting jobs in mtime-ascending
// order and rejecting duplicates/conflicts without blocking the rest of
// the scan.
func (j *JobIntake) Poll(ctx context.Context) error {
	entries, err := fsstore.ListJSONFiles(j.cfg.QueueDir("pending"))
	if err != nil {
		return fmt.Errorf("intake: listing pending queue: %w", err)
	}

	for _, e := range entries {
		var job model.Job
		if err := fsstore.ReadJSON(e.Path, &job); err != nil {
			log.Error("intake: unreadable job descriptor, moving to failed", "path", e.Path, "error", err.Error())
			j.rejectTo(e.Path, "failed", e.Name, model.RejectionDetail{
				Reason: "unreadable_descriptor",
				Detail: err.Error(),
			})
			continue
		}

		// Step 2: devices non-empty, correctly sized for type, and every
		// serial resolvable in the Inventory Store (spec §4.9 step 2).
		if err := j.validateAdmission(job); err != nil {
			log.Warn("intake: rejecting invalid job", "job_id", job.JobID, "error", err.Error())
			j.rejectTo(e.Path, "failed", e.Name, model.RejectionDetail{
				Reason: "invalid_job",
				Detail: err.Error(),
			})
			continue
		}

		// Step 3: the Duplicate-Job Guard.
		if conflict := j.checkConflict(job); conflict != nil {
			log.Warn("intake: rejecting job", "job_id", job.JobID, "error", conflict.Error())
			j.rejectTo(e.Path, "failed", e.Name, rejectionDetailFor(conflict))
			continue
		}

		activePath := j.cfg.QueueDir("active") + "/" + e.Name
		if err := fsstore.Move(e.Path, activePath); err != nil {
			log.Error("intake: moving job to active", "job_id", job.JobID, "error", err.Error())
			continue
		}

		j.markActive(job)
		log.Info("intake: admitted job", "job_id", job.JobID, "type", job.Type, "devices", job.Devices)
		if err := j.dispatcher.Dispatch(ctx, job); err != nil {
			log.Error("intake: dispatch failed", "job_id", job.JobID, "error", err.Error())
		}
	}
	return nil
}

// validateAdmission implements spec §4.9 step 2: devices must be
// non-empty, correctly sized for the job's type (one serial for
// standalone/download_only, exactly two for the ha_pair families), and
// every serial must resolve in the Inventory Store.
func (j *JobIntake) validateAdmission(job model.Job) error {
	if len(job.Devices) == 0 {
		return &ErrInvalidJob{Reason: "devices list is empty"}
	}
	wantDevices := 1
	if job.Type.IsHA() {
		wantDevices = 2
	}
	if len(job.Devices) != wantDevices {
		return &ErrInvalidJob{Reason: fmt.Sprintf("job type %q requires exactly %d device(s), got %d", job.Type, wantDevices, len(job.Devices))}
	}
	for _, serial := range job.Devices {
		if !j.inventory.Exists(serial) {
			return &ErrInvalidJob{Reason: fmt.Sprintf("serial %s not found in inventory", serial)}
		}
	}
	return nil
}

// checkConflict implements the Duplicate-Job Guard: a pending job is
// rejected if any of its devices are already claimed by an active job, or
// if its type mixes download-only with full-upgrade against a device that
// already has the other kind in flight.
func (j *JobIntake) checkConflict(job model.Job) error {
	for _, serial := range job.Devices {
		existing, ok := j.active[serial]
		if !ok {
			continue
		}
		if existing.Type.IsDownloadOnly() != job.Type.IsDownloadOnly() {
			return &ErrConflictingJobType{
				Serial:            serial,
				ConflictWith:      existing.JobID,
				BlockingStatus:    model.JobActive,
				BlockingCreatedAt: existing.CreatedAt,
			}
		}
		return &ErrDuplicateJob{
			Serial:            serial,
			ConflictWith:      existing.JobID,
			BlockingStatus:    model.JobActive,
			BlockingCreatedAt: existing.CreatedAt,
		}
	}
	return nil
}

// rejectionDetailFor converts a Duplicate-Job Guard error into its
// structured sidecar record, carrying the blocking job's id, status, and
// creation timestamp per original_source/exceptions.py.
func rejectionDetailFor(err error) model.RejectionDetail {
	switch e := err.(type) {
	case *ErrConflictingJobType:
		return model.RejectionDetail{
			Reason:            "conflicting_job_type",
			Detail:            e.Error(),
			BlockingJobID:     e.ConflictWith,
			BlockingStatus:    e.BlockingStatus,
			BlockingCreatedAt: e.BlockingCreatedAt,
		}
	case *ErrDuplicateJob:
		return model.RejectionDetail{
			Reason:            "duplicate_job",
			Detail:            e.Error(),
			BlockingJobID:     e.ConflictWith,
			BlockingStatus:    e.BlockingStatus,
			BlockingCreatedAt: e.BlockingCreatedAt,
		}
	default:
		return model.RejectionDetail{Reason: "rejected", Detail: err.Error()}
	}
}

func (j *JobIntake) markActive(job model.Job) {
	for _, serial := range job.Devices {
		j.active[serial] = activeJob{JobID: job.JobID, Type: job.Type, CreatedAt: job.CreatedAt}
	}
}

// Release removes a job's devices from the active tracking set once the
// workflow reaches a terminal state, reopening those serials to new jobs.
func (j *JobIntake) Release(job model.Job) {
	for _, serial := range job.Devices {
		if cur, ok := j.active[serial]; ok && cur.JobID == job.JobID {
			delete(j.active, serial)
		}
	}
}

// Complete moves a job descriptor from active to its terminal queue
// directory (completed, failed, or cancelled) and releases its devices.
func (j *JobIntake) Complete(job model.Job, terminal model.JobStatus) {
	j.Release(job)
	src := j.cfg.QueueDir("active") + "/" + job.JobID + ".json"
	dst := j.cfg.QueueDir(string(terminal)) + "/" + job.JobID + ".json"
	if err := fsstore.Move(src, dst); err != nil {
		log.Error("intake: moving job to terminal queue", "job_id", job.JobID, "terminal", terminal, "error", err.Error())
	}
}

// rejectTo moves a job descriptor that failed admission to status, writing
// detail as a "{name}.error.json" sidecar alongside it so an operator
// inspecting the terminal directory has a structured record of why the
// job never ran (spec §4.9 steps 1 and 3, SPEC_FULL.md §C.2).
func (j *JobIntake) rejectTo(src, status, name string, detail model.RejectionDetail) {
	dst := j.cfg.QueueDir(status) + "/" + name
	if err := fsstore.Move(src, dst); err != nil {
		log.Error("intake: moving rejected job descriptor", "src", src, "dst", dst, "error", err.Error())
		return
	}
	detail.RejectedAt = time.Now().UTC()
	sidecar := dst[:len(dst)-len(".json")] + ".error.json"
	if err := fsstore.WriteJSON(sidecar, detail); err != nil {
		log.Error("intake: writing rejection sidecar", "path", sidecar, "error", err.Error())
	}
}

// Run drives Poll on an interval, nudged early by w, until ctx is
// cancelled.
func (j *JobIntake) Run(ctx context.Context, w *fsstore.Watcher, interval time.Duration) {
	for {
		if err := j.Poll(ctx); err != nil {
			log.Error("intake: job poll failed", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		fsstore.Wait(ctx, w, interval)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
