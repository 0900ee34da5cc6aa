// Package engine implements the Upgrade Engine, the per-device state
// machine of spec §4.6: pending -> validating -> downloading ->
// [download_complete] | installing -> rebooting -> validating (post) ->
// complete, with failed/cancelled/skipped reachable as terminals from any
// non-terminal state. One Run call drives exactly one device through one
// job's workflow.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/natej/panos-upgrade/internal/config"
	"github.com/natej/panos-upgrade/internal/deviceapi"
	"github.com/natej/panos-upgrade/internal/fsstore"
	"github.com/natej/panos-upgrade/internal/hashdb"
	"github.com/natej/panos-upgrade/internal/inventory"
	"github.com/natej/panos-upgrade/internal/log"
	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/internal/pathtable"
	"github.com/natej/panos-upgrade/internal/validator"
)

// ErrCancelled is returned by Run when the context was cancelled between
// suspension points; the workflow has already written the cancelled
// terminal status before returning it.
var ErrCancelled = errors.New("engine: workflow cancelled")

// Engine holds the dependencies shared across every device workflow: the
// read-only stores, the Device-API factory, and the margins/timeouts from
// config.
type Engine struct {
	Config    *config.Config
	Inventory *inventory.Store
	Paths     *pathtable.Table
	Hashes    *hashdb.DB
	Validate  *validator.Validator
	Open      deviceapi.Factory
}

// New builds an Engine from its dependencies.
func New(cfg *config.Config, inv *inventory.Store, paths *pathtable.Table, hashes *hashdb.DB, open deviceapi.Factory) *Engine {
	return &Engine{
		Config:    cfg,
		Inventory: inv,
		Paths:     paths,
		Hashes:    hashes,
		Validate:  validator.New(cfg),
		Open:      open,
	}
}

// Request is the per-device workflow invocation produced by the Worker
// Pool from a Job.
type Request struct {
	JobID        string
	Serial       string
	HARole       model.HAState
	DownloadOnly bool
	DryRun       bool
}

// Run drives one device through its full upgrade (or download-only)
// workflow, persisting a DeviceStatus snapshot at every phase transition so
// a crash mid-workflow leaves an accurate last-known state behind.
func (e *Engine) Run(ctx context.Context, req Request) error {
	dev, err := e.Inventory.Lookup(req.Serial)
	if err != nil {
		return fmt.Errorf("engine: %s: %w", req.Serial, err)
	}

	cap, err := e.Open(dev.MgmtIP)
	if err != nil {
		e.fail(req.Serial, dev.Hostname, "open_session", err, time.Now())
		return fmt.Errorf("engine: opening device-api session for %s: %w", req.Serial, err)
	}
	defer cap.Close()

	w := &workflow{
		eng:    e,
		ctx:    ctx,
		req:    req,
		dev:    dev,
		cap:    cap,
		status: e.loadOrInitStatus(req.Serial, dev),
	}
	return w.run()
}

type workflow struct {
	eng    *Engine
	ctx    context.Context
	req    Request
	dev    model.Device
	cap    deviceapi.Capability
	status model.DeviceStatus
}

func (e *Engine) loadOrInitStatus(serial string, dev model.Device) model.DeviceStatus {
	var st model.DeviceStatus
	path := e.Config.DeviceStatusPath(serial)
	if err := fsstore.ReadJSON(path, &st); err == nil && st.Serial == serial {
		return st
	}
	return model.DeviceStatus{
		Serial:   serial,
		Hostname: dev.Hostname,
		HARole:   dev.HAState,
	}
}

func (w *workflow) save(phase string, status model.UpgradeStatus, progress int, message string) {
	w.status.CurrentPhase = phase
	w.status.UpgradeStatus = status
	w.status.Progress = progress
	w.status.UpgradeMessage = message
	w.status.LastUpdated = time.Now().UTC()
	if err := fsstore.WriteJSON(w.eng.Config.DeviceStatusPath(w.status.Serial), w.status); err != nil {
		log.Error("writing device status", "serial", w.status.Serial, "error", err.Error())
	}
}

func (w *workflow) addError(phase string, err error) {
	w.status.Errors = append(w.status.Errors, model.StatusError{
		Timestamp: time.Now().UTC(),
		Phase:     phase,
		Message:   err.Error(),
	})
}

func (e *Engine) fail(serial, hostname, phase string, err error, now time.Time) {
	st := model.DeviceStatus{
		Serial:         serial,
		Hostname:       hostname,
		UpgradeStatus:  model.StatusFailed,
		CurrentPhase:   phase,
		UpgradeMessage: err.Error(),
		LastUpdated:    now.UTC(),
		Errors: []model.StatusError{{
			Timestamp: now.UTC(), Phase: phase, Message: err.Error(),
		}},
	}
	if werr := fsstore.WriteJSON(e.Config.DeviceStatusPath(serial), st); werr != nil {
		log.Error("writing failure status", "serial", serial, "error", werr.Error())
	}
}

func (w *workflow) checkCancelled() error {
	select {
	case <-w.ctx.Done():
		w.save("cancelled", model.StatusCancelled, w.status.Progress, "workflow cancelled")
		return ErrCancelled
	default:
		return nil
	}
}

// run executes the full state machine for one device.
func (w *workflow) run() error {
	if err := w.checkCancelled(); err != nil {
		return err
	}

	w.save("validating", model.StatusValidating, 0, "checking current version and planning upgrade path")

	info, err := w.cap.SystemInfo(w.ctx)
	if err != nil {
		w.addError("validating", err)
		w.save("validating", model.StatusFailed, 0, "could not read system info")
		return fmt.Errorf("engine: system_info for %s: %w", w.status.Serial, err)
	}
	if w.status.StartingVersion == "" {
		w.status.StartingVersion = info.Version
	}
	w.status.CurrentVersion = info.Version

	path, ok := w.eng.Paths.Plan(w.status.StartingVersion)
	if !ok {
		w.status.SkipReason = fmt.Sprintf("no upgrade path defined from version %s", w.status.StartingVersion)
		w.save("validating", model.StatusSkipped, 0, w.status.SkipReason)
		return nil
	}
	w.status.UpgradePath = path
	w.status.TargetVersion = path[len(path)-1]
	w.status.CurrentPathIndex = indexOfVersion(path, info.Version)

	if info.Version == path[len(path)-1] {
		w.save("complete", model.StatusComplete, 100, "already at target version")
		return nil
	}

	now := time.Now()
	preFlight, err := w.eng.Validate.Collect(w.ctx, w.cap, w.status.Serial, "pre", now)
	if err != nil {
		w.addError("validating", err)
		w.save("validating", model.StatusFailed, 0, "pre-flight collection failed")
		return err
	}

	remaining := path[w.status.CurrentPathIndex:]
	for _, v := range remaining {
		if err := w.checkCancelled(); err != nil {
			return err
		}
		if err := w.downloadPhase(v); err != nil {
			return err
		}
	}
	if err := w.checkCancelled(); err != nil {
		return err
	}
	if err := w.verifyDownloadsComplete(remaining); err != nil {
		return err
	}

	if w.req.DownloadOnly {
		w.status.ReadyForInstall = true
		w.save("download_complete", model.StatusDownloadComplete, 100, "all path versions downloaded")
		return nil
	}

	// Install phase: the device's own installer rolls through intermediate
	// images when present, so only the final target is installed. Loop back
	// (bounded by len(path)) only if a single install+reboot cycle did not
	// already advance the device all the way to target_version — this
	// covers installers that do not auto-chain.
	target := path[len(path)-1]
	for cycle := 0; cycle < len(path); cycle++ {
		if err := w.installPhase(target); err != nil {
			return err
		}
		if err := w.rebootPhase(); err != nil {
			return err
		}

		if w.req.DryRun {
			break
		}

		info, err := w.cap.SystemInfo(w.ctx)
		if err != nil {
			w.addError("validating", err)
			w.save("validating", model.StatusFailed, 70, "could not confirm version after reboot")
			return fmt.Errorf("engine: post-reboot system_info for %s: %w", w.status.Serial, err)
		}
		w.status.CurrentVersion = info.Version
		w.status.CurrentPathIndex = indexOfVersion(path, info.Version)

		if info.Version == target {
			break
		}
	}

	return w.postFlight(preFlight)
}

func indexOfVersion(path []string, version string) int {
	for i, v := range path {
		if v == version {
			return i + 1
		}
	}
	return 0
}

func containsVersion(versions []string, target string) bool {
	for _, v := range versions {
		if v == target {
			return true
		}
	}
	return false
}

// verifyDownloadsComplete is the HARD gate at the end of the download phase
// (spec §4.6: "verify software_info().downloaded ⊇ path[index:]"). A device
// that reports a missing image after the download loop fails the phase with
// no retry.
func (w *workflow) verifyDownloadsComplete(required []string) error {
	if w.req.DryRun {
		return nil
	}
	info, err := w.cap.SoftwareInfo(w.ctx)
	if err != nil {
		w.addError("downloading", err)
		w.save("downloading", model.StatusFailed, 0, "software_info failed")
		return fmt.Errorf("engine: software_info for %s: %w", w.status.Serial, err)
	}
	for _, v := range required {
		if !containsVersion(info.Downloaded, v) {
			err := fmt.Errorf("engine: verification_failed: %s missing %s after download phase", w.status.Serial, v)
			w.addError("downloading", err)
			w.save("downloading", model.StatusFailed, 0, "post-download verification failed: required image missing")
			return err
		}
	}
	return nil
}

func (w *workflow) downloadPhase(target string) error {
	w.save("downloading", model.StatusDownloading, 0, fmt.Sprintf("downloading %s", target))

	if !w.req.DryRun {
		info, err := w.cap.SoftwareInfo(w.ctx)
		if err != nil {
			w.addError("downloading", err)
			w.save("downloading", model.StatusFailed, 0, "software_info failed")
			return fmt.Errorf("engine: software_info for %s: %w", w.status.Serial, err)
		}
		if containsVersion(info.Downloaded, target) {
			w.status.SkippedVersions = append(w.status.SkippedVersions, target)
			return nil
		}
	}

	ok, availableGB, err := validator.DiskPrecheck(w.ctx, w.cap, w.eng.Config.Validation.MinDiskGB)
	w.status.DiskSpace = model.DiskSpace{
		AvailableGB: availableGB,
		RequiredGB:  w.eng.Config.Validation.MinDiskGB,
		CheckPassed: ok,
	}
	if err != nil {
		w.addError("downloading", err)
		w.save("downloading", model.StatusFailed, 0, "disk precheck failed")
		return err
	}
	if !ok {
		err := fmt.Errorf("engine: insufficient disk space: %.1fGB available, %.1fGB required", availableGB, w.eng.Config.Validation.MinDiskGB)
		w.addError("downloading", err)
		w.save("downloading", model.StatusFailed, 0, err.Error())
		return err
	}

	if w.req.DryRun {
		time.Sleep(50 * time.Millisecond)
		w.status.DownloadedVersions = append(w.status.DownloadedVersions, target)
		return nil
	}

	var lastErr error
	attempts := maxInt(1, w.eng.Config.DeviceAPI.DownloadRetryAttempts)
	for attempt := 0; attempt < attempts; attempt++ {
		if err := w.checkCancelled(); err != nil {
			return err
		}

		jobID, err := w.cap.Download(w.ctx, target)
		if err != nil {
			lastErr = err
			continue
		}
		result, err := w.cap.WaitDownload(w.ctx, jobID)
		if err != nil {
			lastErr = err
			continue
		}

		if w.eng.Config.Validation.VerifyHashes && result.SHA256 != "" {
			if _, known := w.eng.Hashes.Expected(target); !known {
				log.Warn("no expected hash on file, download not verified", "serial", w.status.Serial, "version", target)
			}
			if verr := w.eng.Hashes.Verify(target, result.SHA256); verr != nil {
				w.addError("downloading", verr)
				lastErr = verr
				continue
			}
		}

		w.status.DownloadedVersions = append(w.status.DownloadedVersions, target)
		return nil
	}

	w.addError("downloading", lastErr)
	w.save("downloading", model.StatusFailed, 0, fmt.Sprintf("download of %s failed after %d attempts", target, attempts))
	return fmt.Errorf("engine: downloading %s for %s: %w", target, w.status.Serial, lastErr)
}

func (w *workflow) installPhase(target string) error {
	if err := w.checkCancelled(); err != nil {
		return err
	}
	w.save("installing", model.StatusInstalling, 40, fmt.Sprintf("installing %s", target))

	if w.req.DryRun {
		time.Sleep(50 * time.Millisecond)
		w.status.CurrentVersion = target
		w.status.CurrentPathIndex++
		return nil
	}

	jobID, err := w.cap.Install(w.ctx, target)
	if err != nil {
		w.addError("installing", err)
		w.save("installing", model.StatusFailed, 40, "install request failed")
		return fmt.Errorf("engine: installing %s for %s: %w", target, w.status.Serial, err)
	}
	if err := w.cap.WaitInstall(w.ctx, jobID); err != nil {
		w.addError("installing", err)
		w.save("installing", model.StatusFailed, 40, "install did not complete")
		return fmt.Errorf("engine: waiting for install of %s on %s: %w", target, w.status.Serial, err)
	}

	w.status.CurrentVersion = target
	w.status.CurrentPathIndex++
	return nil
}

func (w *workflow) rebootPhase() error {
	if err := w.checkCancelled(); err != nil {
		return err
	}
	w.save("rebooting", model.StatusRebooting, 70, "rebooting device")

	maxWait := time.Duration(w.eng.Config.DeviceAPI.RebootWaitTimeoutSeconds) * time.Second

	if w.req.DryRun {
		time.Sleep(100 * time.Millisecond)
		return nil
	}

	if err := w.cap.Reboot(w.ctx); err != nil {
		w.addError("rebooting", err)
		w.save("rebooting", model.StatusFailed, 70, "reboot request failed")
		return fmt.Errorf("engine: rebooting %s: %w", w.status.Serial, err)
	}
	if err := w.cap.WaitOnline(w.ctx, maxWait); err != nil {
		w.addError("rebooting", err)
		w.save("rebooting", model.StatusFailed, 70, "device did not come back online")
		return fmt.Errorf("engine: waiting for %s to come online: %w", w.status.Serial, err)
	}
	return nil
}

func (w *workflow) postFlight(preFlight model.PreFlightArtifact) error {
	if err := w.checkCancelled(); err != nil {
		return err
	}
	w.save("validating", model.StatusValidating, 90, "running post-flight validation")

	now := time.Now()
	postFlight, err := w.eng.Validate.Collect(w.ctx, w.cap, w.status.Serial, "post", now)
	if err != nil {
		w.addError("validating", err)
		w.save("validating", model.StatusFailed, 90, "post-flight collection failed")
		return err
	}

	cmp := w.eng.Validate.Compare(preFlight, postFlight)
	if err := w.eng.Validate.WritePostFlight(w.status.Serial, preFlight, postFlight, cmp, now); err != nil {
		log.Warn("writing post-flight artifact", "serial", w.status.Serial, "error", err.Error())
	}
	if !cmp.ValidationPassed {
		log.Warn("post-flight validation outside configured margins", "serial", w.status.Serial)
	}

	w.save("complete", model.StatusComplete, 100, "upgrade complete")
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
