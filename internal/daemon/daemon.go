// Package daemon wires the Job Intake, Command Intake, Worker Pool,
// Upgrade Engine, HA Coordinator, and Status Writer into the single
// long-running process described by spec §4: the daemon.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/natej/panos-upgrade/internal/config"
	"github.com/natej/panos-upgrade/internal/deviceapi"
	"github.com/natej/panos-upgrade/internal/engine"
	"github.com/natej/panos-upgrade/internal/fsstore"
	"github.com/natej/panos-upgrade/internal/ha"
	"github.com/natej/panos-upgrade/internal/hashdb"
	"github.com/natej/panos-upgrade/internal/intake"
	"github.com/natej/panos-upgrade/internal/inventory"
	"github.com/natej/panos-upgrade/internal/log"
	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/internal/pathtable"
	"github.com/natej/panos-upgrade/internal/status"
	"github.com/natej/panos-upgrade/internal/workerpool"
)

// pollInterval is the periodic fallback scan cadence for both intake
// loops; a fsstore.Watcher nudge wakes them sooner when it fires.
const pollInterval = 2 * time.Second

// Daemon owns every long-lived component and their wiring.
type Daemon struct {
	cfg *config.Config

	inventory *inventory.Store
	paths     *pathtable.Table
	hashes    *hashdb.DB
	engine    *engine.Engine
	ha        *ha.Coordinator
	pool      *workerpool.Pool

	jobs     *intake.JobIntake
	commands *intake.CommandIntake
	writer   *status.Writer

	jobsMu    sync.Mutex
	jobByID   map[string]model.Job
}

// New constructs a Daemon from the work directory's configuration and
// stores. open is the Device-API factory (production HTTPS or a test
// mock); passing nil selects the production implementation.
func New(cfg *config.Config, open deviceapi.Factory) (*Daemon, error) {
	if open == nil {
		open = func(mgmtIP string) (deviceapi.Capability, error) {
			return deviceapi.NewHTTPSCapability(mgmtIP, false)
		}
	}
	inv, err := inventory.Load(cfg.InventoryPath())
	if err != nil {
		return nil, fmt.Errorf("daemon: loading inventory: %w", err)
	}
	paths, err := pathtable.Load(cfg.UpgradePathsPath())
	if err != nil {
		return nil, fmt.Errorf("daemon: loading upgrade paths: %w", err)
	}
	hashes, err := hashdb.Load(cfg.VersionHashesPath())
	if err != nil {
		return nil, fmt.Errorf("daemon: loading version hashes: %w", err)
	}

	eng := engine.New(cfg, inv, paths, hashes, open)
	coordinator := ha.New(eng, inv)
	pool := workerpool.New(cfg.Workers.Max, cfg.Workers.QueueSize, cfg.WorkersStatusPath())

	d := &Daemon{
		cfg:       cfg,
		inventory: inv,
		paths:     paths,
		hashes:    hashes,
		engine:    eng,
		ha:        coordinator,
		pool:      pool,
		jobByID:   map[string]model.Job{},
	}
	d.jobs = intake.New(cfg, inv, d)
	d.commands = intake.NewCommandIntake(cfg, d)
	d.writer = status.New(cfg, d, pool)
	return d, nil
}

// Run starts every component and blocks until ctx is cancelled, then
// drains the worker pool within the given shutdown deadline.
func (d *Daemon) Run(ctx context.Context, shutdownDeadline time.Duration) error {
	if err := fsstore.EnsureDirs(d.cfg.WorkDir, config.AllDirs); err != nil {
		return fmt.Errorf("daemon: ensuring directory layout: %w", err)
	}

	log.Info("daemon starting", "work_dir", d.cfg.WorkDir, "workers", d.cfg.Workers.Max)
	d.pool.Start(ctx)

	if err := d.jobs.RecoverActive(ctx); err != nil {
		log.Error("daemon: recovering active jobs failed", "error", err.Error())
	}

	jobWatcher, err := fsstore.NewWatcher(d.cfg.QueueDir("pending"))
	if err != nil {
		return fmt.Errorf("daemon: watching pending queue: %w", err)
	}
	defer jobWatcher.Close()

	cmdWatcher, err := fsstore.NewWatcher(d.cfg.CommandsIncomingDir())
	if err != nil {
		return fmt.Errorf("daemon: watching incoming commands: %w", err)
	}
	defer cmdWatcher.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { d.jobs.Run(gctx, jobWatcher, pollInterval); return nil })
	g.Go(func() error { d.commands.Run(gctx, cmdWatcher, pollInterval); return nil })
	g.Go(func() error { d.writer.Run(gctx, time.Duration(d.cfg.StatusIntervalSeconds)*time.Second); return nil })

	<-ctx.Done()
	log.Info("daemon stopping, draining worker pool", "deadline", shutdownDeadline)
	d.pool.Shutdown(shutdownDeadline)
	_ = g.Wait()
	log.Info("daemon stopped")
	return nil
}

// Dispatch implements intake.Dispatcher: it submits one workerpool.WorkItem
// per device of a standalone job, and a single item for an HA-pair job that
// runs both members through the HA Coordinator.
func (d *Daemon) Dispatch(ctx context.Context, job model.Job) error {
	d.jobsMu.Lock()
	d.jobByID[job.JobID] = job
	d.jobsMu.Unlock()

	if job.Type.IsHA() {
		return d.dispatchHA(job)
	}
	return d.dispatchStandalone(job)
}

func (d *Daemon) dispatchStandalone(job model.Job) error {
	for _, serial := range job.Devices {
		serial := serial
		item := workerpool.WorkItem{
			JobID:  job.JobID,
			Serial: serial,
			Run: func(ctx context.Context) error {
				err := d.engine.Run(ctx, engine.Request{
					JobID:        job.JobID,
					Serial:       serial,
					DownloadOnly: job.Type.IsDownloadOnly(),
					DryRun:       job.DryRun,
				})
				d.finishDevice(job, serial, err)
				return err
			},
		}
		if err := d.pool.Submit(item); err != nil {
			log.Error("daemon: submitting work item", "job_id", job.JobID, "serial", serial, "error", err.Error())
		}
	}
	return nil
}

func (d *Daemon) dispatchHA(job model.Job) error {
	if len(job.Devices) != 2 {
		return fmt.Errorf("daemon: ha_pair job %s does not have exactly two devices", job.JobID)
	}
	a, b := job.Devices[0], job.Devices[1]
	item := workerpool.WorkItem{
		JobID:  job.JobID,
		Serial: a + "+" + b,
		Run: func(ctx context.Context) error {
			err := d.ha.Run(ctx, job.JobID, a, b, job.Type.IsDownloadOnly(), job.DryRun)
			d.finishDevice(job, a, err)
			d.finishDevice(job, b, err)
			return err
		},
	}
	if err := d.pool.Submit(item); err != nil {
		log.Error("daemon: submitting ha work item", "job_id", job.JobID, "error", err.Error())
	}
	return nil
}

// finishDevice records completion of one device's workflow within job and
// moves the job descriptor to its terminal queue directory. The first call
// for a job moves it, using that device's result; later calls for the same
// job do nothing.
func (d *Daemon) finishDevice(job model.Job, serial string, err error) {
	d.jobsMu.Lock()
	defer d.jobsMu.Unlock()

	tracked, ok := d.jobByID[job.JobID]
	if !ok {
		return
	}
	delete(d.jobByID, job.JobID)
	_ = tracked

	terminal := model.JobCompleted
	if err != nil {
		terminal = model.JobFailed
	}
	d.jobs.Complete(job, terminal)
}

// Handle implements intake.CommandHandler: it routes cancel_upgrade
// commands to the Worker Pool's per-serial cancellation.
func (d *Daemon) Handle(ctx context.Context, cmd model.Command) error {
	switch cmd.Command {
	case "cancel_upgrade":
		return d.handleCancel(cmd)
	default:
		return fmt.Errorf("daemon: unknown command %q", cmd.Command)
	}
}

func (d *Daemon) handleCancel(cmd model.Command) error {
	switch cmd.Target {
	case model.CommandTargetDevice:
		d.pool.Cancel(cmd.DeviceSerial)
		log.Info("daemon: cancelled device workflow", "serial", cmd.DeviceSerial, "reason", cmd.Reason)
		return nil
	case model.CommandTargetJob:
		d.jobsMu.Lock()
		job, ok := d.jobByID[cmd.JobID]
		d.jobsMu.Unlock()
		if !ok {
			return fmt.Errorf("daemon: job %s is not active", cmd.JobID)
		}
		for _, serial := range job.Devices {
			d.pool.Cancel(serial)
		}
		log.Info("daemon: cancelled job", "job_id", cmd.JobID, "reason", cmd.Reason)
		return nil
	default:
		return fmt.Errorf("daemon: unknown command target %q", cmd.Target)
	}
}

// QueueCounts implements status.Counters by listing the queue directories.
func (d *Daemon) QueueCounts() (pending, active, completed, failed, cancelled int) {
	count := func(status string) int {
		entries, err := fsstore.ListJSONFiles(d.cfg.QueueDir(status))
		if err != nil {
			return 0
		}
		return len(entries)
	}
	return count("pending"), count("active"), count("completed"), count("failed"), count("cancelled")
}
