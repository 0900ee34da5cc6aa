// Package status implements the Status Writer of spec §4.11: a periodic
// snapshot of daemon.json and workers.json. Per-device status is written
// by the workflow itself (internal/engine), not by this component.
package status

import (
	"context"
	"time"

	"github.com/natej/panos-upgrade/internal/config"
	"github.com/natej/panos-upgrade/internal/fsstore"
	"github.com/natej/panos-upgrade/internal/log"
	"github.com/natej/panos-upgrade/internal/model"
)

// Counters is implemented by the daemon wiring to report the current
// queue depths for the daemon.json snapshot.
type Counters interface {
	QueueCounts() (pending, active, completed, failed, cancelled int)
}

// Workers is implemented by the worker pool to report per-worker state.
type Workers interface {
	Snapshot() []model.WorkerStatus
}

// Writer periodically persists status/daemon.json and status/workers.json.
type Writer struct {
	cfg       *config.Config
	counters  Counters
	workers   Workers
	startedAt time.Time
}

// New returns a Writer bound to cfg's status paths.
func New(cfg *config.Config, counters Counters, workers Workers) *Writer {
	return &Writer{cfg: cfg, counters: counters, workers: workers, startedAt: time.Now().UTC()}
}

// WriteOnce takes and persists a single snapshot.
func (w *Writer) WriteOnce() {
	pending, active, completed, failed, cancelled := w.counters.QueueCounts()
	daemon := model.DaemonStatus{
		Running:       true,
		Workers:       len(w.workers.Snapshot()),
		ActiveJobs:    active,
		PendingJobs:   pending,
		CompletedJobs: completed,
		FailedJobs:    failed,
		CancelledJobs: cancelled,
		StartedAt:     w.startedAt,
		LastUpdated:   time.Now().UTC(),
	}
	if err := fsstore.WriteJSON(w.cfg.DaemonStatusPath(), daemon); err != nil {
		log.Error("status: writing daemon.json", "error", err.Error())
	}

	workersDoc := model.WorkersDocument{Workers: w.workers.Snapshot()}
	if err := fsstore.WriteJSON(w.cfg.WorkersStatusPath(), workersDoc); err != nil {
		log.Error("status: writing workers.json", "error", err.Error())
	}
}

// Run calls WriteOnce immediately, then again every interval until ctx is
// cancelled.
func (w *Writer) Run(ctx context.Context, interval time.Duration) {
	w.WriteOnce()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.WriteOnce()
		}
	}
}
