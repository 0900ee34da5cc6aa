package status

import (
	"context"
	"testing"
	"time"

	"github.com/natej/panos-upgrade/internal/config"
	"github.com/natej/panos-upgrade/internal/fsstore"
	"github.com/natej/panos-upgrade/internal/model"
)

type stubCounters struct {
	pending, active, completed, failed, cancelled int
}

func (c stubCounters) QueueCounts() (pending, active, completed, failed, cancelled int) {
	return c.pending, c.active, c.completed, c.failed, c.cancelled
}

type stubWorkers struct {
	snapshot []model.WorkerStatus
}

func (w stubWorkers) Snapshot() []model.WorkerStatus { return w.snapshot }

func TestWriteOnceProducesDaemonAndWorkersDocuments(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	counters := stubCounters{pending: 2, active: 3, completed: 5, failed: 1, cancelled: 0}
	workers := stubWorkers{snapshot: []model.WorkerStatus{
		{WorkerID: 0, Status: model.WorkerBusy, CurrentJobID: "job-1", CurrentDevice: "SN1"},
		{WorkerID: 1, Status: model.WorkerIdle},
	}}

	w := New(cfg, counters, workers)
	w.WriteOnce()

	var daemon model.DaemonStatus
	if err := fsstore.ReadJSON(cfg.DaemonStatusPath(), &daemon); err != nil {
		t.Fatalf("reading daemon.json: %v", err)
	}
	if !daemon.Running {
		t.Fatalf("expected running=true")
	}
	if daemon.Workers != 2 {
		t.Fatalf("got workers=%d, want 2", daemon.Workers)
	}
	if daemon.PendingJobs != 2 || daemon.ActiveJobs != 3 || daemon.CompletedJobs != 5 || daemon.FailedJobs != 1 || daemon.CancelledJobs != 0 {
		t.Fatalf("got %+v", daemon)
	}
	if daemon.StartedAt.IsZero() || daemon.LastUpdated.IsZero() {
		t.Fatalf("expected started_at/last_updated to be set, got %+v", daemon)
	}

	var workersDoc model.WorkersDocument
	if err := fsstore.ReadJSON(cfg.WorkersStatusPath(), &workersDoc); err != nil {
		t.Fatalf("reading workers.json: %v", err)
	}
	if len(workersDoc.Workers) != 2 {
		t.Fatalf("got %d workers, want 2", len(workersDoc.Workers))
	}
	if workersDoc.Workers[0].CurrentJobID != "job-1" {
		t.Fatalf("got %+v", workersDoc.Workers[0])
	}
}

func TestRunWritesImmediatelyThenStopsOnCancel(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	w := New(cfg, stubCounters{}, stubWorkers{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, time.Hour)
		close(done)
	}()

	// Run writes once synchronously before entering its select loop, so the
	// file should exist almost immediately.
	deadline := time.Now().Add(2 * time.Second)
	for {
		var daemon model.DaemonStatus
		if err := fsstore.ReadJSON(cfg.DaemonStatusPath(), &daemon); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("daemon.json was never written")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancellation")
	}
}
