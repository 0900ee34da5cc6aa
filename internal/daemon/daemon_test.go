package daemon

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/natej/panos-upgrade/internal/config"
	"github.com/natej/panos-upgrade/internal/deviceapi/mockdevice"
	"github.com/natej/panos-upgrade/internal/fsstore"
	"github.com/natej/panos-upgrade/internal/model"
)

func newTestDaemon(t *testing.T, devices map[string]model.Device, upgradePaths map[string][]string) (*Daemon, *mockdevice.Registry) {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if err := fsstore.WriteJSON(cfg.InventoryPath(), model.InventoryDocument{Devices: devices}); err != nil {
		t.Fatalf("writing inventory: %v", err)
	}
	if err := fsstore.WriteJSON(cfg.UpgradePathsPath(), upgradePaths); err != nil {
		t.Fatalf("writing upgrade paths: %v", err)
	}

	reg := mockdevice.NewRegistry()
	d, err := New(cfg, reg.Factory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, reg
}

func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", path)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestQueueCountsReflectsDirectoryContents(t *testing.T) {
	d, _ := newTestDaemon(t, nil, nil)

	for _, dir := range []string{"pending", "active", "completed"} {
		if err := fsstore.WriteJSON(d.cfg.QueueDir(dir)+"/job.json", model.Job{JobID: "job"}); err != nil {
			t.Fatalf("seeding %s: %v", dir, err)
		}
	}

	pending, active, completed, failed, cancelled := d.QueueCounts()
	if pending != 1 || active != 1 || completed != 1 || failed != 0 || cancelled != 0 {
		t.Fatalf("got pending=%d active=%d completed=%d failed=%d cancelled=%d", pending, active, completed, failed, cancelled)
	}
}

func TestDispatchStandaloneCompletesAndMovesJobToCompleted(t *testing.T) {
	d, reg := newTestDaemon(t,
		map[string]model.Device{"SN1": {Serial: "SN1", Hostname: "fw-1", MgmtIP: "SN1", CurrentVersion: "10.1.0"}},
		map[string][]string{"10.1.0": {"11.0.1"}},
	)
	reg.Seed(&mockdevice.State{Serial: "SN1", CurrentVersion: "10.1.0", DiskAvailableGB: 50})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.pool.Start(ctx)

	job := model.Job{JobID: "job-1", Type: model.JobStandalone, Devices: []string{"SN1"}}
	if err := fsstore.WriteJSON(d.cfg.QueueDir("active")+"/job-1.json", job); err != nil {
		t.Fatalf("seeding active descriptor: %v", err)
	}
	d.jobsMu.Lock()
	d.jobByID[job.JobID] = job
	d.jobsMu.Unlock()

	if err := d.Dispatch(ctx, job); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	waitForFile(t, d.cfg.QueueDir("completed")+"/job-1.json")

	if got := reg.State("SN1").CurrentVersion; got != "11.0.1" {
		t.Fatalf("got %q, want 11.0.1", got)
	}

	d.pool.Shutdown(2 * time.Second)
}

func TestDispatchHARequiresExactlyTwoDevices(t *testing.T) {
	d, _ := newTestDaemon(t, nil, nil)

	job := model.Job{JobID: "job-ha", Type: model.JobHAPair, Devices: []string{"SN1"}}
	if err := d.dispatchHA(job); err == nil {
		t.Fatalf("expected an error for an ha_pair job with one device")
	}
}

func TestHandleUnknownCommandErrors(t *testing.T) {
	d, _ := newTestDaemon(t, nil, nil)
	if err := d.Handle(context.Background(), model.Command{Command: "not_a_real_command"}); err == nil {
		t.Fatalf("expected an error for an unknown command")
	}
}

func TestHandleCancelJobRequiresTrackedJob(t *testing.T) {
	d, _ := newTestDaemon(t, nil, nil)
	err := d.Handle(context.Background(), model.Command{Command: "cancel_upgrade", Target: model.CommandTargetJob, JobID: "missing"})
	if err == nil {
		t.Fatalf("expected an error for a job that is not tracked as active")
	}
}

func TestHandleCancelDeviceIsAlwaysANoOpIfNotRunning(t *testing.T) {
	d, _ := newTestDaemon(t, nil, nil)
	err := d.Handle(context.Background(), model.Command{Command: "cancel_upgrade", Target: model.CommandTargetDevice, DeviceSerial: "SN1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
}
