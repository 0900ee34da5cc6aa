package workerpool

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/natej/panos-upgrade/internal/fsstore"
	"github.com/natej/panos-upgrade/internal/model"
)

func TestSubmitReturnsErrQueueFullWhenFull(t *testing.T) {
	p := New(1, 1, "")
	noop := WorkItem{JobID: "j", Serial: "s", Run: func(ctx context.Context) error { return nil }}

	if err := p.Submit(noop); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if err := p.Submit(noop); err != ErrQueueFull {
		t.Fatalf("second Submit: got %v, want ErrQueueFull", err)
	}
}

func TestExecuteRecoversFromPanicAndContinuesDrainingQueue(t *testing.T) {
	p := New(1, 2, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	done := make(chan struct{})
	if err := p.Submit(WorkItem{JobID: "panics", Serial: "SN1", Run: func(ctx context.Context) error {
		panic("boom")
	}}); err != nil {
		t.Fatalf("Submit panicking item: %v", err)
	}
	if err := p.Submit(WorkItem{JobID: "survives", Serial: "SN2", Run: func(ctx context.Context) error {
		close(done)
		return nil
	}}); err != nil {
		t.Fatalf("Submit second item: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("second item never ran after the first panicked")
	}

	p.Shutdown(time.Second)
}

func TestExecuteReportsErrorsWithoutAbortingOtherItems(t *testing.T) {
	p := New(1, 2, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	done := make(chan struct{})
	if err := p.Submit(WorkItem{JobID: "fails", Serial: "SN1", Run: func(ctx context.Context) error {
		return errors.New("work item failure")
	}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.Submit(WorkItem{JobID: "ok", Serial: "SN2", Run: func(ctx context.Context) error {
		close(done)
		return nil
	}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("second item never ran after the first returned an error")
	}

	p.Shutdown(time.Second)
}

func TestCancelInvokesTheItemsCancelFunc(t *testing.T) {
	p := New(1, 1, "")
	ctx, cancelAll := context.WithCancel(context.Background())
	defer cancelAll()
	p.Start(ctx)

	started := make(chan struct{})
	result := make(chan error, 1)
	if err := p.Submit(WorkItem{JobID: "cancel-me", Serial: "SN1", Run: func(itemCtx context.Context) error {
		close(started)
		<-itemCtx.Done()
		result <- itemCtx.Err()
		return itemCtx.Err()
	}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("item never started")
	}

	p.Cancel("SN1")

	select {
	case err := <-result:
		if err == nil {
			t.Fatalf("expected the item's context to be cancelled")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("item never observed cancellation")
	}

	p.Shutdown(time.Second)
}

func TestCancelOfUnknownSerialIsNoOp(t *testing.T) {
	p := New(1, 1, "")
	p.Cancel("does-not-exist") // must not panic or block
}

func TestShutdownWaitsForInFlightWorkToFinish(t *testing.T) {
	p := New(1, 1, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	finished := make(chan struct{})
	if err := p.Submit(WorkItem{JobID: "slow", Serial: "SN1", Run: func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		close(finished)
		return nil
	}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	p.Shutdown(time.Second)

	select {
	case <-finished:
	default:
		t.Fatalf("expected the in-flight item to have finished before Shutdown returned")
	}
}

func TestShutdownCancelsInFlightItemPromptly(t *testing.T) {
	p := New(1, 1, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	started := make(chan struct{})
	if err := p.Submit(WorkItem{JobID: "never-finishes", Serial: "SN1", Run: func(itemCtx context.Context) error {
		close(started)
		<-itemCtx.Done()
		return itemCtx.Err()
	}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("item never started")
	}

	before := time.Now()
	p.Shutdown(30 * time.Millisecond)
	if elapsed := time.Since(before); elapsed > 2*time.Second {
		t.Fatalf("Shutdown took too long to force-cancel: %v", elapsed)
	}
}

func TestSnapshotReflectsIdleWorkersBeforeAnyWork(t *testing.T) {
	p := New(3, 1, "")
	snap := p.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("got %d workers, want 3", len(snap))
	}
	for _, ws := range snap {
		if ws.Status != model.WorkerIdle {
			t.Fatalf("got worker status %q, want idle", ws.Status)
		}
	}
}

func TestWriteStatusPersistsWorkerSnapshotToDisk(t *testing.T) {
	statusPath := filepath.Join(t.TempDir(), "workers.json")
	p := New(1, 1, statusPath)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	done := make(chan struct{})
	if err := p.Submit(WorkItem{JobID: "j", Serial: "SN1", Run: func(ctx context.Context) error {
		close(done)
		return nil
	}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("item never ran")
	}
	p.Shutdown(time.Second)

	var doc model.WorkersDocument
	if err := fsstore.ReadJSON(statusPath, &doc); err != nil {
		t.Fatalf("reading workers.json: %v", err)
	}
	if len(doc.Workers) != 1 {
		t.Fatalf("got %d workers in status doc, want 1", len(doc.Workers))
	}
	if doc.Workers[0].Status != model.WorkerIdle {
		t.Fatalf("got final status %q, want idle once the item has completed", doc.Workers[0].Status)
	}
}
