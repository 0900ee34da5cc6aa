// Package workerpool implements the Bounded Worker Pool of spec §4.8: a
// fixed number of goroutines drain a bounded work queue, Submit never
// blocks the caller once the queue is full (it reports the queue is full
// instead), and a panic or error in one work item never aborts another
// item or the pool itself, grounded on the semaphore-gated goroutine
// fan-out in the scanner's ScanNetwork. Admission control is a
// golang.org/x/sync/semaphore.Weighted sized to the queue capacity: Submit
// must acquire a slot before it may hand the item to the channel, so
// queue_size is enforced by the semaphore rather than by channel capacity
// alone.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/natej/panos-upgrade/internal/fsstore"
	"github.com/natej/panos-upgrade/internal/log"
	"github.com/natej/panos-upgrade/internal/model"
)

// ErrQueueFull is returned by Submit when the work queue is at capacity.
var ErrQueueFull = fmt.Errorf("workerpool: queue full")

// WorkItem is one unit of work a worker executes. Run must itself honor
// ctx cancellation; a panic inside Run is recovered by the worker and
// reported as an error, never propagated.
type WorkItem struct {
	JobID  string
	Serial string
	Run    func(ctx context.Context) error
}

// Pool is the Bounded Worker Pool.
type Pool struct {
	size       int
	statusPath string

	queue  chan WorkItem
	sem    *semaphore.Weighted
	cancel map[string]context.CancelFunc
	mu     sync.Mutex

	workers []*workerState
	wg      sync.WaitGroup

	shutdownOnce sync.Once
	done         chan struct{}
}

type workerState struct {
	id     int
	status model.WorkerStatus
	mu     sync.Mutex
}

// New builds a Pool with size workers and a queue of the given capacity.
// statusPath, if non-empty, is where workers.json is written after every
// state change.
func New(size, queueSize int, statusPath string) *Pool {
	if size < 1 {
		size = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	p := &Pool{
		size:       size,
		statusPath: statusPath,
		queue:      make(chan WorkItem, queueSize),
		sem:        semaphore.NewWeighted(int64(queueSize)),
		cancel:     map[string]context.CancelFunc{},
		done:       make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		p.workers = append(p.workers, &workerState{
			id:     i,
			status: model.WorkerStatus{WorkerID: i, Status: model.WorkerIdle, LastUpdated: time.Now().UTC()},
		})
	}
	return p
}

// Start launches the worker goroutines. ctx cancellation is the pool-wide
// shutdown signal; individual items also carry their own cancellation via
// Cancel.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go p.runWorker(ctx, w)
	}
}

// Submit enqueues item without blocking. It returns ErrQueueFull if the
// queue is at capacity, per spec §4.8's non-blocking-submit requirement.
// Admission is gated by a semaphore sized to the queue capacity so the
// capacity check and the enqueue are a single atomic decision.
func (p *Pool) Submit(item WorkItem) error {
	if !p.sem.TryAcquire(1) {
		return ErrQueueFull
	}
	select {
	case p.queue <- item:
		return nil
	default:
		p.sem.Release(1)
		return ErrQueueFull
	}
}

// Cancel requests cancellation of the in-flight item for serial, if any is
// currently running. It is a no-op if no matching item is active.
func (p *Pool) Cancel(serial string) {
	p.mu.Lock()
	cancel, ok := p.cancel[serial]
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

// Shutdown stops accepting new work, signals cancellation to every
// in-flight item immediately, and waits up to deadline for them to join.
func (p *Pool) Shutdown(deadline time.Duration) {
	p.shutdownOnce.Do(func() {
		close(p.queue)
	})

	p.mu.Lock()
	for _, cancel := range p.cancel {
		cancel()
	}
	p.mu.Unlock()

	waitDone := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(deadline):
		log.Warn("workerpool: shutdown deadline exceeded, items did not join in time")
	}
}

func (p *Pool) runWorker(ctx context.Context, w *workerState) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.queue:
			if !ok {
				return
			}
			p.sem.Release(1)
			p.execute(ctx, w, item)
		}
	}
}

func (p *Pool) execute(ctx context.Context, w *workerState, item WorkItem) {
	itemCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel[item.Serial] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.cancel, item.Serial)
		p.mu.Unlock()
		cancel()
	}()

	p.setBusy(w, item)
	defer p.setIdle(w)

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("workerpool: work item panicked", "worker_id", w.id, "serial", item.Serial, "panic", fmt.Sprintf("%v", r))
			}
		}()
		if err := item.Run(itemCtx); err != nil {
			log.Error("workerpool: work item failed", "worker_id", w.id, "job_id", item.JobID, "serial", item.Serial, "error", err.Error())
		}
	}()
}

func (p *Pool) setBusy(w *workerState, item WorkItem) {
	w.mu.Lock()
	w.status.Status = model.WorkerBusy
	w.status.CurrentJobID = item.JobID
	w.status.CurrentDevice = item.Serial
	w.status.LastUpdated = time.Now().UTC()
	w.mu.Unlock()
	p.writeStatus()
}

func (p *Pool) setIdle(w *workerState) {
	w.mu.Lock()
	w.status.Status = model.WorkerIdle
	w.status.CurrentJobID = ""
	w.status.CurrentDevice = ""
	w.status.LastUpdated = time.Now().UTC()
	w.mu.Unlock()
	p.writeStatus()
}

// Snapshot returns the current status of every worker, for the Status
// Writer and for `daemon status`.
func (p *Pool) Snapshot() []model.WorkerStatus {
	out := make([]model.WorkerStatus, 0, len(p.workers))
	for _, w := range p.workers {
		w.mu.Lock()
		out = append(out, w.status)
		w.mu.Unlock()
	}
	return out
}

func (p *Pool) writeStatus() {
	if p.statusPath == "" {
		return
	}
	doc := model.WorkersDocument{Workers: p.Snapshot()}
	if err := fsstore.WriteJSON(p.statusPath, doc); err != nil {
		log.Error("workerpool: writing workers.json", "error", err.Error())
	}
}
