package fsstore

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/natej/panos-upgrade/internal/log"
)

// Watcher wraps fsnotify to deliver an event-driven nudge on top of a
// component's periodic poll, so a new job or command file is picked up
// promptly instead of waiting for the next tick. It is advisory only:
// every caller must keep polling on its own interval, since fsnotify can
// silently drop events under load or on some file systems.
type Watcher struct {
	fsw *fsnotify.Watcher
	ch  chan struct{}
}

// NewWatcher starts watching dir for create/write/rename events. If the
// underlying inotify/kqueue watch cannot be established (e.g. the platform
// doesn't support it, or a file descriptor limit is hit), it returns a
// Watcher whose Notify channel never fires; callers fall back to pure
// polling, matching "this is an attempt, not a guarantee" in spec §5.
func NewWatcher(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("fsnotify unavailable, falling back to pure polling", "error", err)
		return &Watcher{ch: make(chan struct{})}, nil
	}
	if err := fsw.Add(dir); err != nil {
		log.Warn("fsnotify add watch failed, falling back to pure polling", "dir", dir, "error", err)
		fsw.Close()
		return &Watcher{ch: make(chan struct{})}, nil
	}

	w := &Watcher{fsw: fsw, ch: make(chan struct{}, 1)}
	go w.pump()
	return w, nil
}

func (w *Watcher) pump() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case w.ch <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn("fsnotify watch error", "error", err)
		}
	}
}

// Notify returns a channel that receives a value shortly after a relevant
// file-system event. Unbuffered beyond one pending wakeup: bursts of
// writes coalesce into a single nudge.
func (w *Watcher) Notify() <-chan struct{} {
	return w.ch
}

// Close stops the underlying watch.
func (w *Watcher) Close() error {
	if w.fsw == nil {
		return nil
	}
	return w.fsw.Close()
}

// Wait blocks until either the watcher nudges, interval elapses, or ctx is
// cancelled. Components use this to poll "every few hundred ms, or sooner
// if fsnotify fires".
func Wait(ctx context.Context, w *Watcher, interval time.Duration) {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-w.Notify():
	case <-timer.C:
	}
}
