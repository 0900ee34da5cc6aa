package deviceapi

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPollReturnsOnDone(t *testing.T) {
	calls := 0
	cfg := BackoffConfig{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2, StallWindow: time.Second}

	progress, err := Poll(context.Background(), cfg, func(ctx context.Context) (JobProgress, error) {
		calls++
		if calls >= 3 {
			return JobProgress{Done: true, PercentComplete: 100}, nil
		}
		return JobProgress{Done: false, PercentComplete: calls * 10}, nil
	})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !progress.Done || progress.PercentComplete != 100 {
		t.Fatalf("got %+v", progress)
	}
	if calls != 3 {
		t.Fatalf("got %d calls, want 3", calls)
	}
}

func TestPollPropagatesFnError(t *testing.T) {
	wantErr := errors.New("boom")
	cfg := BackoffConfig{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1, StallWindow: time.Second}

	_, err := Poll(context.Background(), cfg, func(ctx context.Context) (JobProgress, error) {
		return JobProgress{}, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestPollReturnsErrStallWhenProgressNeverChanges(t *testing.T) {
	cfg := BackoffConfig{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1, StallWindow: 20 * time.Millisecond}

	_, err := Poll(context.Background(), cfg, func(ctx context.Context) (JobProgress, error) {
		return JobProgress{Done: false, PercentComplete: 50}, nil
	})
	if !errors.Is(err, ErrStall) {
		t.Fatalf("got %v, want ErrStall", err)
	}
}

func TestPollStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := BackoffConfig{Initial: 10 * time.Millisecond, Max: 10 * time.Millisecond, Multiplier: 1, StallWindow: time.Minute}

	done := make(chan error, 1)
	go func() {
		_, err := Poll(ctx, cfg, func(ctx context.Context) (JobProgress, error) {
			return JobProgress{Done: false, PercentComplete: 1}, nil
		})
		done <- err
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Poll did not return after cancellation")
	}
}

func TestBackoffNextGrowsAndCaps(t *testing.T) {
	cfg := BackoffConfig{Initial: 10 * time.Millisecond, Max: 40 * time.Millisecond, Multiplier: 2}

	for attempt := 0; attempt < 10; attempt++ {
		d := cfg.next(attempt)
		if d <= 0 {
			t.Fatalf("attempt %d: got non-positive duration %v", attempt, d)
		}
		// jitter is +/-20% of the theoretical value, and the theoretical
		// value itself never exceeds Max, so every sample must stay under
		// Max*1.2 plus a small margin.
		if d > cfg.Max+cfg.Max/2 {
			t.Fatalf("attempt %d: got %v, want capped near %v", attempt, d, cfg.Max)
		}
	}
}
