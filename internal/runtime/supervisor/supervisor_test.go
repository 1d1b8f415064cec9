package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRestartRecoversPanics(t *testing.T) {
	sup := New(context.Background())
	var runs atomic.Int32
	done := make(chan struct{})

	sup.GoRestart("flaky", func(ctx context.Context) error {
		switch runs.Add(1) {
		case 1:
			panic("boom")
		case 2:
			return errors.New("transient")
		default:
			close(done)
			<-ctx.Done()
			return ctx.Err()
		}
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("task was not restarted; runs = %d", runs.Load())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	snap := sup.Snapshot()
	if len(snap) != 1 || snap[0].Restarts != 2 || snap[0].Panics != 1 || snap[0].Running {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestGoErrorCancelsWhenConfigured(t *testing.T) {
	sup := New(context.Background(), WithCancelOnError(true))
	sup.Go("fails", func(ctx context.Context) error { return errors.New("fatal") })

	select {
	case <-sup.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("context not cancelled")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sup.Wait(ctx); err == nil || err.Error() != "fails: fatal" {
		t.Fatalf("Wait err = %v, want fails: fatal", err)
	}
}

func TestGoRestartGivesUp(t *testing.T) {
	sup := New(context.Background())
	var runs atomic.Int32
	sup.GoRestart("never", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("nope")
	}, WithRestartBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Wait(ctx); err == nil {
		t.Fatalf("Wait err = nil, want failure")
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}
