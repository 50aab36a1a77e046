package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunnerRunsInitialPayload(t *testing.T) {
	var got atomic.Value
	done := make(chan struct{}, 1)
	r := New("test", func(ctx context.Context, payload any) {
		got.Store(payload)
		select {
		case done <- struct{}{}:
		default:
		}
	}, nil)
	r.Start("boot")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial iteration")
	}
	if got.Load() != "boot" {
		t.Fatalf("expected initial payload %q, got %v", "boot", got.Load())
	}
	r.Cancel()
}

func TestRunnerTriggerCoalesces(t *testing.T) {
	var calls int32
	block := make(chan struct{})
	release := make(chan struct{})
	r := New("test", func(ctx context.Context, payload any) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			close(block)
			<-release
		}
	}, nil)
	r.Start(nil)
	<-block // first iteration is running and blocked

	r.Trigger("a")
	r.Trigger("b")
	r.Trigger("c")
	close(release)

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected coalesced triggers to produce exactly 1 extra call, got %d total", calls)
	}
	r.Cancel()
}

func TestRunnerTryPauseBlocksNextIteration(t *testing.T) {
	var calls int32
	r := New("test", func(ctx context.Context, payload any) {
		atomic.AddInt32(&calls, 1)
	}, nil)
	r.Start(nil)

	if !r.TryPause(time.Second) {
		t.Fatal("expected TryPause to succeed once the initial iteration completes")
	}

	r.Trigger("x")
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected paused runner to not start a new iteration, got %d calls", calls)
	}

	r.Resume()
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected resumed runner to process the pending trigger, got %d calls", calls)
	}
	r.Cancel()
}

func TestRunnerQueryIsRaceFree(t *testing.T) {
	var state int
	r := New("test", func(ctx context.Context, payload any) {
		state++
	}, nil)
	r.Start(nil)

	time.Sleep(20 * time.Millisecond)
	var observed int
	r.Query(func() { observed = state })
	if observed != 1 {
		t.Fatalf("expected query to observe state=1, got %d", observed)
	}
	r.Cancel()
}

func TestRunnerCancelStopsLoop(t *testing.T) {
	r := New("test", func(ctx context.Context, payload any) {
		<-ctx.Done()
	}, nil)
	r.Start(nil)
	r.Cancel()

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after Cancel")
	}
}
