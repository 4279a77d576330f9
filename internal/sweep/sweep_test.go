package sweep

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleRejectsInvalidSpec(t *testing.T) {
	r := New()
	if _, err := r.Schedule("not a cron spec", 0, func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected an error for an invalid cron spec")
	}
}

func TestRunnerInvokesScheduledCheck(t *testing.T) {
	r := New()
	var calls int32
	done := make(chan struct{}, 1)
	_, err := r.Schedule("@every 10ms", time.Second, func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			select {
			case done <- struct{}{}:
			default:
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	r.Start()
	defer r.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled check never ran")
	}
}

func TestRunnerSkipsOverlappingRun(t *testing.T) {
	r := New()
	var concurrent int32
	var maxConcurrent int32
	release := make(chan struct{})
	entered := make(chan struct{}, 1)

	id, err := r.Schedule("@every 5ms", time.Second, func(ctx context.Context) error {
		n := atomic.AddInt32(&concurrent, 1)
		for {
			old := atomic.LoadInt32(&maxConcurrent)
			if n <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, n) {
				break
			}
		}
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		atomic.AddInt32(&concurrent, -1)
		return nil
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	r.Start()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("check never started")
	}
	time.Sleep(50 * time.Millisecond) // let several ticks attempt to overlap
	close(release)
	r.Stop()

	if atomic.LoadInt32(&maxConcurrent) > 1 {
		t.Fatalf("max concurrent runs = %d, want 1 (overlap guard failed)", maxConcurrent)
	}
	_ = id
}
