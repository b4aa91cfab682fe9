package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestAddJob(t *testing.T) {
	var mu sync.Mutex
	var calls int

	sched := New(nil)
	err := sched.AddJob("pr-sweep", "@every 1s", func(context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	if sched.JobCount() != 1 {
		t.Errorf("JobCount = %d", sched.JobCount())
	}

	// Start cron and wait for it to fire
	sched.cron.Start()
	time.Sleep(1500 * time.Millisecond)
	<-sched.cron.Stop().Done()

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Error("expected at least one call")
	}
	jobs := sched.Jobs()
	if jobs[0].LastRun.IsZero() {
		t.Error("expected last run to be recorded")
	}
}

func TestAddJob_ReplacesByName(t *testing.T) {
	sched := New(nil)
	noop := func(context.Context) error { return nil }
	sched.AddJob("pr-sweep", "@every 5m", noop)
	sched.AddJob("pr-sweep", "@every 10m", noop)

	if sched.JobCount() != 1 {
		t.Fatalf("JobCount = %d", sched.JobCount())
	}
	if got := sched.Jobs()[0].Schedule; got != "@every 10m" {
		t.Errorf("expected schedule '@every 10m', got %q", got)
	}
	if len(sched.cron.Entries()) != 1 {
		t.Errorf("expected 1 cron entry, got %d", len(sched.cron.Entries()))
	}
}

func TestInvalidSchedule(t *testing.T) {
	sched := New(nil)
	err := sched.AddJob("pr-sweep", "invalid-cron", func(context.Context) error { return nil })
	if err == nil {
		t.Error("expected error for invalid schedule")
	}
	if sched.JobCount() != 0 {
		t.Errorf("JobCount = %d", sched.JobCount())
	}
}

func TestRunNow_RecordsError(t *testing.T) {
	sched := New(nil)
	fn := func(context.Context) error { return errors.New("github down") }
	sched.AddJob("pr-sweep", "@every 1h", fn)

	if err := sched.RunNow(context.Background(), "pr-sweep", fn); err == nil {
		t.Fatal("expected error")
	}
	if got := sched.Jobs()[0].LastErr; got != "github down" {
		t.Errorf("expected last error 'github down', got %q", got)
	}

	if err := sched.RunNow(context.Background(), "missing", fn); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestRemoveJob(t *testing.T) {
	sched := New(nil)
	sched.AddJob("a", "@every 1h", func(context.Context) error { return nil })
	sched.RemoveJob("a")
	if sched.JobCount() != 0 {
		t.Errorf("JobCount = %d", sched.JobCount())
	}
}

func TestStartStops(t *testing.T) {
	sched := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Start(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !sched.Running() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !sched.Running() {
		t.Fatal("expected scheduler to be running")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if sched.Running() {
		t.Error("expected scheduler to be stopped")
	}
}
