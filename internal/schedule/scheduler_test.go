package schedule

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeExecutor struct {
	mu    sync.Mutex
	runs  []string
	done  chan string
	block chan struct{}
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{done: make(chan string, 16)}
}

func (f *fakeExecutor) RunPipeline(ctx context.Context, name string) error {
	f.mu.Lock()
	f.runs = append(f.runs, name)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.done <- name
	return nil
}

func (f *fakeExecutor) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func waitForRun(t *testing.T, f *fakeExecutor) string {
	t.Helper()
	select {
	case name := <-f.done:
		return name
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job run")
		return ""
	}
}

func TestAddJobValidation(t *testing.T) {
	s := NewScheduler(newFakeExecutor())
	if err := s.AddJob(&Job{Name: "", Pipeline: "p"}); err == nil {
		t.Error("expected error for missing name")
	}
	if err := s.AddJob(&Job{Name: "j", Pipeline: ""}); err == nil {
		t.Error("expected error for missing pipeline")
	}
	err := s.AddJob(&Job{Name: "j", Pipeline: "p", ScheduleType: "SOMETIMES", Enabled: true})
	if err == nil {
		t.Error("expected error for unknown schedule type")
	}
}

func TestCronJobScheduling(t *testing.T) {
	s := NewScheduler(newFakeExecutor())

	err := s.AddJob(&Job{
		Name: "nightly", Pipeline: "p", ScheduleType: "CRON",
		CronExpr: "0 0 3 * * *", Enabled: true,
	})
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	jobs := s.Jobs()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].NextRunAt == nil || !jobs[0].NextRunAt.After(time.Now()) {
		t.Error("NextRunAt not set to a future time")
	}

	if err := s.AddJob(&Job{
		Name: "bad", Pipeline: "p", ScheduleType: "CRON",
		CronExpr: "not a cron", Enabled: true,
	}); err == nil {
		t.Error("expected error for invalid CRON expression")
	}
}

func TestOnceJobRuns(t *testing.T) {
	exec := newFakeExecutor()
	s := NewScheduler(exec)

	runAt := time.Now().Add(-time.Second) // already due
	job := &Job{
		Name: "one-shot", Pipeline: "load", ScheduleType: "ONCE",
		RunAt: &runAt, Enabled: true,
	}
	if err := s.AddJob(job); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	s.checkIntervalJobs(time.Now())
	if got := waitForRun(t, exec); got != "load" {
		t.Errorf("ran pipeline %q, want load", got)
	}
	if job.Enabled {
		t.Error("ONCE job still enabled after run")
	}

	// a second sweep must not run it again
	s.checkIntervalJobs(time.Now())
	time.Sleep(50 * time.Millisecond)
	if n := exec.runCount(); n != 1 {
		t.Errorf("job ran %d times, want 1", n)
	}
}

func TestNoOverlapSkips(t *testing.T) {
	exec := newFakeExecutor()
	exec.block = make(chan struct{})
	s := NewScheduler(exec)

	runAt := time.Now().Add(-time.Second)
	job := &Job{
		Name: "slow", Pipeline: "p", ScheduleType: "ONCE",
		RunAt: &runAt, Enabled: true, NoOverlap: true,
	}
	if err := s.AddJob(job); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	s.executeJob(job)
	// wait until the first run has registered itself
	deadline := time.Now().Add(time.Second)
	for exec.runCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	s.executeJob(job) // skipped, first run still in flight
	close(exec.block)
	waitForRun(t, exec)

	time.Sleep(50 * time.Millisecond)
	if n := exec.runCount(); n != 1 {
		t.Errorf("job ran %d times, want 1", n)
	}
}

func TestCalculateNextRunInterval(t *testing.T) {
	s := NewScheduler(newFakeExecutor())

	job := &Job{Name: "j", Pipeline: "p", ScheduleType: "INTERVAL", IntervalMs: 60_000}
	s.calculateNextRun(job)
	if job.NextRunAt == nil {
		t.Fatal("NextRunAt not set")
	}
	if d := time.Until(*job.NextRunAt); d < 55*time.Second || d > 65*time.Second {
		t.Errorf("next run in %v, want about a minute", d)
	}

	t.Run("catch up", func(t *testing.T) {
		last := time.Now().Add(-10 * time.Minute)
		job := &Job{
			Name: "j", Pipeline: "p", ScheduleType: "INTERVAL",
			IntervalMs: 60_000, CatchUp: true, LastRunAt: &last,
		}
		s.calculateNextRun(job)
		if job.NextRunAt == nil {
			t.Fatal("NextRunAt not set")
		}
		if !job.NextRunAt.After(time.Now()) {
			t.Error("catch-up next run not in the future")
		}
		if d := time.Until(*job.NextRunAt); d > time.Minute {
			t.Errorf("catch-up overshot: next run in %v", d)
		}
	})

	t.Run("invalid interval", func(t *testing.T) {
		job := &Job{Name: "j", Pipeline: "p", ScheduleType: "INTERVAL", IntervalMs: 0}
		s.calculateNextRun(job)
		if job.NextRunAt != nil {
			t.Error("NextRunAt set despite zero interval")
		}
	})
}

func TestRemoveJob(t *testing.T) {
	s := NewScheduler(newFakeExecutor())
	if err := s.RemoveJob("ghost"); err == nil {
		t.Error("expected error for unknown job")
	}
	if err := s.AddJob(&Job{Name: "j", Pipeline: "p", ScheduleType: "INTERVAL", IntervalMs: 1000}); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := s.RemoveJob("j"); err != nil {
		t.Fatalf("RemoveJob: %v", err)
	}
	if len(s.Jobs()) != 0 {
		t.Error("job still registered after removal")
	}
}
