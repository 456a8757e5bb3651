// Package schedule runs registered pipeline jobs on CRON expressions,
// fixed intervals, or at a single point in time.
package schedule

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobExecutor decouples the scheduler from pipeline execution. Jobs
// reference pipelines by name.
type JobExecutor interface {
	RunPipeline(ctx context.Context, name string) error
}

// Job describes one scheduled pipeline run.
type Job struct {
	Name         string
	Pipeline     string
	ScheduleType string // CRON, INTERVAL or ONCE
	CronExpr     string // CRON: six-field expression with seconds
	Timezone     string // CRON: IANA zone name, UTC when empty
	IntervalMs   int64  // INTERVAL: distance between runs
	RunAt        *time.Time
	Enabled      bool
	NoOverlap    bool  // skip a run while the previous one is still going
	MaxRuntimeMs int64 // per-run timeout, 5 minutes when zero
	CatchUp      bool  // INTERVAL: schedule from last run instead of now

	LastRunAt *time.Time
	NextRunAt *time.Time
}

// jobExecution tracks a running job instance
type jobExecution struct {
	startTime time.Time
	cancelFn  context.CancelFunc
}

// Scheduler manages scheduled job execution.
type Scheduler struct {
	cron     *cron.Cron
	mu       sync.RWMutex
	jobs     map[string]*Job
	running  map[string]*jobExecution
	stopCh   chan struct{}
	executor JobExecutor
}

// NewScheduler creates a scheduler that hands due jobs to executor.
func NewScheduler(executor JobExecutor) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC), cron.WithSeconds()),
		jobs:     make(map[string]*Job),
		running:  make(map[string]*jobExecution),
		stopCh:   make(chan struct{}),
		executor: executor,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, job := range s.jobs {
		if !job.Enabled {
			continue
		}
		if err := s.scheduleJob(job); err != nil {
			log.Printf("Failed to schedule job %q: %v", job.Name, err)
			continue
		}
		count++
	}

	s.cron.Start()
	go s.runIntervalScheduler()

	log.Printf("Job scheduler started with %d jobs", count)
	return nil
}

// Stop halts the scheduler and cancels all running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()

	close(s.stopCh)

	for name, exec := range s.running {
		log.Printf("Canceling running job %q", name)
		exec.cancelFn()
	}

	log.Println("Job scheduler stopped")
}

// AddJob registers a new job and schedules it immediately if enabled.
func (s *Scheduler) AddJob(job *Job) error {
	if job.Name == "" || job.Pipeline == "" {
		return fmt.Errorf("job needs a name and a pipeline")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.Name] = job
	if job.Enabled {
		return s.scheduleJob(job)
	}
	return nil
}

// RemoveJob unregisters a job and cancels its current run if any.
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	if exec, ok := s.running[name]; ok {
		exec.cancelFn()
		delete(s.running, name)
	}
	delete(s.jobs, name)
	return nil
}

// Jobs returns a snapshot of all registered jobs.
func (s *Scheduler) Jobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// scheduleJob registers a job with the appropriate scheduler
func (s *Scheduler) scheduleJob(job *Job) error {
	switch job.ScheduleType {
	case "CRON":
		return s.scheduleCronJob(job)
	case "INTERVAL":
		// Handled by interval scheduler
		s.calculateNextRun(job)
		return nil
	case "ONCE":
		// Handled by interval scheduler
		if job.RunAt != nil {
			job.NextRunAt = job.RunAt
		}
		return nil
	default:
		return fmt.Errorf("unknown schedule type: %s", job.ScheduleType)
	}
}

// scheduleCronJob registers a CRON-based job
func (s *Scheduler) scheduleCronJob(job *Job) error {
	if job.CronExpr == "" {
		return fmt.Errorf("CRON expression empty for job %q", job.Name)
	}

	loc := time.UTC
	if job.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(job.Timezone)
		if err != nil {
			log.Printf("Invalid timezone %q for job %q, using UTC", job.Timezone, job.Name)
			loc = time.UTC
		}
	}

	schedule, err := cronParser().Parse(job.CronExpr)
	if err != nil {
		return fmt.Errorf("invalid CRON expression %q: %w", job.CronExpr, err)
	}

	nextRun := schedule.Next(time.Now().In(loc))
	job.NextRunAt = &nextRun

	_, err = s.cron.AddFunc(job.CronExpr, func() {
		s.executeJob(job)
	})
	return err
}

func cronParser() cron.Parser {
	return cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// runIntervalScheduler handles INTERVAL and ONCE jobs
func (s *Scheduler) runIntervalScheduler() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.checkIntervalJobs(now)
		}
	}
}

// checkIntervalJobs runs any INTERVAL or ONCE jobs that are due
func (s *Scheduler) checkIntervalJobs(now time.Time) {
	s.mu.RLock()
	due := make([]*Job, 0)
	for _, job := range s.jobs {
		if !job.Enabled {
			continue
		}
		if job.ScheduleType != "INTERVAL" && job.ScheduleType != "ONCE" {
			continue
		}
		if job.NextRunAt == nil {
			continue
		}
		if now.After(*job.NextRunAt) || now.Equal(*job.NextRunAt) {
			due = append(due, job)
		}
	}
	s.mu.RUnlock()

	for _, job := range due {
		s.executeJob(job)

		// ONCE jobs run a single time
		if job.ScheduleType == "ONCE" {
			s.mu.Lock()
			job.Enabled = false
			job.NextRunAt = nil
			s.mu.Unlock()
		}
	}
}

// executeJob runs a job's pipeline with proper concurrency control
func (s *Scheduler) executeJob(job *Job) {
	s.mu.Lock()

	if job.NoOverlap {
		if _, isRunning := s.running[job.Name]; isRunning {
			s.mu.Unlock()
			log.Printf("Job %q already running, skipping (no_overlap=true)", job.Name)
			return
		}
	}

	timeout := time.Duration(job.MaxRuntimeMs) * time.Millisecond
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	exec := &jobExecution{
		startTime: time.Now(),
		cancelFn:  cancel,
	}
	s.running[job.Name] = exec
	s.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.running, job.Name)
			lastRun := exec.startTime
			job.LastRunAt = &lastRun
			s.calculateNextRun(job)
			s.mu.Unlock()
		}()

		log.Printf("Executing job %q (pipeline %q)", job.Name, job.Pipeline)

		if s.executor == nil {
			log.Printf("Job %q skipped (no executor configured)", job.Name)
			return
		}
		if err := s.executor.RunPipeline(ctx, job.Pipeline); err != nil {
			log.Printf("Job %q failed: %v", job.Name, err)
		} else {
			log.Printf("Job %q completed successfully", job.Name)
		}
	}()
}

// calculateNextRun computes the next execution time based on schedule type
func (s *Scheduler) calculateNextRun(job *Job) {
	now := time.Now()

	switch job.ScheduleType {
	case "INTERVAL":
		if job.IntervalMs <= 0 {
			log.Printf("Invalid interval for job %q", job.Name)
			return
		}

		interval := time.Duration(job.IntervalMs) * time.Millisecond

		switch {
		case job.LastRunAt == nil:
			nextRun := now.Add(interval)
			job.NextRunAt = &nextRun
		case job.CatchUp:
			// Catch up missed runs
			nextRun := job.LastRunAt.Add(interval)
			for nextRun.Before(now) {
				nextRun = nextRun.Add(interval)
			}
			job.NextRunAt = &nextRun
		default:
			nextRun := now.Add(interval)
			job.NextRunAt = &nextRun
		}

	case "CRON":
		// the cron library drives execution, this only tracks bookkeeping
		if job.CronExpr != "" {
			if schedule, err := cronParser().Parse(job.CronExpr); err == nil {
				loc := time.UTC
				if job.Timezone != "" {
					if l, err := time.LoadLocation(job.Timezone); err == nil {
						loc = l
					}
				}
				nextRun := schedule.Next(now.In(loc))
				job.NextRunAt = &nextRun
			}
		}

	case "ONCE":
		// already set during registration
	}
}
