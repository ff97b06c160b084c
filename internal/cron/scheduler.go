// Package cron drives periodic daemon jobs with robfig/cron/v3.
// Every job runs through SkipIfStillRunning, so two runs of the same job
// never overlap, and through Recover, so a panicking job keeps its schedule.
package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aatumaykin/clusterd/internal/logger"
)

var (
	ErrAlreadyStarted = errors.New("cron scheduler already started")
	ErrNotStarted     = errors.New("cron scheduler not started")
	ErrDuplicateJob   = errors.New("cron job already registered")
)

// Job is a periodic job. Interval takes precedence over Schedule.
type Job struct {
	Name     string
	Schedule string        // cron expression or descriptor, e.g. "@every 1m"
	Interval time.Duration // fixed interval, sub-second values allowed
	Run      func(ctx context.Context)
}

// Scheduler runs registered jobs until stopped.
type Scheduler struct {
	cron   *cron.Cron
	logger *logger.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	entries map[string]cron.EntryID
}

// NewScheduler creates a new cron scheduler instance
func NewScheduler(log *logger.Logger) *Scheduler {
	adapter := cronLogger{log: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger:  log,
		entries: make(map[string]cron.EntryID),
	}
}

// AddJob registers a job. Jobs may be added before or after Start.
func (s *Scheduler) AddJob(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("cron job requires a name and a run function")
	}

	schedule, err := job.schedule()
	if err != nil {
		return fmt.Errorf("job %q: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[job.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}

	run := job.Run
	entryID := s.cron.Schedule(schedule, cron.FuncJob(func() {
		run(s.jobContext())
	}))
	s.entries[job.Name] = entryID

	s.logger.Info("cron job added",
		logger.Field{Key: "job", Value: job.Name},
		logger.Field{Key: "schedule", Value: job.describe()},
		logger.Field{Key: "entry_id", Value: entryID})
	return nil
}

// RemoveJob unregisters a job by name.
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("cron job %q not found", name)
	}
	s.cron.Remove(entryID)
	delete(s.entries, name)

	s.logger.Info("cron job removed", logger.Field{Key: "job", Value: name})
	return nil
}

// Jobs lists registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start starts running jobs. The context passed to jobs is cancelled on Stop
// or when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.cron.Start()
	s.logger.Info("cron scheduler started", logger.Field{Key: "jobs", Value: len(s.entries)})
	return nil
}

// Stop stops the scheduler and waits for running jobs to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("cron scheduler stopped")
	return nil
}

// IsStarted reports whether the scheduler is running.
func (s *Scheduler) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}
