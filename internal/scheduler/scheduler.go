// Package scheduler keeps the registry of asynchronous tasks. Callers create,
// query and kill tasks; a periodic Tick hands queued commands to the worker
// pool, applies worker messages and garbage collects stale tasks.
package scheduler

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aatumaykin/clusterd/internal/bus"
	"github.com/aatumaykin/clusterd/internal/commands"
	"github.com/aatumaykin/clusterd/internal/logger"
	"github.com/aatumaykin/clusterd/internal/security"
	"github.com/aatumaykin/clusterd/internal/workers"
)

// Pool is the part of the worker pool the scheduler drives.
type Pool interface {
	Submit(job workers.Job) error
	Cancel(taskID string) workers.CancelResult
	Stop()
}

// Inbox is the receiving side of the message channel.
type Inbox interface {
	Len() int
	TryReceive() (bus.Message, bool)
}

// Policy holds the garbage collection thresholds.
type Policy struct {
	// ResultRetention is how long a finished result waits to be fetched.
	ResultRetention time.Duration
	// MaxExecution bounds the time a task may spend in EXECUTED.
	MaxExecution time.Duration
	// IdleTimeout is how long a task may go without a client query.
	IdleTimeout time.Duration
}

// Validate checks that all thresholds are positive.
func (p Policy) Validate() error {
	if p.ResultRetention <= 0 || p.MaxExecution <= 0 || p.IdleTimeout <= 0 {
		return fmt.Errorf("invalid policy: all thresholds must be positive, got %+v", p)
	}
	return nil
}

// Config holds the scheduler dependencies besides the pool and the inbox.
type Config struct {
	Policy Policy
	// Clock defaults to time.Now.
	Clock func() time.Time
	// NewID defaults to a random 32 char hex id.
	NewID func() string
	// OnFatal is called when the pool refuses a job. The default logs and exits.
	OnFatal    func(err error)
	Prometheus *PrometheusMetrics
}

// Scheduler owns every task. All methods are safe for concurrent use;
// they are serialized with Tick by a single mutex.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	created []string
	closed  bool

	pool   Pool
	inbox  Inbox
	logger *logger.Logger

	policy  Policy
	now     func() time.Time
	newID   func() string
	onFatal func(err error)
	metrics *PrometheusMetrics
}

// New creates a scheduler.
func New(cfg Config, pool Pool, inbox Inbox, log *logger.Logger) (*Scheduler, error) {
	if pool == nil || inbox == nil {
		return nil, errors.New("scheduler requires a pool and an inbox")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Discard()
	}

	s := &Scheduler{
		tasks:   make(map[string]*Task),
		pool:    pool,
		inbox:   inbox,
		logger:  log,
		policy:  cfg.Policy,
		now:     cfg.Clock,
		newID:   cfg.NewID,
		onFatal: cfg.OnFatal,
		metrics: cfg.Prometheus,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = randomID
	}
	if s.onFatal == nil {
		s.onFatal = func(err error) {
			log.Error("worker pool refused a job, exiting", err)
			os.Exit(1)
		}
	}
	return s, nil
}

func randomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewTask registers a command and returns the new task id.
func (s *Scheduler) NewTask(cmd commands.Command) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrTerminated
	}

	id := s.newID()
	for {
		if _, taken := s.tasks[id]; !taken {
			break
		}
		id = s.newID()
	}

	s.tasks[id] = newTask(id, cmd, s.now())
	s.created = append(s.created, id)
	s.metrics.recordCreated()

	s.logger.Debug("task created",
		logger.Field{Key: "task_id", Value: id},
		logger.Field{Key: "command", Value: string(cmd.Name)},
		logger.Field{Key: "params", Value: security.RedactParams(cmd.Params)})
	return id, nil
}

// GetTask returns the task view and refreshes its activity time.
// A finished task is removed once read.
func (s *Scheduler) GetTask(id string) (TaskResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return TaskResult{}, &TaskNotFoundError{TaskID: id}
	}

	t.lastActivityAt = s.now()
	result := t.Result()
	if t.state == StateFinished {
		s.remove(id)
	}
	return result, nil
}

// KillTask requests the task to be killed on the next tick.
func (s *Scheduler) KillTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return &TaskNotFoundError{TaskID: id}
	}
	s.requestKill(t, KillReasonUser)
	return nil
}

// Terminate refuses new tasks and stops the worker pool. It is idempotent.
func (s *Scheduler) Terminate() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Info("terminating scheduler")
	s.pool.Stop()
}

func (s *Scheduler) requestKill(t *Task, reason KillReason) {
	if t.KillRequested() {
		return
	}
	t.requestKill(reason)
	s.metrics.recordKill(reason)
	s.logger.Debug("task kill requested",
		logger.Field{Key: "task_id", Value: t.id},
		logger.Field{Key: "reason", Value: string(reason)})
}

func (s *Scheduler) remove(id string) {
	delete(s.tasks, id)
}
