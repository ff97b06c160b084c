package workers

import (
	"context"
	"slices"
	"sync"

	"github.com/aatumaykin/clusterd/internal/bus"
	"github.com/aatumaykin/clusterd/internal/logger"
)

// WorkerPool manages a fixed number of worker slots. Each slot owns at most
// one worker process, runs one job at a time on it and forwards the job's
// messages to the message channel.
type WorkerPool struct {
	cfg     Config
	spawner Spawner
	channel *bus.Channel
	logger  *logger.Logger
	prom    *PrometheusMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	cond    *sync.Cond
	pending []Job
	slots   []*slot
	running map[string]*slot
	closed  bool
	metrics PoolMetrics
}

// slot is the pool side of one worker.
type slot struct {
	id        int
	proc      Process
	executed  int
	job       *Job
	cancelled bool
}

// NewPool creates a new worker pool. Call Start to launch its slots.
func NewPool(cfg Config, spawner Spawner, channel *bus.Channel, log *logger.Logger) *WorkerPool {
	if cfg.Size <= 0 {
		cfg.Size = DefaultPoolSize
	}
	if cfg.MaxTasksPerWorker <= 0 {
		cfg.MaxTasksPerWorker = DefaultMaxTasksPerWorker
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.SpawnRetry.Logger == nil {
		cfg.SpawnRetry.Logger = log
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		cfg:     cfg,
		spawner: spawner,
		channel: channel,
		logger:  log,
		prom:    cfg.Prometheus,
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]*slot),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the worker slots.
func (p *WorkerPool) Start() {
	p.logger.Info("starting worker pool",
		logger.Field{Key: "workers", Value: p.cfg.Size},
		logger.Field{Key: "max_tasks_per_worker", Value: p.cfg.MaxTasksPerWorker})

	p.mu.Lock()
	for i := 0; i < p.cfg.Size; i++ {
		p.slots = append(p.slots, &slot{id: i})
	}
	slots := p.slots
	p.mu.Unlock()

	for _, s := range slots {
		p.wg.Add(1)
		go p.worker(s)
	}
}

// Submit queues job for execution. It never blocks.
func (p *WorkerPool) Submit(job Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.pending = append(p.pending, job)
	p.metrics.JobsSubmitted++
	p.metrics.Pending = len(p.pending)
	p.prom.setQueue(p.metrics.Pending, p.metrics.Busy)
	p.cond.Signal()

	p.logger.Debug("job submitted",
		logger.Field{Key: "task_id", Value: job.TaskID},
		logger.Field{Key: "command", Value: job.Command.Name})
	return nil
}

// Cancel withdraws the job of taskID. A queued job is dropped; a running job
// has its worker terminated.
func (p *WorkerPool) Cancel(taskID string) CancelResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i := slices.IndexFunc(p.pending, func(j Job) bool { return j.TaskID == taskID }); i >= 0 {
		p.pending = slices.Delete(p.pending, i, i+1)
		p.metrics.JobsCancelled++
		p.metrics.Pending = len(p.pending)
		p.prom.recordJob("cancelled")
		p.prom.setQueue(p.metrics.Pending, p.metrics.Busy)
		p.logger.Debug("pending job cancelled", logger.Field{Key: "task_id", Value: taskID})
		return CancelPending
	}

	s, ok := p.running[taskID]
	if !ok {
		return CancelNotFound
	}
	if !s.cancelled {
		s.cancelled = true
		p.metrics.JobsCancelled++
		p.prom.recordJob("cancelled")
		if s.proc != nil {
			if err := s.proc.Terminate(); err != nil {
				p.logger.Warn("failed to terminate worker",
					logger.Field{Key: "worker_id", Value: s.id},
					logger.Field{Key: "pid", Value: s.proc.Pid()},
					logger.Field{Key: "error", Value: err.Error()})
			}
		}
		p.logger.Info("running job cancelled",
			logger.Field{Key: "task_id", Value: taskID},
			logger.Field{Key: "worker_id", Value: s.id})
	}
	return CancelRunning
}

// Stop shuts the pool down. Queued jobs are dropped and running workers are
// terminated. Stop waits for every slot to exit.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	dropped := len(p.pending)
	p.pending = nil
	p.metrics.Pending = 0
	for _, s := range p.running {
		if s.proc != nil {
			_ = s.proc.Terminate()
		}
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	metrics := p.Metrics()
	p.logger.Info("worker pool stopped",
		logger.Field{Key: "jobs_dropped", Value: dropped},
		logger.Field{Key: "jobs_submitted", Value: metrics.JobsSubmitted},
		logger.Field{Key: "jobs_completed", Value: metrics.JobsCompleted},
		logger.Field{Key: "workers_spawned", Value: metrics.WorkersSpawned})
}

// WorkerCount returns the number of slots.
func (p *WorkerPool) WorkerCount() int {
	return p.cfg.Size
}

// Pids returns the process ids of the live workers, sorted.
func (p *WorkerPool) Pids() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	var pids []int
	for _, s := range p.slots {
		if s.proc != nil {
			pids = append(pids, s.proc.Pid())
		}
	}
	slices.Sort(pids)
	return pids
}

// QueueSize returns the current number of jobs waiting for a worker.
func (p *WorkerPool) QueueSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// next blocks until a job is available and claims it for s.
func (p *WorkerPool) next(s *slot) (Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.pending) == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return Job{}, false
	}

	job := p.pending[0]
	p.pending = slices.Delete(p.pending, 0, 1)
	s.job = &job
	s.cancelled = false
	p.running[job.TaskID] = s
	p.metrics.Pending = len(p.pending)
	p.metrics.Busy++
	p.prom.setQueue(p.metrics.Pending, p.metrics.Busy)
	return job, true
}

// release detaches the job from s and reports whether it was cancelled.
func (p *WorkerPool) release(s *slot, job Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.running, job.TaskID)
	s.job = nil
	p.metrics.Busy--
	p.prom.setQueue(p.metrics.Pending, p.metrics.Busy)
	return s.cancelled
}

func (p *WorkerPool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
