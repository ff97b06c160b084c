package workers

import (
	"errors"
	"fmt"

	"github.com/aatumaykin/clusterd/internal/bus"
	"github.com/aatumaykin/clusterd/internal/logger"
	"github.com/aatumaykin/clusterd/internal/retry"
)

// worker is the goroutine driving one slot.
func (p *WorkerPool) worker(s *slot) {
	defer p.wg.Done()
	defer p.retire(s, "pool stopped")
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker panic recovered",
				fmt.Errorf("panic: %v", r),
				logger.Field{Key: "worker_id", Value: s.id})
		}
	}()

	p.logger.Debug("worker slot started", logger.Field{Key: "worker_id", Value: s.id})

	for {
		job, ok := p.next(s)
		if !ok {
			return
		}

		if s.proc == nil {
			if err := p.spawn(s); err != nil {
				p.logger.Error("failed to spawn worker", err,
					logger.Field{Key: "worker_id", Value: s.id},
					logger.Field{Key: "task_id", Value: job.TaskID})
				if !p.release(s, job) && !p.isClosed() {
					p.lose(job)
				}
				continue
			}
			if p.wasCancelled(s) {
				p.release(s, job)
				continue
			}
			// Stop ran while the process was starting
			if p.isClosed() {
				p.release(s, job)
				return
			}
		}

		alive := p.runJob(s, job)
		cancelled := p.release(s, job)
		s.executed++

		switch {
		case cancelled || !alive:
			p.retire(s, "terminated")
		case s.executed >= p.cfg.MaxTasksPerWorker:
			p.retire(s, "max tasks reached")
		}
	}
}

// spawn starts a fresh process for s, retrying with backoff.
func (p *WorkerPool) spawn(s *slot) error {
	var proc Process
	err := retry.Do(p.ctx, func() error {
		var err error
		proc, err = p.spawner.Spawn(p.ctx)
		return err
	}, p.cfg.SpawnRetry)
	if err != nil {
		return err
	}

	p.mu.Lock()
	s.proc = proc
	s.executed = 0
	p.metrics.WorkersSpawned++
	p.mu.Unlock()

	p.prom.recordSpawn()
	p.logger.Info("worker started",
		logger.Field{Key: "worker_id", Value: s.id},
		logger.Field{Key: "pid", Value: proc.Pid()})
	return nil
}

func (p *WorkerPool) wasCancelled(s *slot) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return s.cancelled
}

// runJob sends job to the slot's process and forwards its messages until the
// job finishes. It returns false when the process is no longer usable.
func (p *WorkerPool) runJob(s *slot, job Job) bool {
	log := p.logger.With(
		logger.Field{Key: "worker_id", Value: s.id},
		logger.Field{Key: "pid", Value: s.proc.Pid()},
		logger.Field{Key: "task_id", Value: job.TaskID})

	if err := s.proc.Send(job); err != nil {
		log.Warn("failed to send job to worker", logger.Field{Key: "error", Value: err.Error()})
		p.abandon(s, job)
		return false
	}

	for {
		msg, err := s.proc.Receive()
		if err != nil {
			log.Warn("worker exited before finishing job", logger.Field{Key: "error", Value: err.Error()})
			p.abandon(s, job)
			return false
		}

		if msg.TaskID != job.TaskID {
			log.Warn("worker sent message for another task",
				logger.Field{Key: "message_task_id", Value: msg.TaskID},
				logger.Field{Key: "type", Value: msg.Type})
		}

		if err := p.channel.Publish(p.ctx, msg); err != nil {
			log.Error("failed to forward worker message", err, logger.Field{Key: "type", Value: msg.Type})
		}

		if msg.Type == bus.MessageFinished && msg.TaskID == job.TaskID {
			p.mu.Lock()
			p.metrics.JobsCompleted++
			p.mu.Unlock()
			p.prom.recordJob("completed")
			return true
		}
	}
}

// abandon handles a job whose worker went away. Unless the job was cancelled
// or the pool is stopping, the task is finished as an unhandled failure so it
// does not wait forever.
func (p *WorkerPool) abandon(s *slot, job Job) {
	if p.wasCancelled(s) || p.isClosed() {
		return
	}
	p.lose(job)
}

func (p *WorkerPool) lose(job Job) {
	p.mu.Lock()
	p.metrics.JobsLost++
	p.mu.Unlock()
	p.prom.recordJob("lost")

	msg, err := bus.NewFinishedMessage(job.TaskID, bus.OutcomeUnhandledException, nil)
	if err == nil {
		err = p.channel.Publish(p.ctx, msg)
	}
	if err != nil && !errors.Is(err, bus.ErrChannelClosed) {
		p.logger.Error("failed to publish finished message for lost job", err,
			logger.Field{Key: "task_id", Value: job.TaskID})
	}
}

// retire closes the slot's process, if any.
func (p *WorkerPool) retire(s *slot, reason string) {
	p.mu.Lock()
	proc := s.proc
	s.proc = nil
	if proc != nil {
		p.metrics.WorkersRecycled++
	}
	p.mu.Unlock()

	if proc == nil {
		return
	}
	p.prom.recordRecycle()

	pid := proc.Pid()
	if err := proc.Close(p.cfg.StopTimeout); err != nil {
		p.logger.Warn("worker did not exit cleanly",
			logger.Field{Key: "worker_id", Value: s.id},
			logger.Field{Key: "pid", Value: pid},
			logger.Field{Key: "error", Value: err.Error()})
	}
	p.logger.Debug("worker retired",
		logger.Field{Key: "worker_id", Value: s.id},
		logger.Field{Key: "pid", Value: pid},
		logger.Field{Key: "reason", Value: reason})
}
