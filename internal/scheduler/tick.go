package scheduler

import (
	"errors"
	"time"

	"github.com/aatumaykin/clusterd/internal/bus"
	"github.com/aatumaykin/clusterd/internal/logger"
	"github.com/aatumaykin/clusterd/internal/workers"
)

// Tick runs one scheduling round: dispatch created tasks, drain worker
// messages, collect killed tasks and hunt stale ones.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if !s.dispatch() {
		return
	}
	s.drain()
	s.collect()
	s.hunt()
	s.metrics.observeTick(time.Since(start), s.statsLocked())
}

// dispatch submits created tasks in creation order. It returns false when the
// pool refused a job.
func (s *Scheduler) dispatch() bool {
	for len(s.created) > 0 {
		id := s.created[0]
		t, ok := s.tasks[id]
		if !ok || t.state != StateCreated || t.KillRequested() {
			s.created = s.created[1:]
			continue
		}

		if err := s.pool.Submit(workers.Job{TaskID: id, Command: t.command}); err != nil {
			s.logger.Error("failed to submit task", err, logger.Field{Key: "task_id", Value: id})
			s.onFatal(err)
			return false
		}

		s.created = s.created[1:]
		if err := t.transition(StateQueued); err != nil {
			s.logger.Error("task state corrupted", err, logger.Field{Key: "task_id", Value: id})
		}
	}
	return true
}

// drain applies the messages present at the start of the pass.
func (s *Scheduler) drain() {
	now := s.now()
	for n := s.inbox.Len(); n > 0; n-- {
		msg, ok := s.inbox.TryReceive()
		if !ok {
			return
		}

		t, known := s.tasks[msg.TaskID]
		if !known {
			s.metrics.recordOrphan()
			s.logger.Error("message for unknown task", nil,
				logger.Field{Key: "task_id", Value: msg.TaskID},
				logger.Field{Key: "type", Value: string(msg.Type)})
			continue
		}

		wasFinished := t.state == StateFinished
		if err := t.receive(msg, now); err != nil {
			s.metrics.recordViolation()
			s.logger.Error("worker message rejected", err,
				logger.Field{Key: "task_id", Value: msg.TaskID},
				logger.Field{Key: "type", Value: string(msg.Type)},
				logger.Field{Key: "state", Value: string(t.state)})
			// a finished result stays readable
			if !wasFinished {
				s.requestKill(t, KillReasonInternalMessagingError)
			}
			continue
		}

		s.metrics.recordMessage(msg.Type)
		if !wasFinished && t.state == StateFinished {
			s.metrics.recordFinished(t.outcome)
		}
	}
}

// collect kills tasks with a pending kill request. A task that was running
// stays one more tick so late messages of its worker are drained silently.
func (s *Scheduler) collect() {
	now := s.now()
	for id, t := range s.tasks {
		if !t.KillRequested() {
			continue
		}
		if t.killed {
			s.remove(id)
			continue
		}

		wasRunning := t.state == StateQueued || t.state == StateExecuted
		wasFinished := t.state == StateFinished
		cancel := workers.CancelNotFound
		if wasRunning {
			cancel = s.pool.Cancel(id)
		}

		t.kill(now)
		if !wasFinished {
			s.metrics.recordFinished(bus.OutcomeKill)
		}
		s.logger.Info("task killed",
			logger.Field{Key: "task_id", Value: id},
			logger.Field{Key: "reason", Value: string(t.killReason)},
			logger.Field{Key: "cancel", Value: cancel.String()})

		if !wasRunning || cancel == workers.CancelPending {
			s.remove(id)
		}
	}
}

// hunt flags defunct and abandoned tasks for the next collect pass.
func (s *Scheduler) hunt() {
	now := s.now()
	for _, t := range s.tasks {
		if t.KillRequested() {
			continue
		}
		switch {
		case t.isDefunct(now, s.policy):
			s.requestKill(t, KillReasonCompletionTimeout)
		case t.isAbandoned(now, s.policy):
			s.requestKill(t, KillReasonAbandoned)
		}
	}
}

// IsTaskNotFound reports whether err means the task id is unknown.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}
