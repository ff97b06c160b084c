package scheduler

import (
	"encoding/json"
	"time"

	"github.com/aatumaykin/clusterd/internal/bus"
	"github.com/aatumaykin/clusterd/internal/commands"
	"github.com/aatumaykin/clusterd/internal/reports"
)

// State is the lifecycle state of a task.
type State string

const (
	StateCreated  State = "CREATED"
	StateQueued   State = "QUEUED"
	StateExecuted State = "EXECUTED"
	StateFinished State = "FINISHED"
)

// KillReason tells why a task was killed.
type KillReason string

const (
	KillReasonUser                   KillReason = "USER"
	KillReasonCompletionTimeout      KillReason = "COMPLETION_TIMEOUT"
	KillReasonAbandoned              KillReason = "ABANDONED"
	KillReasonInternalMessagingError KillReason = "INTERNAL_MESSAGING_ERROR"
)

// TaskResult is the client view of a task.
type TaskResult struct {
	TaskID     string           `json:"task_ident"`
	Command    commands.Command `json:"command"`
	Reports    []reports.Item   `json:"reports"`
	State      State            `json:"state"`
	Outcome    bus.Outcome      `json:"task_finish_type"`
	KillReason KillReason       `json:"kill_reason,omitempty"`
	Result     json.RawMessage  `json:"result"`
}

// Task is the bookkeeping record of one submitted command. It is owned by the
// Scheduler and only touched under its lock.
type Task struct {
	id      string
	command commands.Command
	state   State
	outcome bus.Outcome
	reports []reports.Item
	result  json.RawMessage
	pid     int

	killReason KillReason
	// killed is set once collect has acted on the kill request.
	killed bool

	createdAt      time.Time
	lastActivityAt time.Time
	executedAt     time.Time
	finishedAt     time.Time
}

func newTask(id string, command commands.Command, now time.Time) *Task {
	return &Task{
		id:             id,
		command:        command,
		state:          StateCreated,
		outcome:        bus.OutcomeUnfinished,
		createdAt:      now,
		lastActivityAt: now,
	}
}

// ID returns the task id.
func (t *Task) ID() string { return t.id }

// State returns the current state.
func (t *Task) State() State { return t.state }

// KillRequested reports whether a kill has been requested.
func (t *Task) KillRequested() bool { return t.killReason != "" }

// KillReason returns the reason of the first kill request, if any.
func (t *Task) KillReason() KillReason { return t.killReason }

// requestKill flags the task for the next collect pass. The first reason wins.
func (t *Task) requestKill(reason KillReason) {
	if t.killReason == "" {
		t.killReason = reason
	}
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateCreated:
		return to == StateQueued || to == StateExecuted || to == StateFinished
	case StateQueued:
		return to == StateExecuted || to == StateFinished
	case StateExecuted:
		return to == StateFinished
	default:
		return false
	}
}

func (t *Task) transition(to State) error {
	if !isAllowedTransition(t.state, to) {
		return &InvalidTransitionError{From: t.state, To: to}
	}
	t.state = to
	return nil
}

// receive routes a worker message to the task. A REPORT never changes the
// state. Messages arriving after the task was killed are dropped.
func (t *Task) receive(msg bus.Message, now time.Time) error {
	if t.killed {
		return nil
	}

	switch msg.Type {
	case bus.MessageExecuted:
		executed, err := bus.DecodeExecuted(msg)
		if err != nil {
			return err
		}
		if err := t.transition(StateExecuted); err != nil {
			return err
		}
		t.pid = executed.PID
		t.executedAt = now

	case bus.MessageReport:
		item, err := bus.DecodeReport(msg)
		if err != nil {
			return err
		}
		t.reports = append(t.reports, item)

	case bus.MessageFinished:
		finished, err := bus.DecodeFinished(msg)
		if err != nil {
			return err
		}
		if err := t.transition(StateFinished); err != nil {
			return err
		}
		t.outcome = finished.Outcome
		if finished.Outcome == bus.OutcomeSuccess {
			t.result = finished.Result
		}
		t.finishedAt = now

	default:
		return &UnknownMessageError{Type: msg.Type}
	}
	return nil
}

// kill finishes the task with the KILL outcome unless it already finished.
func (t *Task) kill(now time.Time) {
	t.killed = true
	if t.state == StateFinished {
		return
	}
	t.state = StateFinished
	t.outcome = bus.OutcomeKill
	t.finishedAt = now
}

// isDefunct reports a result left unretrieved past retention or an execution
// running past the maximum.
func (t *Task) isDefunct(now time.Time, p Policy) bool {
	switch t.state {
	case StateFinished:
		return now.Sub(t.finishedAt) > p.ResultRetention
	case StateExecuted:
		return now.Sub(t.executedAt) > p.MaxExecution
	default:
		return false
	}
}

// isAbandoned reports a task nobody asked about for longer than the idle timeout.
func (t *Task) isAbandoned(now time.Time, p Policy) bool {
	return now.Sub(t.lastActivityAt) > p.IdleTimeout
}

// Result returns a snapshot safe to hand out of the scheduler.
func (t *Task) Result() TaskResult {
	items := make([]reports.Item, len(t.reports))
	copy(items, t.reports)

	result := json.RawMessage("null")
	if len(t.result) > 0 {
		result = append(json.RawMessage(nil), t.result...)
	}

	return TaskResult{
		TaskID:     t.id,
		Command:    t.command,
		Reports:    items,
		State:      t.state,
		Outcome:    t.outcome,
		KillReason: t.killReason,
		Result:     result,
	}
}
