package scheduler

import (
	"errors"
	"fmt"

	"github.com/aatumaykin/clusterd/internal/bus"
)

var (
	// ErrTaskNotFound is matched by every TaskNotFoundError.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTerminated is returned by NewTask once Terminate has been called.
	ErrTerminated = errors.New("scheduler is terminated")
)

// TaskNotFoundError reports an unknown or already pruned task id.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task %s not found", e.TaskID)
}

// Is makes errors.Is(err, ErrTaskNotFound) hold.
func (e *TaskNotFoundError) Is(target error) bool {
	return target == ErrTaskNotFound
}

// UnknownMessageError is a message whose type tag the scheduler does not know.
type UnknownMessageError struct {
	Type bus.MessageType
}

func (e *UnknownMessageError) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

// InvalidTransitionError is a state change the task state machine does not allow.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("disallowed transition: %s -> %s", e.From, e.To)
}
