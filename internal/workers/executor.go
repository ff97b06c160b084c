package workers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/aatumaykin/clusterd/internal/bus"
	"github.com/aatumaykin/clusterd/internal/commands"
	"github.com/aatumaykin/clusterd/internal/logger"
	"github.com/aatumaykin/clusterd/internal/reports"
)

// CodeUnknownCommand is reported when a job names a command the worker does not know.
const CodeUnknownCommand = "UNKNOWN_COMMAND"

// Publisher delivers a message produced while executing a job.
type Publisher func(msg bus.Message) error

// Executor runs jobs inside a worker.
type Executor struct {
	registry *commands.Registry
	logger   *logger.Logger
	pid      int
}

// NewExecutor creates an executor. A pid of 0 means the current process id.
func NewExecutor(registry *commands.Registry, log *logger.Logger, pid int) *Executor {
	if pid == 0 {
		pid = os.Getpid()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Executor{registry: registry, logger: log, pid: pid}
}

// Execute runs job and publishes, in order, EXECUTED, any REPORT messages and
// exactly one FINISHED. Command failures become a FINISHED outcome; the
// returned error is non-nil only when a message could not be published.
func (e *Executor) Execute(ctx context.Context, job Job, publish Publisher) error {
	log := e.logger.With(
		logger.Field{Key: "task_id", Value: job.TaskID},
		logger.Field{Key: "command", Value: job.Command.Name})

	if err := publish(bus.NewExecutedMessage(job.TaskID, e.pid)); err != nil {
		return fmt.Errorf("failed to publish executed message: %w", err)
	}
	log.Info("Task executed")

	fn, ok := e.registry.Lookup(job.Command.Name)
	if !ok {
		log.Warn("Unknown command")
		item := reports.Error(CodeUnknownCommand,
			fmt.Sprintf("unknown command '%s'", job.Command.Name)).
			WithPayload(map[string]any{"command_name": string(job.Command.Name)})
		if err := e.publishReport(job.TaskID, item, publish); err != nil {
			return err
		}
		return e.publishFinished(job.TaskID, bus.OutcomeFail, nil, publish)
	}

	env := &commands.Env{
		Context: ctx,
		TaskID:  job.TaskID,
		Logger:  log,
		Reports: reports.ProcessorFunc(func(item reports.Item) error {
			return e.publishReport(job.TaskID, item, publish)
		}),
	}

	result, err := runCommand(fn, env, job.Command.Params)

	var domainErr *commands.DomainError
	var panicErr *panicError
	switch {
	case err == nil:
		msg, encErr := bus.NewFinishedMessage(job.TaskID, bus.OutcomeSuccess, result)
		if encErr != nil {
			log.Error("Task result cannot be encoded", encErr)
			return e.publishFinished(job.TaskID, bus.OutcomeUnhandledException, nil, publish)
		}
		if err := publish(msg); err != nil {
			return fmt.Errorf("failed to publish finished message: %w", err)
		}
		log.Info("Task finished")
		return nil

	case errors.As(err, &domainErr):
		for _, item := range domainErr.Reports {
			if err := e.publishReport(job.TaskID, item, publish); err != nil {
				return err
			}
		}
		log.Error("Task failed", err)
		return e.publishFinished(job.TaskID, bus.OutcomeFail, nil, publish)

	case errors.As(err, &panicErr):
		log.Error("Task panicked", err, logger.Field{Key: "stack", Value: string(panicErr.stack)})
		return e.publishFinished(job.TaskID, bus.OutcomeUnhandledException, nil, publish)

	default:
		log.Error("Task raised an unhandled error", err)
		return e.publishFinished(job.TaskID, bus.OutcomeUnhandledException, nil, publish)
	}
}

func (e *Executor) publishReport(taskID string, item reports.Item, publish Publisher) error {
	msg, err := bus.NewReportMessage(taskID, item)
	if err != nil {
		// the payload cannot be encoded; keep the diagnostic without it
		item.Payload = nil
		msg, err = bus.NewReportMessage(taskID, item)
		if err != nil {
			return err
		}
	}
	if err := publish(msg); err != nil {
		return fmt.Errorf("failed to publish report: %w", err)
	}
	return nil
}

func (e *Executor) publishFinished(taskID string, outcome bus.Outcome, result any, publish Publisher) error {
	msg, err := bus.NewFinishedMessage(taskID, outcome, result)
	if err != nil {
		return err
	}
	if err := publish(msg); err != nil {
		return fmt.Errorf("failed to publish finished message: %w", err)
	}
	return nil
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic during command execution: %v", e.value)
}

func runCommand(fn commands.Func, env *commands.Env, params map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	if params == nil {
		params = map[string]any{}
	}
	return fn(env, params)
}
