package api

import (
	"github.com/aatumaykin/clusterd/internal/commands"
	"github.com/aatumaykin/clusterd/internal/scheduler"
)

// TaskService is the scheduler surface exposed over HTTP.
type TaskService interface {
	NewTask(cmd commands.Command) (string, error)
	GetTask(id string) (scheduler.TaskResult, error)
	KillTask(id string) error
}

// CreateTaskRequest is the body of POST /async_api/task/create.
type CreateTaskRequest struct {
	CommandName commands.Name  `json:"command_name"`
	Params      map[string]any `json:"params"`
}

// TaskIdent carries a task id. It is the create response and the kill request.
type TaskIdent struct {
	TaskIdent string `json:"task_ident"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	HTTPCode     string `json:"http_code"`
	HTTPError    string `json:"http_error"`
	ErrorMessage string `json:"error_message"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
