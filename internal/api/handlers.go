package api

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"

	"github.com/aatumaykin/clusterd/internal/commands"
	"github.com/aatumaykin/clusterd/internal/logger"
	"github.com/aatumaykin/clusterd/internal/scheduler"
)

// strictJSON rejects bodies with keys the request type does not declare.
var strictJSON = sonic.Config{DisallowUnknownFields: true}.Froze()

func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{Status: "healthy"})
}

// createTask handles POST /async_api/task/create.
func (s *Server) createTask(c *fiber.Ctx) error {
	var req CreateTaskRequest
	if err := decodeBody(c, &req, "Task assignment is missing."); err != nil {
		return err
	}
	if req.CommandName == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Required key command_name is missing.")
	}

	id, err := s.tasks.NewTask(commands.Command{Name: req.CommandName, Params: req.Params})
	if err != nil {
		if errors.Is(err, scheduler.ErrTerminated) {
			return fiber.NewError(fiber.StatusServiceUnavailable, "Task scheduler is shutting down.")
		}
		return err
	}

	s.logger.Info("task created via api",
		logger.Field{Key: "task_id", Value: id},
		logger.Field{Key: "command", Value: string(req.CommandName)})
	return c.JSON(TaskIdent{TaskIdent: id})
}

// taskResult handles GET /async_api/task/result?task_ident=.
func (s *Server) taskResult(c *fiber.Ctx) error {
	id := c.Query("task_ident")
	if id == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Task identifier (task_ident) is missing.")
	}

	result, err := s.tasks.GetTask(id)
	if err != nil {
		return taskError(err)
	}
	return c.JSON(result)
}

// killTask handles POST /async_api/task/kill.
func (s *Server) killTask(c *fiber.Ctx) error {
	var req TaskIdent
	if err := decodeBody(c, &req, "Task identifier is missing."); err != nil {
		return err
	}
	if req.TaskIdent == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Required key task_ident is missing.")
	}

	if err := s.tasks.KillTask(req.TaskIdent); err != nil {
		return taskError(err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func taskError(err error) error {
	if scheduler.IsTaskNotFound(err) {
		return fiber.NewError(fiber.StatusNotFound, "Task with this identifier does not exist.")
	}
	return err
}

// decodeBody strictly decodes a JSON request body into v.
func decodeBody(c *fiber.Ctx, v any, missing string) error {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		return fiber.NewError(fiber.StatusUnsupportedMediaType, "Content-Type must be application/json.")
	}
	body := c.Body()
	if len(strings.TrimSpace(string(body))) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, missing)
	}
	if !sonic.Valid(body) {
		return fiber.NewError(fiber.StatusBadRequest, "Malformed JSON data.")
	}
	if err := strictJSON.Unmarshal(body, v); err != nil {
		if keys := unexpectedKeys(body, v); len(keys) > 0 {
			return fiber.NewError(fiber.StatusBadRequest,
				fmt.Sprintf("Request body contains unexpected keys: %s.", strings.Join(keys, ", ")))
		}
		return fiber.NewError(fiber.StatusBadRequest, "Malformed request body.")
	}
	return nil
}

// unexpectedKeys lists body keys that the request type does not know.
func unexpectedKeys(body []byte, v any) []string {
	var fields map[string]any
	if err := sonic.Unmarshal(body, &fields); err != nil {
		return nil
	}

	known := map[string]bool{}
	switch v.(type) {
	case *CreateTaskRequest:
		known["command_name"], known["params"] = true, true
	case *TaskIdent:
		known["task_ident"] = true
	}

	var keys []string
	for k := range fields {
		if !known[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
