// Package client talks to the clusterd async task API.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"

	"github.com/aatumaykin/clusterd/internal/api"
	"github.com/aatumaykin/clusterd/internal/commands"
	"github.com/aatumaykin/clusterd/internal/reports"
	"github.com/aatumaykin/clusterd/internal/scheduler"
	"github.com/aatumaykin/clusterd/internal/version"
)

// Config holds the configuration for the HTTP client.
type Config struct {
	// ServerURL is the base URL of the daemon (e.g., "http://127.0.0.1:2225")
	ServerURL string

	// RequestTimeout is the timeout for HTTP requests.
	RequestTimeout time.Duration

	// PollInterval is the interval between result polls.
	PollInterval time.Duration
}

// DefaultConfig returns a default client configuration.
func DefaultConfig() *Config {
	return &Config{
		ServerURL:      "http://127.0.0.1:2225",
		RequestTimeout: 30 * time.Second,
		PollInterval:   300 * time.Millisecond,
	}
}

// APIError is a non-200 reply of the daemon.
type APIError struct {
	StatusCode int
	Response   api.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Response.ErrorMessage != "" {
		return e.Response.ErrorMessage
	}
	return fmt.Sprintf("request failed with status: %d", e.StatusCode)
}

// IsNotFound reports whether err is a 404 reply.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == fiber.StatusNotFound
}

// Client is the HTTP client of the async task API.
type Client struct {
	config *Config
	agent  *fiber.Client
}

// NewClient creates a new HTTP client.
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}

	return &Client{
		config: config,
		agent:  fiber.AcquireClient(),
	}
}

// CreateTask submits a command and returns the task id.
func (c *Client) CreateTask(ctx context.Context, cmd commands.Command) (string, error) {
	var ident api.TaskIdent
	req := api.CreateTaskRequest{CommandName: cmd.Name, Params: cmd.Params}
	if err := c.post(ctx, "/async_api/task/create", req, &ident); err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}
	return ident.TaskIdent, nil
}

// GetTask fetches the current task view. A finished task can be fetched once.
func (c *Client) GetTask(ctx context.Context, id string) (scheduler.TaskResult, error) {
	var result scheduler.TaskResult
	if err := ctx.Err(); err != nil {
		return result, err
	}

	endpoint := c.config.ServerURL + "/async_api/task/result?task_ident=" + url.QueryEscape(id)
	req := c.agent.Get(endpoint)
	req.Timeout(c.config.RequestTimeout)
	req.UserAgent(version.UserAgent())

	statusCode, body, errs := req.Bytes()
	if len(errs) > 0 {
		return result, fmt.Errorf("failed to get task: %v", errs[0])
	}
	if err := checkStatus(statusCode, body); err != nil {
		return result, err
	}
	if err := sonic.Unmarshal(body, &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal task result: %w", err)
	}
	return result, nil
}

// KillTask asks the daemon to kill a task.
func (c *Client) KillTask(ctx context.Context, id string) error {
	if err := c.post(ctx, "/async_api/task/kill", api.TaskIdent{TaskIdent: id}, nil); err != nil {
		return fmt.Errorf("failed to kill task: %w", err)
	}
	return nil
}

// Wait polls the task until it finishes. Every report is passed to
// processor exactly once, in order.
func (c *Client) Wait(ctx context.Context, id string, processor reports.Processor) (scheduler.TaskResult, error) {
	seen := 0
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		result, err := c.GetTask(ctx, id)
		if err != nil {
			return result, err
		}

		if len(result.Reports) > seen {
			if processor != nil {
				if err := reports.ReportAll(processor, result.Reports[seen:]...); err != nil {
					return result, err
				}
			}
			seen = len(result.Reports)
		}
		if result.State == scheduler.StateFinished {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Run creates a task and waits for it. When ctx is cancelled the task is
// killed and its final view is fetched within the request timeout.
func (c *Client) Run(ctx context.Context, cmd commands.Command, processor reports.Processor) (string, scheduler.TaskResult, error) {
	id, err := c.CreateTask(ctx, cmd)
	if err != nil {
		return "", scheduler.TaskResult{}, err
	}

	result, err := c.Wait(ctx, id, processor)
	if err == nil || ctx.Err() == nil {
		return id, result, err
	}

	killCtx, cancel := context.WithTimeout(context.Background(), c.config.RequestTimeout)
	defer cancel()
	if err := c.KillTask(killCtx, id); err != nil {
		return id, result, err
	}
	result, err = c.Wait(killCtx, id, nil)
	if IsNotFound(err) {
		return id, result, fmt.Errorf("task %s was removed after kill", id)
	}
	return id, result, err
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req := c.agent.Post(c.config.ServerURL + path)
	req.Timeout(c.config.RequestTimeout)
	req.UserAgent(version.UserAgent())
	req.Body(body)
	req.Set("Content-Type", "application/json")

	statusCode, respBody, errs := req.Bytes()
	if len(errs) > 0 {
		return errs[0]
	}
	if err := checkStatus(statusCode, respBody); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func checkStatus(statusCode int, body []byte) error {
	if statusCode == fiber.StatusOK {
		return nil
	}
	apiErr := &APIError{StatusCode: statusCode}
	_ = sonic.Unmarshal(body, &apiErr.Response)
	return apiErr
}
