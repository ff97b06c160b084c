// Package api exposes the task scheduler over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aatumaykin/clusterd/internal/logger"
)

// Config holds the configuration for the HTTP server.
type Config struct {
	// Address is the address to listen on (e.g., "127.0.0.1:2225").
	Address string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// EnableMetrics enables the /metrics endpoint.
	EnableMetrics bool
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// MaxTasksPerMinute limits task creation. Zero means no limit.
	MaxTasksPerMinute int
}

// DefaultConfig returns a default server configuration.
func DefaultConfig() Config {
	return Config{
		Address:      "127.0.0.1:2225",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP front end of the scheduler.
type Server struct {
	app    *fiber.App
	tasks  TaskService
	config Config
	logger *logger.Logger
}

// NewServer creates a new HTTP server.
func NewServer(tasks TaskService, cfg Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ErrorHandler:          errorHandler(log),
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		AppName:               "clusterd",
		DisableStartupMessage: true,
	})

	s := &Server{
		app:    app,
		tasks:  tasks,
		config: cfg,
		logger: log,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(fiberrecover.New(fiberrecover.Config{
		EnableStackTrace: true,
	}))
	s.app.Use(s.requestLogger())
}

// requestLogger logs every request at debug level.
func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			// render now so the logged status is the one sent
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		s.logger.Debug("http request",
			logger.Field{Key: "method", Value: c.Method()},
			logger.Field{Key: "path", Value: c.Path()},
			logger.Field{Key: "status", Value: c.Response().StatusCode()},
			logger.Field{Key: "latency", Value: time.Since(start).String()})
		return nil
	}
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.healthCheck)

	if s.config.EnableMetrics {
		gatherer := s.config.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := s.app.Group("/async_api/task")
	api.Post("/create", s.limitTaskCreation(), s.createTask)
	api.Get("/result", s.taskResult)
	api.Post("/kill", s.killTask)
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	return s.app.Listen(s.config.Address)
}

// StartWithContext listens until ctx is done, then shuts down.
func (s *Server) StartWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.app.Listen(s.config.Address)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// ShutdownWithTimeout gracefully shuts down the server with a timeout.
func (s *Server) ShutdownWithTimeout(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// errorHandler renders every error in the ErrorResponse shape.
func errorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("api request failed", err, logger.Field{Key: "path", Value: c.Path()})
		} else {
			log.Debug("api request rejected",
				logger.Field{Key: "path", Value: c.Path()},
				logger.Field{Key: "error", Value: message})
		}

		return c.Status(code).JSON(ErrorResponse{
			HTTPCode:     strconv.Itoa(code),
			HTTPError:    http.StatusText(code),
			ErrorMessage: message,
		})
	}
}
