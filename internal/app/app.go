// Package app wires the clusterd daemon together: worker pool, message
// channel, task scheduler, periodic driver and the HTTP API.
package app

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aatumaykin/clusterd/internal/api"
	"github.com/aatumaykin/clusterd/internal/bus"
	"github.com/aatumaykin/clusterd/internal/config"
	"github.com/aatumaykin/clusterd/internal/cron"
	"github.com/aatumaykin/clusterd/internal/logger"
	"github.com/aatumaykin/clusterd/internal/scheduler"
	"github.com/aatumaykin/clusterd/internal/workers"
)

// App represents the main application structure.
// It holds references to all major components and manages their lifecycle.
type App struct {
	// Configuration and core services
	config     *config.Config
	configPath string
	pidFile    string
	logger     *logger.Logger
	metrics    *prometheus.Registry

	// Worker to scheduler messages
	channel *bus.Channel

	// Background task execution
	workerPool *workers.WorkerPool
	scheduler  *scheduler.Scheduler

	// Scheduled ticks
	cronScheduler *cron.Scheduler

	// HTTP front end
	apiServer *api.Server

	// fatal receives the first unrecoverable error
	fatal     chan error
	fatalOnce sync.Once

	// Context management
	ctx    context.Context
	cancel context.CancelFunc

	// Thread-safety
	mu      sync.RWMutex
	started bool
}

// New creates a new App instance with the provided configuration and logger.
// configPath is handed to worker processes so they load the same file.
func New(cfg *config.Config, log *logger.Logger, configPath string) *App {
	return &App{
		config:     cfg,
		configPath: configPath,
		logger:     log,
	}
}

// Run starts the application and blocks until the context is cancelled or
// a component fails. It always shuts down before returning.
func (a *App) Run(ctx context.Context) error {
	if err := a.Initialize(ctx); err != nil {
		_ = a.Shutdown()
		return err
	}

	a.logger.Info("Application is running")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-a.fatal:
		a.logger.Error("Application stopped on fatal error", runErr)
	}

	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Scheduler returns the task scheduler.
func (a *App) Scheduler() *scheduler.Scheduler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.scheduler
}

// API returns the HTTP server, nil when the API is disabled.
func (a *App) API() *api.Server {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.apiServer
}

// Metrics returns the registry all daemon collectors are registered in.
func (a *App) Metrics() *prometheus.Registry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.metrics
}

// reportFatal records the first fatal error; Run returns it.
func (a *App) reportFatal(err error) {
	a.fatalOnce.Do(func() {
		a.fatal <- err
	})
}
