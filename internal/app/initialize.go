package app

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aatumaykin/clusterd/internal/api"
	"github.com/aatumaykin/clusterd/internal/app/builders"
	"github.com/aatumaykin/clusterd/internal/bus"
	"github.com/aatumaykin/clusterd/internal/commands"
	"github.com/aatumaykin/clusterd/internal/logger"
	"github.com/aatumaykin/clusterd/internal/pidfile"
	"github.com/aatumaykin/clusterd/internal/scheduler"
	"github.com/aatumaykin/clusterd/internal/workers"
)

// Initialize initializes all application components.
// It writes the PID file and sets up the command registry, metrics, message channel, worker pool,
// scheduler, cron driver and, when enabled, the HTTP API.
func (a *App) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return fmt.Errorf("application already initialized")
	}

	// 1. Create application context
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.fatal = make(chan error, 1)

	// 2. PID file
	if path := a.config.PIDFile; path != "" {
		if err := pidfile.Write(path, os.Getpid()); err != nil {
			return err
		}
		a.pidFile = path
	}

	// 3. Command registry
	registry, err := commands.BuiltinRegistry(a.config.Commands)
	if err != nil {
		return fmt.Errorf("failed to build command registry: %w", err)
	}

	// 4. Metrics
	a.metrics = prometheus.NewRegistry()
	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ns := a.config.Metrics.Namespace

	// 5. Message channel
	a.channel = bus.New(a.config.MessageBus.Capacity, a.logger)
	if err := a.channel.Start(); err != nil {
		return fmt.Errorf("failed to start message channel: %w", err)
	}

	// 6. Worker pool
	spawner, err := builders.NewWorkersBuilder(a.config, a.logger, a.configPath).BuildSpawner(registry)
	if err != nil {
		return fmt.Errorf("failed to configure workers: %w", err)
	}
	a.workerPool = workers.NewPool(
		builders.PoolConfig(a.config, workers.InitPrometheusMetrics(ns, a.metrics)),
		spawner, a.channel, a.logger,
	)
	a.workerPool.Start()

	// 7. Scheduler
	a.scheduler, err = scheduler.New(scheduler.Config{
		Policy: scheduler.Policy{
			ResultRetention: a.config.Scheduler.ResultRetention(),
			MaxExecution:    a.config.Scheduler.MaxExecution(),
			IdleTimeout:     a.config.Scheduler.IdleTimeout(),
		},
		OnFatal:    a.onPoolFailure,
		Prometheus: scheduler.InitPrometheusMetrics(ns, a.metrics),
	}, a.workerPool, a.channel, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	// 8. Cron driver
	a.cronScheduler, err = builders.NewCronBuilder(a.config, a.logger).
		BuildAndStart(a.ctx, a.scheduler, a.workerPool)
	if err != nil {
		return err
	}

	// 9. HTTP API
	if a.config.API.Enabled {
		a.apiServer = api.NewServer(a.scheduler, api.Config{
			Address:           a.config.API.Address,
			ReadTimeout:       a.config.API.ReadTimeout(),
			WriteTimeout:      a.config.API.WriteTimeout(),
			EnableMetrics:     a.config.API.EnableMetrics,
			Gatherer:          a.metrics,
			MaxTasksPerMinute: a.config.API.MaxTasksPerMinute,
		}, a.logger)

		go func(ctx context.Context, server *api.Server) {
			// Shutdown stops the listener; only an early exit is fatal
			if err := server.Start(); err != nil && ctx.Err() == nil {
				a.reportFatal(fmt.Errorf("http api stopped: %w", err))
			}
		}(a.ctx, a.apiServer)
		a.logger.Info("http api listening", logger.Field{Key: "address", Value: a.config.API.Address})
	}

	// 10. Mark as started
	a.started = true
	return nil
}

// onPoolFailure is the scheduler's fatal handler: the daemon cannot run
// tasks any more, so it shuts down.
func (a *App) onPoolFailure(err error) {
	a.reportFatal(fmt.Errorf("worker pool refused a job: %w", err))
}
