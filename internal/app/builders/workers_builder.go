package builders

import (
	"fmt"
	"os"

	"github.com/aatumaykin/clusterd/internal/commands"
	"github.com/aatumaykin/clusterd/internal/config"
	"github.com/aatumaykin/clusterd/internal/logger"
	"github.com/aatumaykin/clusterd/internal/retry"
	"github.com/aatumaykin/clusterd/internal/workers"
)

// WorkerCommand is the hidden CLI command a worker process runs.
const WorkerCommand = "worker"

type WorkersBuilder struct {
	config     *config.Config
	logger     *logger.Logger
	configPath string
}

func NewWorkersBuilder(cfg *config.Config, log *logger.Logger, configPath string) *WorkersBuilder {
	return &WorkersBuilder{
		config:     cfg,
		logger:     log,
		configPath: configPath,
	}
}

// BuildSpawner returns the spawner for the configured worker mode.
func (b *WorkersBuilder) BuildSpawner(registry *commands.Registry) (workers.Spawner, error) {
	switch b.config.Workers.Mode {
	case config.WorkerModeInProcess:
		return &workers.InProcessSpawner{Registry: registry, Logger: b.logger}, nil
	case config.WorkerModeProcess, "":
		path := b.config.Workers.Executable
		if path == "" {
			self, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("failed to resolve worker executable: %w", err)
			}
			path = self
		}
		return &workers.ExecSpawner{
			Path:   path,
			Args:   WorkerArgs(b.configPath),
			Logger: b.logger,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported worker mode: %s", b.config.Workers.Mode)
	}
}

// WorkerArgs builds the argument list of a worker process.
func WorkerArgs(configPath string) []string {
	args := []string{WorkerCommand}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return args
}

// PoolConfig maps the workers section onto the pool settings.
func PoolConfig(cfg *config.Config, prom *workers.PrometheusMetrics) workers.Config {
	return workers.Config{
		Size:              cfg.Workers.PoolSize,
		MaxTasksPerWorker: cfg.Workers.MaxTasksPerWorker,
		StopTimeout:       cfg.Workers.StopTimeout(),
		SpawnRetry: retry.Config{
			MaxAttempts: cfg.Workers.SpawnRetryAttempts,
		},
		Prometheus: prom,
	}
}
