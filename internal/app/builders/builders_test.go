package builders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/clusterd/internal/bus"
	"github.com/aatumaykin/clusterd/internal/commands"
	"github.com/aatumaykin/clusterd/internal/config"
	"github.com/aatumaykin/clusterd/internal/logger"
	"github.com/aatumaykin/clusterd/internal/scheduler"
	"github.com/aatumaykin/clusterd/internal/workers"
)

func TestWorkerArgs(t *testing.T) {
	assert.Equal(t, []string{"worker"}, WorkerArgs(""))
	assert.Equal(t, []string{"worker", "--config", "/etc/clusterd.toml"}, WorkerArgs("/etc/clusterd.toml"))
}

func TestPoolConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Workers.PoolSize = 7
	cfg.Workers.StopTimeoutSeconds = 2

	pc := PoolConfig(cfg, nil)
	assert.Equal(t, 7, pc.Size)
	assert.Equal(t, cfg.Workers.MaxTasksPerWorker, pc.MaxTasksPerWorker)
	assert.Equal(t, 2*time.Second, pc.StopTimeout)
	assert.Equal(t, cfg.Workers.SpawnRetryAttempts, pc.SpawnRetry.MaxAttempts)
}

func TestBuildSpawner(t *testing.T) {
	registry, err := commands.BuiltinRegistry(config.CommandsConfig{})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Workers.Executable = "/usr/libexec/clusterd"
	spawner, err := NewWorkersBuilder(cfg, logger.Discard(), "/etc/clusterd.toml").BuildSpawner(registry)
	require.NoError(t, err)
	exec, ok := spawner.(*workers.ExecSpawner)
	require.True(t, ok)
	assert.Equal(t, "/usr/libexec/clusterd", exec.Path)
	assert.Equal(t, []string{"worker", "--config", "/etc/clusterd.toml"}, exec.Args)

	cfg.Workers.Executable = ""
	spawner, err = NewWorkersBuilder(cfg, logger.Discard(), "").BuildSpawner(registry)
	require.NoError(t, err)
	assert.NotEmpty(t, spawner.(*workers.ExecSpawner).Path)

	cfg.Workers.Mode = config.WorkerModeInProcess
	spawner, err = NewWorkersBuilder(cfg, logger.Discard(), "").BuildSpawner(registry)
	require.NoError(t, err)
	assert.IsType(t, &workers.InProcessSpawner{}, spawner)

	cfg.Workers.Mode = "thread"
	_, err = NewWorkersBuilder(cfg, logger.Discard(), "").BuildSpawner(registry)
	assert.Error(t, err)
}

func TestCronBuilder_TicksScheduler(t *testing.T) {
	log := logger.Discard()
	registry, err := commands.BuiltinRegistry(config.CommandsConfig{})
	require.NoError(t, err)

	channel := bus.New(10, log)
	require.NoError(t, channel.Start())
	defer func() { _ = channel.Stop() }()

	pool := workers.NewPool(workers.Config{Size: 1}, &workers.InProcessSpawner{Registry: registry, Logger: log}, channel, log)
	pool.Start()

	sched, err := scheduler.New(scheduler.Config{Policy: scheduler.Policy{
		ResultRetention: time.Minute, MaxExecution: time.Minute, IdleTimeout: time.Minute,
	}}, pool, channel, log)
	require.NoError(t, err)
	defer sched.Terminate()

	cfg := config.Default()
	cfg.Scheduler.TickIntervalMs = 5
	driver, err := NewCronBuilder(cfg, log).BuildAndStart(context.Background(), sched, pool)
	require.NoError(t, err)
	defer func() { _ = driver.Stop() }()
	assert.Equal(t, []string{StatsJob, TickJob, CleanupJob}, driver.Jobs())

	id, err := sched.NewTask(commands.Command{Name: commands.Echo, Params: map[string]any{"message": "x"}})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		res, err := sched.GetTask(id)
		return err == nil && res.State == scheduler.StateFinished
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCronBuilder_CleanupRunner(t *testing.T) {
	cfg := config.Default()
	assert.NotNil(t, NewCronBuilder(cfg, logger.Discard()).cleanupRunner())

	cfg.Workers.Mode = config.WorkerModeInProcess
	assert.Nil(t, NewCronBuilder(cfg, logger.Discard()).cleanupRunner(), "in-process workers share the daemon log")

	cfg = config.Default()
	cfg.Workers.LogMaxAgeDays = 0
	cfg.Workers.LogMaxFiles = 0
	assert.Nil(t, NewCronBuilder(cfg, logger.Discard()).cleanupRunner())
}
