package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/clusterd/internal/bus"
	"github.com/aatumaykin/clusterd/internal/commands"
	"github.com/aatumaykin/clusterd/internal/config"
	"github.com/aatumaykin/clusterd/internal/logger"
	"github.com/aatumaykin/clusterd/internal/pidfile"
	"github.com/aatumaykin/clusterd/internal/scheduler"
)

// Helper function to create test logger
func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "info", Format: "text", Output: "stdout"})
	require.NoError(t, err)
	return log
}

// Helper function to create test config
func createTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Scheduler.TickIntervalMs = 10
	cfg.Workers.Mode = config.WorkerModeInProcess
	cfg.Workers.PoolSize = 2
	cfg.Workers.MaxTasksPerWorker = 2
	cfg.API.Enabled = false
	require.Empty(t, cfg.Validate())
	return cfg
}

func waitFinished(t *testing.T, s *scheduler.Scheduler, id string) scheduler.TaskResult {
	t.Helper()
	var res scheduler.TaskResult
	require.Eventually(t, func() bool {
		r, err := s.GetTask(id)
		require.NoError(t, err)
		res = r
		return r.State == scheduler.StateFinished
	}, 5*time.Second, 10*time.Millisecond)
	return res
}

func TestApp_EchoEndToEnd(t *testing.T) {
	app := New(createTestConfig(t), createTestLogger(t), "")
	require.NoError(t, app.Initialize(context.Background()))
	defer func() { _ = app.Shutdown() }()

	ids := make([]string, 0, 5)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		id, err := app.Scheduler().NewTask(commands.Command{
			Name:   commands.Echo,
			Params: map[string]any{"message": msg},
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for i, id := range ids {
		res := waitFinished(t, app.Scheduler(), id)
		assert.Equal(t, bus.OutcomeSuccess, res.Outcome)
		assert.Contains(t, string(res.Result), []string{"a", "b", "c", "d", "e"}[i])
	}

	families, err := app.Metrics().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["clusterd_scheduler_tasks_created_total"])
	assert.True(t, names["clusterd_pool_workers_spawned_total"])
}

func TestApp_UnconfiguredCommandFails(t *testing.T) {
	app := New(createTestConfig(t), createTestLogger(t), "")
	require.NoError(t, app.Initialize(context.Background()))
	defer func() { _ = app.Shutdown() }()

	id, err := app.Scheduler().NewTask(commands.Command{Name: commands.ClusterStatus})
	require.NoError(t, err)

	res := waitFinished(t, app.Scheduler(), id)
	assert.Equal(t, bus.OutcomeFail, res.Outcome)
	require.NotEmpty(t, res.Reports)
	assert.Equal(t, commands.CodeCommandNotConfigured, res.Reports[0].Code)
}

func TestApp_Initialize_Twice(t *testing.T) {
	app := New(createTestConfig(t), createTestLogger(t), "")
	require.NoError(t, app.Initialize(context.Background()))
	defer func() { _ = app.Shutdown() }()

	assert.Error(t, app.Initialize(context.Background()))
}

func TestApp_Initialize_BadCommands(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.Commands.Argv["no such command"] = []string{"/bin/true"}

	app := New(cfg, createTestLogger(t), "")
	assert.Error(t, app.Initialize(context.Background()))
	assert.NoError(t, app.Shutdown())
}

func TestApp_Shutdown_NotStarted(t *testing.T) {
	app := New(createTestConfig(t), createTestLogger(t), "")
	assert.NoError(t, app.Shutdown())
}

func TestApp_Shutdown_Twice(t *testing.T) {
	app := New(createTestConfig(t), createTestLogger(t), "")
	require.NoError(t, app.Initialize(context.Background()))

	sched := app.Scheduler()
	require.NoError(t, app.Shutdown())
	assert.NoError(t, app.Shutdown())

	_, err := sched.NewTask(commands.Command{Name: commands.Echo})
	assert.ErrorIs(t, err, scheduler.ErrTerminated)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	app := New(createTestConfig(t), createTestLogger(t), "")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return app.Scheduler() != nil }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_RunReturnsFatalError(t *testing.T) {
	app := New(createTestConfig(t), createTestLogger(t), "")
	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	require.Eventually(t, func() bool { return app.Scheduler() != nil }, 2*time.Second, 5*time.Millisecond)
	app.onPoolFailure(assert.AnError)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, assert.AnError)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after a fatal error")
	}
}

func TestApp_PIDFile(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.PIDFile = filepath.Join(t.TempDir(), "clusterd.pid")

	app := New(cfg, createTestLogger(t), "")
	require.NoError(t, app.Initialize(context.Background()))

	pid, err := pidfile.Read(cfg.PIDFile)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, app.Shutdown())
	_, err = os.Stat(cfg.PIDFile)
	assert.True(t, os.IsNotExist(err))
}

func TestApp_PIDFileOfRunningDaemon(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.PIDFile = filepath.Join(t.TempDir(), "clusterd.pid")
	require.NoError(t, os.WriteFile(cfg.PIDFile, []byte("1\n"), 0644))

	app := New(cfg, createTestLogger(t), "")
	err := app.Initialize(context.Background())
	assert.ErrorIs(t, err, pidfile.ErrAlreadyRunning)
	require.NoError(t, app.Shutdown())

	pid, err := pidfile.Read(cfg.PIDFile)
	require.NoError(t, err)
	assert.Equal(t, 1, pid, "foreign PID file must be kept")
}
