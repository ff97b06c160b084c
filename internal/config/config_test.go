package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 100*time.Millisecond, cfg.Scheduler.TickInterval())
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.ResultRetention())
	assert.Equal(t, time.Hour, cfg.Scheduler.MaxExecution())
	assert.Equal(t, time.Minute, cfg.Scheduler.IdleTimeout())
	assert.Equal(t, DefaultStatsSchedule, cfg.Scheduler.StatsSchedule)
	assert.Equal(t, DefaultPoolSize, cfg.Workers.PoolSize)
	assert.Equal(t, WorkerModeProcess, cfg.Workers.Mode)
	assert.Equal(t, "info", cfg.Workers.LogLevel)
	assert.Equal(t, DefaultBusCapacity, cfg.MessageBus.Capacity)
	assert.Equal(t, DefaultWorkerLogMaxAgeDays, cfg.Workers.LogMaxAgeDays)
	assert.Equal(t, DefaultLogCleanupSchedule, cfg.Workers.LogCleanupSchedule)
	assert.Empty(t, cfg.PIDFile)
	assert.NotNil(t, cfg.Commands.Argv)
	assert.Empty(t, cfg.Validate())
}

func TestLoad_TOML(t *testing.T) {
	t.Setenv("CLUSTERD_TEST_ADDR", "0.0.0.0:9999")

	path := filepath.Join(t.TempDir(), "clusterd.toml")
	content := `
pid_file = "/run/clusterd.pid"

[logging]
level = "debug"
format = "text"

[scheduler]
tick_interval_ms = 50
idle_timeout_seconds = 10

[workers]
pool_size = 2
max_tasks_per_worker = 3
mode = "inprocess"

[api]
enabled = true
address = "${CLUSTERD_TEST_ADDR:127.0.0.1:1}"

[commands.argv]
"node add" = ["/usr/sbin/cluster-node", "add", "{node}"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/run/clusterd.pid", cfg.PIDFile)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "debug", cfg.Workers.LogLevel)
	assert.Equal(t, 50*time.Millisecond, cfg.Scheduler.TickInterval())
	assert.Equal(t, 10*time.Second, cfg.Scheduler.IdleTimeout())
	assert.Equal(t, DefaultMaxExecutionSeconds, cfg.Scheduler.MaxExecutionSeconds)
	assert.Equal(t, 2, cfg.Workers.PoolSize)
	assert.Equal(t, WorkerModeInProcess, cfg.Workers.Mode)
	assert.Equal(t, "0.0.0.0:9999", cfg.API.Address)
	assert.Equal(t, []string{"/usr/sbin/cluster-node", "add", "{node}"}, cfg.Commands.Argv["node add"])
	assert.Empty(t, cfg.Validate())
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clusterd.yaml")
	content := `
logging:
  level: warn
workers:
  pool_size: 8
commands:
  argv:
    cluster status: ["/usr/sbin/cluster-status", "--full"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 8, cfg.Workers.PoolSize)
	assert.Equal(t, []string{"/usr/sbin/cluster-status", "--full"}, cfg.Commands.Argv["cluster status"])
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[workers\npool_size = "), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   int
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}, want: 0},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, want: 1},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, want: 1},
		{name: "negative pool size", mutate: func(c *Config) { c.Workers.PoolSize = -1 }, want: 1},
		{name: "bad worker mode", mutate: func(c *Config) { c.Workers.Mode = "thread" }, want: 1},
		{name: "bad stats schedule", mutate: func(c *Config) { c.Scheduler.StatsSchedule = "sometimes" }, want: 1},
		{name: "negative log retention", mutate: func(c *Config) { c.Workers.LogMaxFiles = -1 }, want: 1},
		{name: "bad cleanup schedule", mutate: func(c *Config) { c.Workers.LogCleanupSchedule = "never" }, want: 1},
		{name: "empty argv", mutate: func(c *Config) { c.Commands.Argv["echo"] = nil }, want: 1},
		{
			name: "several problems are collected",
			mutate: func(c *Config) {
				c.Scheduler.TickIntervalMs = -5
				c.MessageBus.Capacity = -1
				c.API.Enabled = true
				c.API.Address = ""
			},
			want: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Len(t, cfg.Validate(), tt.want)
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("CLUSTERD_SET", "value")

	assert.Equal(t, "value", expandEnv("${CLUSTERD_SET}"))
	assert.Equal(t, "value", expandEnv("${CLUSTERD_SET:fallback}"))
	assert.Equal(t, "fallback", expandEnv("${CLUSTERD_UNSET_VAR:fallback}"))
	assert.Equal(t, "value/sub", expandEnv("${CLUSTERD_SET}/sub"))
	assert.Equal(t, "plain", expandEnv("plain"))
	assert.Equal(t, "${broken", expandEnv("${broken"))
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "clusterd.example.toml"))
	require.NoError(t, err)

	assert.Empty(t, cfg.Validate())
	assert.Equal(t, "/run/clusterd.pid", cfg.PIDFile)
	assert.True(t, cfg.API.Enabled)
	assert.Len(t, cfg.Commands.Argv, 5)
}
