// Package config provides configuration loading and validation for clusterd.
// It supports TOML and YAML configuration files with environment variable
// expansion, default values, and validation.
//
// Configuration structure:
//   - [logging]: Logging level, format, output and rotation
//   - [scheduler]: Tick interval and garbage collection thresholds
//   - [workers]: Worker process pool settings
//   - [message_bus]: Worker to scheduler channel capacity
//   - [api]: HTTP front end
//   - [metrics]: Prometheus namespace
//   - [commands]: Argv templates for the cluster commands
//   - pid_file: Guard against a second daemon
//
// Environment variables:
// Environment variables can be referenced using ${VAR} or ${VAR:default} syntax.
// For example: address = "${CLUSTERD_ADDR:127.0.0.1:2225}"
package config

import "time"

// Config represents the main daemon configuration.
type Config struct {
	Logging    LoggingConfig    `toml:"logging" yaml:"logging"`
	Scheduler  SchedulerConfig  `toml:"scheduler" yaml:"scheduler"`
	Workers    WorkersConfig    `toml:"workers" yaml:"workers"`
	MessageBus MessageBusConfig `toml:"message_bus" yaml:"message_bus"`
	API        APIConfig        `toml:"api" yaml:"api"`
	Metrics    MetricsConfig    `toml:"metrics" yaml:"metrics"`
	Commands   CommandsConfig   `toml:"commands" yaml:"commands"`

	// PIDFile is written on start and removed on shutdown. Empty disables it.
	PIDFile string `toml:"pid_file" yaml:"pid_file"`
}

// LoggingConfig представляет конфигурацию логирования
type LoggingConfig struct {
	Level      string `toml:"level" yaml:"level"`
	Format     string `toml:"format" yaml:"format"`
	Output     string `toml:"output" yaml:"output"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
}

// SchedulerConfig holds the tick cadence and task garbage collection thresholds.
type SchedulerConfig struct {
	TickIntervalMs         int `toml:"tick_interval_ms" yaml:"tick_interval_ms"`
	ResultRetentionSeconds int `toml:"result_retention_seconds" yaml:"result_retention_seconds"`
	MaxExecutionSeconds    int `toml:"max_execution_seconds" yaml:"max_execution_seconds"`
	IdleTimeoutSeconds     int `toml:"idle_timeout_seconds" yaml:"idle_timeout_seconds"`
	// StatsSchedule is the cron expression of the pool statistics log line.
	StatsSchedule string `toml:"stats_schedule" yaml:"stats_schedule"`
}

// TickInterval returns the scheduler tick period.
func (c SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// ResultRetention returns how long a finished result waits for its client.
func (c SchedulerConfig) ResultRetention() time.Duration {
	return time.Duration(c.ResultRetentionSeconds) * time.Second
}

// MaxExecution returns the longest time a task may stay executed.
func (c SchedulerConfig) MaxExecution() time.Duration {
	return time.Duration(c.MaxExecutionSeconds) * time.Second
}

// IdleTimeout returns how long a task may go without client activity.
func (c SchedulerConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// Worker pool modes.
const (
	WorkerModeProcess   = "process"
	WorkerModeInProcess = "inprocess"
)

// WorkersConfig представляет конфигурацию worker pool
type WorkersConfig struct {
	PoolSize           int    `toml:"pool_size" yaml:"pool_size"`
	MaxTasksPerWorker  int    `toml:"max_tasks_per_worker" yaml:"max_tasks_per_worker"`
	Mode               string `toml:"mode" yaml:"mode"`
	Executable         string `toml:"executable" yaml:"executable"`
	LogDir             string `toml:"log_dir" yaml:"log_dir"`
	LogLevel           string `toml:"log_level" yaml:"log_level"`
	StopTimeoutSeconds int    `toml:"stop_timeout_seconds" yaml:"stop_timeout_seconds"`
	SpawnRetryAttempts int    `toml:"spawn_retry_attempts" yaml:"spawn_retry_attempts"`

	// Retention of per-process worker log files. Zero disables a limit.
	LogMaxAgeDays      int    `toml:"log_max_age_days" yaml:"log_max_age_days"`
	LogMaxFiles        int    `toml:"log_max_files" yaml:"log_max_files"`
	LogCleanupSchedule string `toml:"log_cleanup_schedule" yaml:"log_cleanup_schedule"`
}

// StopTimeout returns how long a worker process gets to exit before it is killed.
func (c WorkersConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutSeconds) * time.Second
}

// MessageBusConfig представляет конфигурацию message bus
type MessageBusConfig struct {
	Capacity int `toml:"capacity" yaml:"capacity"`
}

// APIConfig configures the HTTP front end.
type APIConfig struct {
	Enabled             bool   `toml:"enabled" yaml:"enabled"`
	Address             string `toml:"address" yaml:"address"`
	ReadTimeoutSeconds  int    `toml:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `toml:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	EnableMetrics       bool   `toml:"enable_metrics" yaml:"enable_metrics"`
	MaxTasksPerMinute   int    `toml:"max_tasks_per_minute" yaml:"max_tasks_per_minute"`
}

// MetricsConfig configures prometheus collectors.
type MetricsConfig struct {
	Namespace string `toml:"namespace" yaml:"namespace"`
}

// CommandsConfig maps command names to argv templates with {param} placeholders.
type CommandsConfig struct {
	Argv map[string][]string `toml:"argv" yaml:"argv"`
}

// ReadTimeout returns the HTTP read timeout.
func (c APIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the HTTP write timeout.
func (c APIConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}
