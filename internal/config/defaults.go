package config

// Default values. The scheduler thresholds follow the daemon's historic
// behaviour: results are kept for five minutes, executions are capped at one
// hour and a task with no client activity for a minute is abandoned.
const (
	DefaultTickIntervalMs         = 100
	DefaultResultRetentionSeconds = 5 * 60
	DefaultMaxExecutionSeconds    = 60 * 60
	DefaultIdleTimeoutSeconds     = 60
	DefaultPoolSize               = 4
	DefaultMaxTasksPerWorker      = 10
	DefaultBusCapacity            = 1000
	DefaultAPIAddress             = "127.0.0.1:2225"
	DefaultMetricsNamespace       = "clusterd"
	DefaultStatsSchedule          = "@every 1m"
	DefaultConfigPath             = "/etc/clusterd/clusterd.toml"
	DefaultWorkerLogMaxAgeDays    = 14
	DefaultLogCleanupSchedule     = "@daily"
)

// applyDefaults применяет значения по умолчанию
func applyDefaults(c *Config) {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}

	if c.Scheduler.TickIntervalMs == 0 {
		c.Scheduler.TickIntervalMs = DefaultTickIntervalMs
	}
	if c.Scheduler.ResultRetentionSeconds == 0 {
		c.Scheduler.ResultRetentionSeconds = DefaultResultRetentionSeconds
	}
	if c.Scheduler.MaxExecutionSeconds == 0 {
		c.Scheduler.MaxExecutionSeconds = DefaultMaxExecutionSeconds
	}
	if c.Scheduler.IdleTimeoutSeconds == 0 {
		c.Scheduler.IdleTimeoutSeconds = DefaultIdleTimeoutSeconds
	}
	if c.Scheduler.StatsSchedule == "" {
		c.Scheduler.StatsSchedule = DefaultStatsSchedule
	}

	if c.Workers.PoolSize == 0 {
		c.Workers.PoolSize = DefaultPoolSize
	}
	if c.Workers.MaxTasksPerWorker == 0 {
		c.Workers.MaxTasksPerWorker = DefaultMaxTasksPerWorker
	}
	if c.Workers.Mode == "" {
		c.Workers.Mode = WorkerModeProcess
	}
	if c.Workers.LogDir == "" {
		c.Workers.LogDir = "/var/log/clusterd/workers"
	}
	if c.Workers.LogLevel == "" {
		c.Workers.LogLevel = c.Logging.Level
	}
	if c.Workers.StopTimeoutSeconds == 0 {
		c.Workers.StopTimeoutSeconds = 5
	}
	if c.Workers.SpawnRetryAttempts == 0 {
		c.Workers.SpawnRetryAttempts = 3
	}
	if c.Workers.LogMaxAgeDays == 0 {
		c.Workers.LogMaxAgeDays = DefaultWorkerLogMaxAgeDays
	}
	if c.Workers.LogCleanupSchedule == "" {
		c.Workers.LogCleanupSchedule = DefaultLogCleanupSchedule
	}

	if c.MessageBus.Capacity == 0 {
		c.MessageBus.Capacity = DefaultBusCapacity
	}

	if c.API.Address == "" {
		c.API.Address = DefaultAPIAddress
	}
	if c.API.ReadTimeoutSeconds == 0 {
		c.API.ReadTimeoutSeconds = 30
	}
	if c.API.WriteTimeoutSeconds == 0 {
		c.API.WriteTimeoutSeconds = 30
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
	}

	if c.Commands.Argv == nil {
		c.Commands.Argv = map[string][]string{}
	}
}
