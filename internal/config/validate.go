package config

import (
	"fmt"
	"strings"

	"github.com/aatumaykin/clusterd/internal/cron"
)

// Validate проверяет валидность конфигурации и возвращает все найденные ошибки
func (c *Config) Validate() []error {
	var errs []error

	// Проверка logging config
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
	}
	if !validLevels[strings.ToLower(c.Workers.LogLevel)] {
		errs = append(errs, fmt.Errorf("invalid workers.log_level: %s (expected: debug, info, warn, error)", c.Workers.LogLevel))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
	}
	if c.Logging.Output == "" {
		errs = append(errs, fmt.Errorf("logging.output is required"))
	}

	errs = append(errs, positive("scheduler.tick_interval_ms", c.Scheduler.TickIntervalMs)...)
	errs = append(errs, positive("scheduler.result_retention_seconds", c.Scheduler.ResultRetentionSeconds)...)
	errs = append(errs, positive("scheduler.max_execution_seconds", c.Scheduler.MaxExecutionSeconds)...)
	errs = append(errs, positive("scheduler.idle_timeout_seconds", c.Scheduler.IdleTimeoutSeconds)...)
	if err := cron.ValidateSchedule(c.Scheduler.StatsSchedule); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.stats_schedule: %w", err))
	}
	errs = append(errs, positive("workers.pool_size", c.Workers.PoolSize)...)
	errs = append(errs, positive("workers.max_tasks_per_worker", c.Workers.MaxTasksPerWorker)...)
	errs = append(errs, positive("message_bus.capacity", c.MessageBus.Capacity)...)
	if c.Workers.LogMaxAgeDays < 0 || c.Workers.LogMaxFiles < 0 {
		errs = append(errs, fmt.Errorf("workers.log_max_age_days and workers.log_max_files must be >= 0"))
	}
	if err := cron.ValidateSchedule(c.Workers.LogCleanupSchedule); err != nil {
		errs = append(errs, fmt.Errorf("workers.log_cleanup_schedule: %w", err))
	}

	switch c.Workers.Mode {
	case WorkerModeProcess, WorkerModeInProcess:
	default:
		errs = append(errs, fmt.Errorf("invalid workers.mode: %s (expected: %s, %s)",
			c.Workers.Mode, WorkerModeProcess, WorkerModeInProcess))
	}

	if c.API.Enabled && c.API.Address == "" {
		errs = append(errs, fmt.Errorf("api.address is required when api is enabled"))
	}
	if c.API.MaxTasksPerMinute < 0 {
		errs = append(errs, fmt.Errorf("api.max_tasks_per_minute must be >= 0 (got %d)", c.API.MaxTasksPerMinute))
	}

	for name, argv := range c.Commands.Argv {
		if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
			errs = append(errs, fmt.Errorf("commands.argv[%q] must start with an executable", name))
		}
	}

	return errs
}

func positive(field string, v int) []error {
	if v <= 0 {
		return []error{fmt.Errorf("%s must be > 0 (got %d)", field, v)}
	}
	return nil
}
