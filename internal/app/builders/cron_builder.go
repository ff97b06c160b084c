package builders

import (
	"context"
	"fmt"

	"github.com/aatumaykin/clusterd/internal/cleanup"
	"github.com/aatumaykin/clusterd/internal/config"
	"github.com/aatumaykin/clusterd/internal/cron"
	"github.com/aatumaykin/clusterd/internal/logger"
	"github.com/aatumaykin/clusterd/internal/scheduler"
	"github.com/aatumaykin/clusterd/internal/workers"
)

const (
	TickJob    = "scheduler tick"
	StatsJob   = "pool stats"
	CleanupJob = "worker log cleanup"
)

type CronBuilder struct {
	config *config.Config
	logger *logger.Logger
}

func NewCronBuilder(cfg *config.Config, log *logger.Logger) *CronBuilder {
	return &CronBuilder{
		config: cfg,
		logger: log,
	}
}

// BuildAndStart registers the tick, stats and log cleanup jobs and starts
// the driver.
func (b *CronBuilder) BuildAndStart(ctx context.Context, sched *scheduler.Scheduler, pool *workers.WorkerPool) (*cron.Scheduler, error) {
	driver := cron.NewScheduler(b.logger)

	if err := driver.AddJob(cron.Job{
		Name:     TickJob,
		Interval: b.config.Scheduler.TickInterval(),
		Run:      func(context.Context) { sched.Tick() },
	}); err != nil {
		return nil, fmt.Errorf("failed to add tick job: %w", err)
	}

	if err := driver.AddJob(cron.Job{
		Name:     StatsJob,
		Schedule: b.config.Scheduler.StatsSchedule,
		Run:      func(context.Context) { b.logStats(sched, pool) },
	}); err != nil {
		return nil, fmt.Errorf("failed to add stats job: %w", err)
	}

	if runner := b.cleanupRunner(); runner != nil {
		if err := driver.AddJob(cron.Job{
			Name:     CleanupJob,
			Schedule: b.config.Workers.LogCleanupSchedule,
			Run: func(context.Context) {
				_, _ = runner.Run(pool.Pids(), b.logger)
			},
		}); err != nil {
			return nil, fmt.Errorf("failed to add cleanup job: %w", err)
		}
	}

	if err := driver.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start cron scheduler: %w", err)
	}
	return driver, nil
}

// cleanupRunner returns nil when workers do not write their own log files
// or no retention limit is set.
func (b *CronBuilder) cleanupRunner() *cleanup.Runner {
	w := b.config.Workers
	if w.Mode != config.WorkerModeProcess || (w.LogMaxAgeDays == 0 && w.LogMaxFiles == 0) {
		return nil
	}
	return cleanup.NewRunner(cleanup.Config{
		Dir:        w.LogDir,
		MaxAgeDays: w.LogMaxAgeDays,
		MaxFiles:   w.LogMaxFiles,
	})
}

func (b *CronBuilder) logStats(sched *scheduler.Scheduler, pool *workers.WorkerPool) {
	st := sched.Stats()
	pm := pool.Metrics()
	b.logger.Info("pool stats",
		logger.Field{Key: "tasks_created", Value: st.Created},
		logger.Field{Key: "tasks_queued", Value: st.Queued},
		logger.Field{Key: "tasks_executed", Value: st.Executed},
		logger.Field{Key: "tasks_finished", Value: st.Finished},
		logger.Field{Key: "kill_requested", Value: st.KillRequested},
		logger.Field{Key: "jobs_pending", Value: pm.Pending},
		logger.Field{Key: "workers_busy", Value: pm.Busy},
		logger.Field{Key: "workers_spawned", Value: pm.WorkersSpawned},
		logger.Field{Key: "workers_recycled", Value: pm.WorkersRecycled},
		logger.Field{Key: "jobs_lost", Value: pm.JobsLost})
}
