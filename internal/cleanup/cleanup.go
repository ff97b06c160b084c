// Package cleanup removes worker log files that outlived their retention.
package cleanup

import (
	"errors"
	"os"
	"time"

	"github.com/aatumaykin/clusterd/internal/logger"
)

// Run deletes expired worker logs. Files of the processes in active are
// never deleted and do not count against MaxFiles.
func (r *Runner) Run(active []int, log *logger.Logger) (Stats, error) {
	if log == nil {
		log = logger.Discard()
	}
	startTime := r.now()
	stats := Stats{}

	logs, err := ListLogs(r.config.Dir)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug("worker log directory does not exist, skipping cleanup",
			logger.Field{Key: "dir", Value: r.config.Dir})
		return stats, nil
	}
	if err != nil {
		log.Error("failed to list worker logs for cleanup", err)
		return stats, err
	}
	stats.FilesScanned = len(logs)

	live := make(map[int]bool, len(active))
	for _, pid := range active {
		live[pid] = true
	}

	var cutoff time.Time
	if r.config.MaxAgeDays > 0 {
		cutoff = startTime.AddDate(0, 0, -r.config.MaxAgeDays)
	}

	kept := 0
	for _, f := range logs {
		if live[f.Pid] {
			continue
		}

		expired := !cutoff.IsZero() && f.ModTime.Before(cutoff)
		overflow := r.config.MaxFiles > 0 && kept >= r.config.MaxFiles
		if !expired && !overflow {
			kept++
			continue
		}

		if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Error("failed to delete worker log", err, logger.Field{Key: "path", Value: f.Path})
			continue
		}
		stats.FilesDeleted++
		stats.BytesFreed += f.Size
		log.Debug("deleted worker log",
			logger.Field{Key: "path", Value: f.Path},
			logger.Field{Key: "size_bytes", Value: f.Size})
	}

	stats.Duration = r.now().Sub(startTime)
	r.lastRun = startTime
	r.stats = stats

	if stats.FilesDeleted > 0 {
		log.Info("worker log cleanup completed",
			logger.Field{Key: "files_scanned", Value: stats.FilesScanned},
			logger.Field{Key: "files_deleted", Value: stats.FilesDeleted},
			logger.Field{Key: "bytes_freed", Value: stats.BytesFreed},
			logger.Field{Key: "duration_ms", Value: stats.Duration.Milliseconds()})
	} else {
		log.Debug("worker log cleanup completed: nothing to delete")
	}
	return stats, nil
}
