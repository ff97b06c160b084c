package cleanup

import "time"

// Stats holds statistics about cleanup operations.
type Stats struct {
	FilesScanned int           // Number of worker log files found
	FilesDeleted int           // Number of files deleted
	BytesFreed   int64         // Bytes freed
	Duration     time.Duration // Time taken for cleanup
}

// Config holds configuration for cleanup operations.
type Config struct {
	Dir        string // Directory with worker log files
	MaxAgeDays int    // Delete files older than N days (0 = no limit)
	MaxFiles   int    // Keep at most N files (0 = no limit)
}

// Runner removes stale worker log files.
type Runner struct {
	config  Config
	now     func() time.Time
	stats   Stats
	lastRun time.Time
}

// NewRunner creates a new cleanup runner.
func NewRunner(config Config) *Runner {
	return &Runner{
		config: config,
		now:    time.Now,
	}
}

// LastRun returns the time and statistics of the previous run.
func (r *Runner) LastRun() (time.Time, Stats) {
	return r.lastRun, r.stats
}
