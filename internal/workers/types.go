// Package workers runs commands in a fixed-size pool of worker processes.
// Each worker executes one job at a time, streams the job's messages back to
// the daemon and is replaced after a bounded number of jobs.
package workers

import (
	"errors"
	"time"

	"github.com/aatumaykin/clusterd/internal/commands"
	"github.com/aatumaykin/clusterd/internal/retry"
)

// ErrPoolClosed is returned by Submit after the pool has been stopped.
var ErrPoolClosed = errors.New("worker pool is closed")

// Job is the unit of work handed to a worker.
type Job struct {
	TaskID  string           `json:"task_id"`
	Command commands.Command `json:"command"`
}

// CancelResult tells what Cancel found.
type CancelResult int

const (
	// CancelNotFound means the pool no longer knows the job.
	CancelNotFound CancelResult = iota
	// CancelPending means the job was removed before any worker took it.
	// No message for it will ever be published.
	CancelPending
	// CancelRunning means the worker running the job was terminated. Messages
	// already sent by the worker may still arrive.
	CancelRunning
)

func (r CancelResult) String() string {
	switch r {
	case CancelPending:
		return "pending"
	case CancelRunning:
		return "running"
	default:
		return "not_found"
	}
}

// PoolMetrics tracks execution metrics for the worker pool.
type PoolMetrics struct {
	JobsSubmitted   uint64
	JobsCompleted   uint64
	JobsCancelled   uint64
	JobsLost        uint64
	WorkersSpawned  uint64
	WorkersRecycled uint64
	Pending         int
	Busy            int
}

// Config holds the pool settings.
type Config struct {
	Size              int
	MaxTasksPerWorker int
	// StopTimeout bounds how long a recycled worker gets to exit on its own.
	StopTimeout time.Duration
	SpawnRetry  retry.Config
	Prometheus  *PrometheusMetrics
}

// Constants for worker pool configuration
const (
	DefaultPoolSize          = 4
	DefaultMaxTasksPerWorker = 10
	DefaultStopTimeout       = 5 * time.Second
)
