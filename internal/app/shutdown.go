package app

import (
	"os"
	"time"

	"github.com/aatumaykin/clusterd/internal/pidfile"
)

// apiShutdownTimeout bounds in-flight HTTP requests on shutdown.
const apiShutdownTimeout = 10 * time.Second

// Shutdown performs graceful shutdown of all components.
// It stops the application in the following order:
//  1. Cancels the application context
//  2. Stops the HTTP API so no new tasks arrive
//  3. Stops the cron driver and waits for a running tick
//  4. Terminates the scheduler, which stops the worker pool
//  5. Stops the message channel
//  6. Removes the PID file
//
// Components of a partially initialized app are stopped too.
// The method is thread-safe and can be called from multiple goroutines.
func (a *App) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.shutdownInternal()
}

func (a *App) shutdownInternal() error {
	if a.cancel == nil {
		return nil
	}
	a.cancel()

	if a.apiServer != nil {
		if err := a.apiServer.ShutdownWithTimeout(apiShutdownTimeout); err != nil {
			a.logger.Error("Failed to stop http api", err)
		}
		a.apiServer = nil
	}

	if a.cronScheduler != nil {
		if err := a.cronScheduler.Stop(); err != nil {
			a.logger.Error("Failed to stop cron scheduler", err)
		}
		a.cronScheduler = nil
	}

	if a.scheduler != nil {
		a.scheduler.Terminate()
	} else if a.workerPool != nil {
		a.workerPool.Stop()
	}
	a.workerPool = nil

	var busErr error
	if a.channel != nil {
		busErr = a.channel.Stop()
		if busErr != nil {
			a.logger.Error("Failed to stop message channel", busErr)
		}
		a.channel = nil
	}

	if a.pidFile != "" {
		if err := pidfile.Remove(a.pidFile, os.Getpid()); err != nil {
			a.logger.Error("Failed to remove PID file", err)
		}
		a.pidFile = ""
	}

	a.cancel = nil
	a.started = false
	a.logger.Info("Application shutdown complete")

	return busErr
}
