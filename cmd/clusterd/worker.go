package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/clusterd/internal/commands"
	"github.com/aatumaykin/clusterd/internal/config"
	"github.com/aatumaykin/clusterd/internal/logger"
	"github.com/aatumaykin/clusterd/internal/workers"
)

var workerConfigPath string

// workerCmd is started by the daemon for every pooled worker process. It
// reads jobs from stdin and writes task messages to stdout.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run a task worker on stdin/stdout",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   workerHandler,
}

func workerHandler(cmd *cobra.Command, args []string) error {
	// Ctrl+C в терминале демона не должен убивать воркеров, их останавливает пул
	signal.Ignore(syscall.SIGINT)

	cfg, _, err := loadConfig(workerConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	pid := os.Getpid()
	log, err := newWorkerLogger(cfg, pid, time.Now())
	if err != nil {
		return err
	}
	defer log.Close()
	log = log.With(logger.Field{Key: "worker_pid", Value: pid})

	registry, err := commands.BuiltinRegistry(cfg.Commands)
	if err != nil {
		log.Error("failed to build command registry", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
		log.Info("worker terminated")
		log.Close()
		os.Exit(0)
	}()

	log.Debug("worker started")
	if err := workers.Serve(ctx, os.Stdin, os.Stdout, workers.NewExecutor(registry, log, pid)); err != nil {
		log.Error("worker stopped with error", err)
		return err
	}
	log.Debug("worker finished")
	return nil
}

// newWorkerLogger opens the per-process log file. Workers must never log to
// stdout since it carries the message stream.
func newWorkerLogger(cfg *config.Config, pid int, now time.Time) (*logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:      cfg.Workers.LogLevel,
		Format:     cfg.Logging.Format,
		Output:     workers.LogPath(cfg.Workers.LogDir, pid, now),
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err == nil {
		return log, nil
	}

	fallback, ferr := logger.New(logger.Config{Level: cfg.Workers.LogLevel, Format: cfg.Logging.Format, Output: "stderr"})
	if ferr != nil {
		return nil, fmt.Errorf("failed to initialize worker logger: %w", err)
	}
	fallback.Warn("worker log file unavailable, logging to stderr", logger.Field{Key: "error", Value: err.Error()})
	return fallback, nil
}

func init() {
	workerCmd.Flags().StringVarP(&workerConfigPath, "config", "c", "", "Path to configuration file")
}
