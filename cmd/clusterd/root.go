package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/clusterd/internal/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "clusterd",
	Short: "clusterd - cluster management daemon",
	Long: `clusterd runs long cluster operations as asynchronous tasks.
The daemon accepts commands over HTTP, executes them in a pool of worker
processes and keeps their reports until a client picks them up.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(taskCmd)
}

// loadConfig reads the configuration file. An empty path means the default
// location; when that file does not exist the built-in defaults are used and
// the returned path is empty.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	if _, err := os.Stat(config.DefaultConfigPath); errors.Is(err, os.ErrNotExist) {
		return config.Default(), "", nil
	}
	cfg, err := config.Load(config.DefaultConfigPath)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", config.DefaultConfigPath, err)
	}
	return cfg, config.DefaultConfigPath, nil
}
