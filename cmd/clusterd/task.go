package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/aatumaykin/clusterd/internal/bus"
	"github.com/aatumaykin/clusterd/internal/client"
	"github.com/aatumaykin/clusterd/internal/commands"
	"github.com/aatumaykin/clusterd/internal/reports"
	"github.com/aatumaykin/clusterd/internal/scheduler"
)

var (
	taskServerURL string
	taskDebug     bool
	taskTimeout   time.Duration
)

// taskCmd groups the async task client commands.
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Run and manage asynchronous tasks",
	Long:  `Talk to a running clusterd daemon over its async task API.`,
}

var taskRunCmd = &cobra.Command{
	Use:   "run COMMAND... [key=value...]",
	Short: "Run a command as a task and wait for it",
	Long: `Create a task, print its reports as they arrive and print the result.
Words before the first key=value pair form the command name, e.g.

  clusterd task run node add node=node3

Values that are valid JSON are sent as JSON, anything else as a string.
Ctrl+C kills the task.`,
	Args: cobra.MinimumNArgs(1),
	RunE: taskRunHandler,
}

var taskGetCmd = &cobra.Command{
	Use:   "get TASK_IDENT",
	Short: "Print the current state of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := newTaskClient().GetTask(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		data, err := sonic.ConfigStd.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var taskKillCmd = &cobra.Command{
	Use:   "kill TASK_IDENT",
	Short: "Kill a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newTaskClient().KillTask(cmd.Context(), args[0])
	},
}

func taskRunHandler(cmd *cobra.Command, args []string) error {
	command, err := parseCommand(args)
	if err != nil {
		return err
	}
	if !commands.IsKnown(command.Name) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: unknown command '%s'\n", command.Name)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console := reports.NewConsole(cmd.ErrOrStderr(), taskDebug)
	id, result, err := newTaskClient().Run(ctx, command, console)
	if err != nil {
		if id != "" {
			return fmt.Errorf("task %s: %w", id, err)
		}
		return err
	}
	return printOutcome(cmd.OutOrStdout(), id, result)
}

func printOutcome(out io.Writer, id string, result scheduler.TaskResult) error {
	switch result.Outcome {
	case bus.OutcomeSuccess:
		if len(result.Result) > 0 && string(result.Result) != "null" {
			fmt.Fprintln(out, string(result.Result))
		}
		return nil
	case bus.OutcomeKill:
		return fmt.Errorf("task %s was killed (%s)", id, result.KillReason)
	case bus.OutcomeUnhandledException:
		return fmt.Errorf("task %s failed with an unhandled error, see the daemon log", id)
	default:
		return fmt.Errorf("task %s failed", id)
	}
}

// parseCommand splits the positional arguments into a command name and its
// parameters.
func parseCommand(args []string) (commands.Command, error) {
	var name []string
	params := map[string]any{}

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			if len(params) > 0 {
				return commands.Command{}, fmt.Errorf("unexpected argument '%s' after parameters", arg)
			}
			name = append(name, arg)
			continue
		}
		if key == "" {
			return commands.Command{}, fmt.Errorf("invalid parameter '%s'", arg)
		}
		params[key] = parseValue(value)
	}

	if len(name) == 0 {
		return commands.Command{}, errors.New("command name is missing")
	}
	return commands.Command{Name: commands.Name(strings.Join(name, " ")), Params: params}, nil
}

func parseValue(value string) any {
	if !sonic.Valid([]byte(value)) {
		return value
	}
	var v any
	if err := sonic.UnmarshalString(value, &v); err != nil {
		return value
	}
	return v
}

func newTaskClient() *client.Client {
	cfg := client.DefaultConfig()
	if taskServerURL != "" {
		cfg.ServerURL = strings.TrimRight(taskServerURL, "/")
	}
	if taskTimeout > 0 {
		cfg.RequestTimeout = taskTimeout
	}
	return client.NewClient(cfg)
}

func init() {
	taskCmd.PersistentFlags().StringVarP(&taskServerURL, "server", "s", "", "Daemon URL (default: http://127.0.0.1:2225)")
	taskCmd.PersistentFlags().DurationVar(&taskTimeout, "timeout", 0, "HTTP request timeout")
	taskRunCmd.Flags().BoolVarP(&taskDebug, "debug", "d", false, "Print debug reports")

	taskCmd.AddCommand(taskRunCmd)
	taskCmd.AddCommand(taskGetCmd)
	taskCmd.AddCommand(taskKillCmd)
}
