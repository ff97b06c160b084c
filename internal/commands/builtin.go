package commands

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/wasilibs/go-re2"

	"github.com/aatumaykin/clusterd/internal/config"
	"github.com/aatumaykin/clusterd/internal/logger"
	"github.com/aatumaykin/clusterd/internal/reports"
	"github.com/aatumaykin/clusterd/internal/security"
)

// Report codes emitted by the builtin commands.
const (
	CodeMissingParameter     = "MISSING_PARAMETER"
	CodeCommandFailed        = "COMMAND_FAILED"
	CodeCommandExecuted      = "COMMAND_EXECUTED"
	CodeCommandNotConfigured = "COMMAND_NOT_CONFIGURED"
)

var placeholderPattern = re2.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Builtin returns bindings for every known command. Echo returns its
// parameters unchanged; the other commands run the argv template configured
// for them.
func Builtin(cfg config.CommandsConfig) (map[Name]Func, error) {
	for name := range cfg.Argv {
		if !IsKnown(Name(name)) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownBinding, name)
		}
	}

	bindings := make(map[Name]Func, len(names))
	for _, name := range names {
		if name == Echo {
			bindings[name] = EchoFunc
			continue
		}
		if argv, ok := cfg.Argv[string(name)]; ok && len(argv) > 0 {
			bindings[name] = ExecFunc(argv)
			continue
		}
		bindings[name] = notConfigured(name)
	}
	return bindings, nil
}

// BuiltinRegistry builds a complete registry from the builtin bindings.
func BuiltinRegistry(cfg config.CommandsConfig) (*Registry, error) {
	bindings, err := Builtin(cfg)
	if err != nil {
		return nil, err
	}
	return NewRegistry(bindings)
}

// EchoFunc returns the whole params map unchanged.
func EchoFunc(_ *Env, params map[string]any) (any, error) {
	return params, nil
}

func notConfigured(name Name) Func {
	return func(_ *Env, _ map[string]any) (any, error) {
		return nil, NewDomainError(reports.Error(
			CodeCommandNotConfigured,
			fmt.Sprintf("command %q is not configured on this node", name),
		))
	}
}

// ExecFunc returns a command running argv as an external program. Placeholders
// of the form {param} are replaced with parameter values; the program's
// standard output is the command result.
func ExecFunc(argv []string) Func {
	template := append([]string(nil), argv...)

	return func(env *Env, params map[string]any) (any, error) {
		args, missing := expandArgv(template, params)
		if len(missing) > 0 {
			items := make([]reports.Item, 0, len(missing))
			for _, p := range missing {
				items = append(items, reports.Error(CodeMissingParameter,
					fmt.Sprintf("required parameter '%s' is missing", p)).
					WithPayload(map[string]any{"parameter": p}))
			}
			return nil, NewDomainError(items...)
		}

		log := env.Logger
		if log == nil {
			log = logger.Discard()
		}
		shown, _ := expandArgv(template, security.RedactParams(params))
		shown = security.RedactArgv(shown)
		log.Info("Executing command", logger.Field{Key: "argv", Value: shown})

		if err := env.Report(reports.Info(CodeCommandExecuted,
			"running "+strings.Join(shown, " ")).
			WithPayload(map[string]any{"argv": shown})); err != nil {
			return nil, fmt.Errorf("failed to report command start: %w", err)
		}

		cmd := exec.CommandContext(env.Context, args[0], args[1:]...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				log.Warn("Command exited with error",
					logger.Field{Key: "exit_code", Value: exitErr.ExitCode()})
				return nil, NewDomainError(reports.Error(CodeCommandFailed,
					fmt.Sprintf("%s exited with code %d", args[0], exitErr.ExitCode())).
					WithPayload(map[string]any{
						"exit_code": exitErr.ExitCode(),
						"stderr":    strings.TrimSpace(stderr.String()),
					}))
			}
			return nil, fmt.Errorf("failed to run %s: %w", args[0], err)
		}

		return stdout.String(), nil
	}
}

// expandArgv substitutes {param} placeholders and returns the names of
// parameters that were referenced but not supplied, in order of appearance.
func expandArgv(template []string, params map[string]any) ([]string, []string) {
	var missing []string
	seen := map[string]bool{}

	out := make([]string, len(template))
	for i, arg := range template {
		out[i] = placeholderPattern.ReplaceAllStringFunc(arg, func(m string) string {
			key := m[1 : len(m)-1]
			v, ok := params[key]
			if !ok || v == nil {
				if !seen[key] {
					seen[key] = true
					missing = append(missing, key)
				}
				return m
			}
			return fmt.Sprint(v)
		})
	}
	return out, missing
}
