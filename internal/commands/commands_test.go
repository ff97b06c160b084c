package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/clusterd/internal/config"
	"github.com/aatumaykin/clusterd/internal/logger"
	"github.com/aatumaykin/clusterd/internal/reports"
)

func noop(_ *Env, _ map[string]any) (any, error) { return nil, nil }

func testEnv(c *reports.Collector) *Env {
	return &Env{
		Context: context.Background(),
		TaskID:  "task-1",
		Logger:  logger.Discard(),
		Reports: c,
	}
}

func TestNewRegistryFor(t *testing.T) {
	set := []Name{Echo, NodeAdd}

	t.Run("complete", func(t *testing.T) {
		r, err := NewRegistryFor(set, map[Name]Func{Echo: noop, NodeAdd: noop})
		require.NoError(t, err)
		assert.Equal(t, []Name{Echo, NodeAdd}, r.Names())

		_, ok := r.Lookup(Echo)
		assert.True(t, ok)
		_, ok = r.Lookup(ClusterSetup)
		assert.False(t, ok)
	})

	t.Run("missing binding", func(t *testing.T) {
		_, err := NewRegistryFor(set, map[Name]Func{Echo: noop})
		assert.ErrorIs(t, err, ErrIncompleteRegistry)
	})

	t.Run("nil binding", func(t *testing.T) {
		_, err := NewRegistryFor(set, map[Name]Func{Echo: noop, NodeAdd: nil})
		assert.ErrorIs(t, err, ErrIncompleteRegistry)
	})

	t.Run("binding outside set", func(t *testing.T) {
		_, err := NewRegistryFor(set, map[Name]Func{Echo: noop, NodeAdd: noop, "reboot": noop})
		assert.ErrorIs(t, err, ErrUnknownBinding)
	})
}

func TestBuiltinRegistry(t *testing.T) {
	r, err := BuiltinRegistry(config.CommandsConfig{})
	require.NoError(t, err)
	assert.Len(t, r.Names(), len(Names()))

	_, err = BuiltinRegistry(config.CommandsConfig{Argv: map[string][]string{"reboot": {"reboot"}}})
	assert.ErrorIs(t, err, ErrUnknownBinding)
}

func TestEcho(t *testing.T) {
	params := map[string]any{"a": "b", "n": float64(1)}
	out, err := EchoFunc(nil, params)
	require.NoError(t, err)
	assert.Equal(t, params, out)
}

func TestNotConfigured(t *testing.T) {
	r, err := BuiltinRegistry(config.CommandsConfig{})
	require.NoError(t, err)

	fn, ok := r.Lookup(ClusterSetup)
	require.True(t, ok)

	_, err = fn(testEnv(&reports.Collector{}), nil)
	var domainErr *DomainError
	require.True(t, errors.As(err, &domainErr))
	require.Len(t, domainErr.Reports, 1)
	assert.Equal(t, CodeCommandNotConfigured, domainErr.Reports[0].Code)
}

func TestExecFunc(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var c reports.Collector
		fn := ExecFunc([]string{"sh", "-c", "echo added {node}"})

		out, err := fn(testEnv(&c), map[string]any{"node": "node1"})
		require.NoError(t, err)
		assert.Equal(t, "added node1\n", out)

		items := c.Items()
		require.Len(t, items, 1)
		assert.Equal(t, CodeCommandExecuted, items[0].Code)
	})

	t.Run("secrets are masked in reports", func(t *testing.T) {
		var c reports.Collector
		fn := ExecFunc([]string{"sh", "-c", "test \"$0\" = s3cret", "{password}"})

		_, err := fn(testEnv(&c), map[string]any{"password": "s3cret"})
		require.NoError(t, err)

		items := c.Items()
		require.Len(t, items, 1)
		assert.NotContains(t, items[0].Message, "s3cret")
		assert.Contains(t, items[0].Message, "***")
	})

	t.Run("missing parameter", func(t *testing.T) {
		var c reports.Collector
		fn := ExecFunc([]string{"true", "{node}", "{force}", "{node}"})

		_, err := fn(testEnv(&c), map[string]any{})
		var domainErr *DomainError
		require.True(t, errors.As(err, &domainErr))
		require.Len(t, domainErr.Reports, 2)
		assert.Equal(t, "node", domainErr.Reports[0].Payload["parameter"])
		assert.Equal(t, "force", domainErr.Reports[1].Payload["parameter"])
		assert.Empty(t, c.Items())
	})

	t.Run("non-zero exit", func(t *testing.T) {
		fn := ExecFunc([]string{"sh", "-c", "echo broken >&2; exit 3"})

		_, err := fn(testEnv(&reports.Collector{}), nil)
		var domainErr *DomainError
		require.True(t, errors.As(err, &domainErr))
		require.Len(t, domainErr.Reports, 1)
		assert.Equal(t, CodeCommandFailed, domainErr.Reports[0].Code)
		assert.Equal(t, 3, domainErr.Reports[0].Payload["exit_code"])
		assert.Equal(t, "broken", domainErr.Reports[0].Payload["stderr"])
	})

	t.Run("missing executable is not a domain error", func(t *testing.T) {
		fn := ExecFunc([]string{"/nonexistent/clusterd-test-binary"})

		_, err := fn(testEnv(&reports.Collector{}), nil)
		require.Error(t, err)
		var domainErr *DomainError
		assert.False(t, errors.As(err, &domainErr))
	})
}

func TestDomainError_Error(t *testing.T) {
	assert.Equal(t, "command failed", NewDomainError().Error())
	assert.Equal(t, "command failed: A: a; B: b",
		NewDomainError(reports.Error("A", "a"), reports.Warning("B", "b")).Error())
}
