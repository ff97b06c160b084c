package reports

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_Format(t *testing.T) {
	tests := []struct {
		name   string
		debug  bool
		item   Item
		want   string
		hidden bool
	}{
		{name: "error", item: Error("E", "boom"), want: "Error: boom"},
		{name: "forceable error", item: Error("E", "boom").Forceable("FORCE"), want: "Error: boom, use --force to override"},
		{name: "skip offline", item: Error("E", "boom").Forceable("SKIP_OFFLINE_NODES"), want: "Error: boom, use --skip-offline to override"},
		{name: "warning with node", item: Warning("W", "careful").WithNode("node1"), want: "Warning: node1: careful"},
		{name: "deprecation", item: Deprecation("D", "old"), want: "Deprecation Warning: old"},
		{name: "info", item: Info("I", "hello"), want: "hello"},
		{name: "debug hidden", item: Debug("D", "trace"), hidden: true},
		{name: "debug shown", debug: true, item: Debug("D", "trace"), want: "trace"},
		{name: "empty info", item: Info("I", ""), hidden: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, ok := NewConsole(&bytes.Buffer{}, tt.debug).Format(tt.item)
			if tt.hidden {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, line)
		})
	}
}

func TestConsole_Suppress(t *testing.T) {
	buf := &bytes.Buffer{}
	c := NewConsole(buf, true)
	c.Suppress(SeverityWarning, SeverityDebug)

	require.NoError(t, ReportAll(c,
		Warning("W", "quiet"),
		Debug("D", "still printed"),
		Info("I", "printed"),
	))

	assert.Equal(t, "still printed\nprinted\n", buf.String())
}

func TestCollector(t *testing.T) {
	var c Collector
	require.NoError(t, ReportAll(&c, Info("A", "a"), Error("B", "b")))

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].Code)
	assert.True(t, items.HasErrors())
	assert.False(t, items[:1].HasErrors())
}

func TestDiscard(t *testing.T) {
	assert.ErrorIs(t, ReportAll(Discard, Info("A", "a")), ErrDiscarded)
}
