package reports

import (
	"fmt"
	"io"
	"slices"
)

var forceTexts = map[string]string{
	"SKIP_OFFLINE_NODES": ", use --skip-offline to override",
}

// Console prints report items for a human in the way the cluster CLI does.
type Console struct {
	out    io.Writer
	debug  bool
	ignore []Severity
}

// NewConsole creates a console processor writing to out. Debug items are
// printed only when debug is set.
func NewConsole(out io.Writer, debug bool) *Console {
	return &Console{out: out, debug: debug}
}

// Suppress hides items of the given severities. Debug items are still
// printed in debug mode.
func (c *Console) Suppress(severities ...Severity) {
	c.ignore = severities
}

// Report prints item.
func (c *Console) Report(item Item) error {
	line, ok := c.Format(item)
	if !ok {
		return nil
	}
	_, err := fmt.Fprintln(c.out, line)
	return err
}

// Format renders item as a single line. ok is false when the item is not printed.
func (c *Console) Format(item Item) (line string, ok bool) {
	msg := item.Message
	if item.Context != nil && item.Context.Node != "" {
		msg = item.Context.Node + ": " + msg
	}

	if slices.Contains(c.ignore, item.Severity) {
		if msg != "" && c.debug && item.Severity == SeverityDebug {
			return msg, true
		}
		return "", false
	}

	switch item.Severity {
	case SeverityError:
		return "Error: " + msg + forceText(item.ForceCode), true
	case SeverityWarning:
		return "Warning: " + msg, true
	case SeverityDeprecation:
		return "Deprecation Warning: " + msg, true
	}
	if msg == "" || (item.Severity == SeverityDebug && !c.debug) {
		return "", false
	}
	return msg, true
}

func forceText(forceCode string) string {
	if forceCode == "" {
		return ""
	}
	if text, ok := forceTexts[forceCode]; ok {
		return text
	}
	return ", use --force to override"
}
