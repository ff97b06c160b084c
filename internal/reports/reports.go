// Package reports defines the report items commands emit while they run and
// the processors that deliver them.
package reports

import (
	"errors"
	"sync"
)

// Severity is the importance of a report item.
type Severity string

const (
	SeverityError       Severity = "ERROR"
	SeverityWarning     Severity = "WARNING"
	SeverityInfo        Severity = "INFO"
	SeverityDebug       Severity = "DEBUG"
	SeverityDeprecation Severity = "DEPRECATION"
)

// Context carries the node a report relates to, if any.
type Context struct {
	Node string `json:"node"`
}

// Item is a single structured diagnostic produced by a command.
type Item struct {
	Severity Severity       `json:"severity"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Payload  map[string]any `json:"payload,omitempty"`
	Context  *Context       `json:"context,omitempty"`
	// ForceCode is set on errors the user may override with a force flag.
	ForceCode string `json:"force_code,omitempty"`
}

// WithNode returns a copy of the item bound to node.
func (i Item) WithNode(node string) Item {
	i.Context = &Context{Node: node}
	return i
}

// WithPayload returns a copy of the item carrying payload.
func (i Item) WithPayload(payload map[string]any) Item {
	i.Payload = payload
	return i
}

// Forceable returns a copy of the item marked as overridable with forceCode.
func (i Item) Forceable(forceCode string) Item {
	i.ForceCode = forceCode
	return i
}

func newItem(s Severity, code, msg string) Item {
	return Item{Severity: s, Code: code, Message: msg}
}

// Error creates an error report item.
func Error(code, msg string) Item { return newItem(SeverityError, code, msg) }

// Warning creates a warning report item.
func Warning(code, msg string) Item { return newItem(SeverityWarning, code, msg) }

// Info creates an info report item.
func Info(code, msg string) Item { return newItem(SeverityInfo, code, msg) }

// Debug creates a debug report item.
func Debug(code, msg string) Item { return newItem(SeverityDebug, code, msg) }

// Deprecation creates a deprecation report item.
func Deprecation(code, msg string) Item { return newItem(SeverityDeprecation, code, msg) }

// List is an ordered list of report items.
type List []Item

// HasErrors reports whether any item has error severity.
func (l List) HasErrors() bool {
	for _, item := range l {
		if item.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Processor receives report items in emission order.
type Processor interface {
	Report(item Item) error
}

// ReportAll sends every item to p, stopping at the first failure.
func ReportAll(p Processor, items ...Item) error {
	for _, item := range items {
		if err := p.Report(item); err != nil {
			return err
		}
	}
	return nil
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(item Item) error

// Report calls f(item).
func (f ProcessorFunc) Report(item Item) error {
	return f(item)
}

// Collector keeps every reported item in memory.
type Collector struct {
	mu    sync.Mutex
	items List
}

// Report appends item.
func (c *Collector) Report(item Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, item)
	return nil
}

// Items returns a copy of the collected items.
func (c *Collector) Items() List {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(List(nil), c.items...)
}

// ErrDiscarded is returned by Discard for every item.
var ErrDiscarded = errors.New("report discarded")

// Discard is a processor that refuses every item.
var Discard Processor = ProcessorFunc(func(Item) error { return ErrDiscarded })
