// Package commands defines the closed set of cluster commands a task can run
// and the registry binding each name to its implementation.
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/aatumaykin/clusterd/internal/logger"
	"github.com/aatumaykin/clusterd/internal/reports"
)

// Name identifies a command.
type Name string

const (
	ClusterSetup   Name = "cluster setup"
	ClusterStatus  Name = "cluster status"
	NodeAdd        Name = "node add"
	NodeRemove     Name = "node remove"
	ResourceEnable Name = "resource enable"
	Echo           Name = "echo"
)

var names = []Name{ClusterSetup, ClusterStatus, NodeAdd, NodeRemove, ResourceEnable, Echo}

// Names returns every known command name.
func Names() []Name {
	return append([]Name(nil), names...)
}

// IsKnown reports whether name belongs to the closed command set.
func IsKnown(name Name) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Command is a command invocation: a name plus its parameters.
type Command struct {
	Name   Name           `json:"command_name"`
	Params map[string]any `json:"params"`
}

// Env is the execution environment handed to a command inside a worker.
type Env struct {
	Context context.Context
	TaskID  string
	Logger  *logger.Logger
	Reports reports.Processor
}

// Report forwards item to the task's report sink.
func (e *Env) Report(item reports.Item) error {
	return e.Reports.Report(item)
}

// Func is a command implementation. A returned *DomainError ends the task with
// a failure; any other error is treated as an unhandled fault.
type Func func(env *Env, params map[string]any) (any, error)

// DomainError is an expected command failure carrying the reports explaining it.
type DomainError struct {
	Reports []reports.Item
}

// NewDomainError creates a DomainError from report items.
func NewDomainError(items ...reports.Item) *DomainError {
	return &DomainError{Reports: items}
}

func (e *DomainError) Error() string {
	if len(e.Reports) == 0 {
		return "command failed"
	}
	msgs := make([]string, 0, len(e.Reports))
	for _, r := range e.Reports {
		msgs = append(msgs, r.Code+": "+r.Message)
	}
	return fmt.Sprintf("command failed: %s", strings.Join(msgs, "; "))
}
