// Package bus provides the messages workers send back to the scheduler and
// the channel that carries them.
//
// Every message belongs to one task and has one of three types:
//   - EXECUTED: a worker picked the task up (payload: worker pid)
//   - REPORT: the running command emitted a report item
//   - FINISHED: the command completed (payload: outcome and result)
//
// All message types support JSON serialization so they can cross the
// process boundary between a worker and the daemon.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/aatumaykin/clusterd/internal/reports"
)

// ErrMalformedPayload is returned when a payload does not match its message type.
var ErrMalformedPayload = errors.New("malformed message payload")

// MessageType is the kind of a worker message.
type MessageType string

const (
	MessageExecuted MessageType = "EXECUTED"
	MessageReport   MessageType = "REPORT"
	MessageFinished MessageType = "FINISHED"
)

// Outcome is the way a task finished.
type Outcome string

const (
	OutcomeUnfinished         Outcome = "UNFINISHED"
	OutcomeSuccess            Outcome = "SUCCESS"
	OutcomeFail               Outcome = "FAIL"
	OutcomeUnhandledException Outcome = "UNHANDLED_EXCEPTION"
	OutcomeKill               Outcome = "KILL"
)

// Message is a single worker to scheduler message.
type Message struct {
	TaskID  string          `json:"task_id"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Executed is the payload of an EXECUTED message.
type Executed struct {
	PID int `json:"pid"`
}

// Finished is the payload of a FINISHED message.
type Finished struct {
	Outcome Outcome         `json:"outcome"`
	Result  json.RawMessage `json:"result"`
}

// NewExecutedMessage creates an EXECUTED message for taskID run by pid.
func NewExecutedMessage(taskID string, pid int) Message {
	payload, _ := sonic.ConfigStd.Marshal(Executed{PID: pid})
	return Message{TaskID: taskID, Type: MessageExecuted, Payload: payload}
}

// NewReportMessage creates a REPORT message carrying item.
func NewReportMessage(taskID string, item reports.Item) (Message, error) {
	payload, err := sonic.ConfigStd.Marshal(item)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode report %s: %w", item.Code, err)
	}
	return Message{TaskID: taskID, Type: MessageReport, Payload: payload}, nil
}

// NewFinishedMessage creates a FINISHED message. result must be JSON encodable.
func NewFinishedMessage(taskID string, outcome Outcome, result any) (Message, error) {
	var raw json.RawMessage
	if result != nil {
		data, err := sonic.ConfigStd.Marshal(result)
		if err != nil {
			return Message{}, fmt.Errorf("failed to encode result: %w", err)
		}
		raw = data
	}
	payload, err := sonic.ConfigStd.Marshal(Finished{Outcome: outcome, Result: raw})
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode finished payload: %w", err)
	}
	return Message{TaskID: taskID, Type: MessageFinished, Payload: payload}, nil
}

// DecodeExecuted decodes the payload of an EXECUTED message.
func DecodeExecuted(msg Message) (Executed, error) {
	var out Executed
	if err := decodePayload(msg, MessageExecuted, &out); err != nil {
		return Executed{}, err
	}
	return out, nil
}

// DecodeReport decodes the payload of a REPORT message.
func DecodeReport(msg Message) (reports.Item, error) {
	var out reports.Item
	if err := decodePayload(msg, MessageReport, &out); err != nil {
		return reports.Item{}, err
	}
	return out, nil
}

// DecodeFinished decodes the payload of a FINISHED message.
func DecodeFinished(msg Message) (Finished, error) {
	var out Finished
	if err := decodePayload(msg, MessageFinished, &out); err != nil {
		return Finished{}, err
	}
	switch out.Outcome {
	case OutcomeSuccess, OutcomeFail, OutcomeUnhandledException:
		return out, nil
	default:
		return Finished{}, fmt.Errorf("%w: unexpected outcome %q", ErrMalformedPayload, out.Outcome)
	}
}

func decodePayload(msg Message, want MessageType, v any) error {
	if msg.Type != want {
		return fmt.Errorf("%w: expected %s message, got %s", ErrMalformedPayload, want, msg.Type)
	}
	if len(msg.Payload) == 0 {
		return fmt.Errorf("%w: empty %s payload", ErrMalformedPayload, want)
	}
	if err := sonic.ConfigStd.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
