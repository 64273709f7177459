package distill

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// EventType discriminates RawEvent payloads.
type EventType string

const (
	EventToolUse          EventType = "tool_use"
	EventUserMessage      EventType = "user_message"
	EventAssistantMessage EventType = "assistant_message"
	EventPhaseChange      EventType = "phase_change"
)

// RawEvent is the ephemeral input to distillation: something that happened,
// plus a payload whose shape depends on Type. Events are never persisted;
// only the memory distilled from one is.
type RawEvent struct {
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Phase     string          `json:"phase,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ToolUsePayload describes one tool invocation and its outcome.
type ToolUsePayload struct {
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args,omitempty"`
	Result  string         `json:"result,omitempty"`
	IsError bool           `json:"isError,omitempty"`
}

// MessagePayload carries the text of a user or assistant message.
type MessagePayload struct {
	Text string `json:"text"`
}

// PhaseChangePayload describes a phase transition. From is empty for the
// initial transition of a session.
type PhaseChangePayload struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
}

// NewEvent wraps a typed payload into a RawEvent stamped with the current
// time. SessionID and Phase are left for the caller to fill.
func NewEvent(eventType EventType, payload any) (*RawEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal event payload")
	}
	return &RawEvent{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}, nil
}

func (e *RawEvent) toolUsePayload() (*ToolUsePayload, error) {
	payload := &ToolUsePayload{}
	if len(e.Data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(e.Data, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (e *RawEvent) messagePayload() (*MessagePayload, error) {
	payload := &MessagePayload{}
	if len(e.Data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(e.Data, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (e *RawEvent) phaseChangePayload() (*PhaseChangePayload, error) {
	payload := &PhaseChangePayload{}
	if len(e.Data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(e.Data, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
