package wire

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates inbound sidecar events.
type EventType string

const (
	EventReady            EventType = "ready"
	EventCreated          EventType = "created"
	EventText             EventType = "text"
	EventToolStart        EventType = "tool_start"
	EventToolResult       EventType = "tool_result"
	EventThinkingStart    EventType = "thinking_start"
	EventThinkingEnd      EventType = "thinking_end"
	EventDone             EventType = "done"
	EventUsage            EventType = "usage"
	EventProgressiveUsage EventType = "progressive_usage"
	EventModelUpdated     EventType = "model_updated"
	EventThinkingUpdated  EventType = "thinking_updated"
	EventClosed           EventType = "closed"
	EventError            EventType = "error"
	EventDebug            EventType = "debug"
	EventSubagentStart    EventType = "subagent_start"
	EventSubagentStop     EventType = "subagent_stop"

	// EventUnknown preserves lines with an unrecognized type discriminator.
	// The raw JSON is kept so callers can log it; the reader loop continues.
	EventUnknown EventType = "unknown"
)

// Event is one decoded sidecar event. Type selects which payload pointer is
// populated; SessionID is empty only for ready and unknown events that carry
// no id.
type Event struct {
	Type      EventType
	SessionID string

	Text             *TextEvent
	ToolStart        *ToolStartEvent
	ToolResult       *ToolResultEvent
	Usage            *UsageEvent
	ProgressiveUsage *ProgressiveUsageEvent
	ModelUpdated     *ModelUpdatedEvent
	ThinkingUpdated  *ThinkingUpdatedEvent
	Error            *ErrorEvent
	Debug            *DebugEvent
	SubagentStart    *SubagentStartEvent
	SubagentStop     *SubagentStopEvent

	// Raw holds the original line for unknown events.
	Raw json.RawMessage
}

// TextEvent carries a streamed chunk of assistant text.
type TextEvent struct {
	Content string `json:"content"`
}

// ToolStartEvent announces a tool invocation.
type ToolStartEvent struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// ToolResultEvent carries a completed tool invocation's output.
type ToolResultEvent struct {
	Tool   string `json:"tool"`
	Output string `json:"output"`
}

// UsageEvent reports cumulative usage for a completed query.
type UsageEvent struct {
	InputTokens         int64   `json:"inputTokens"`
	OutputTokens        int64   `json:"outputTokens"`
	CacheReadTokens     int64   `json:"cacheReadTokens"`
	CacheCreationTokens int64   `json:"cacheCreationTokens"`
	TotalCostUSD        float64 `json:"totalCostUsd"`
	DurationMS          int64   `json:"durationMs"`
	DurationAPIMS       int64   `json:"durationApiMs"`
	NumTurns            int64   `json:"numTurns"`
	ContextWindow       int64   `json:"contextWindow"`
}

// ProgressiveUsageEvent reports in-flight counters for the streaming turn.
// Values are already cumulative for the current turn and replace, never add
// to, earlier progressive snapshots.
type ProgressiveUsageEvent struct {
	InputTokens         int64 `json:"inputTokens"`
	OutputTokens        int64 `json:"outputTokens"`
	CacheReadTokens     int64 `json:"cacheReadTokens"`
	CacheCreationTokens int64 `json:"cacheCreationTokens"`
}

// ModelUpdatedEvent confirms a model switch.
type ModelUpdatedEvent struct {
	Model string `json:"model"`
}

// ThinkingUpdatedEvent confirms a thinking-budget change.
type ThinkingUpdatedEvent struct {
	MaxThinkingTokens int `json:"maxThinkingTokens"`
}

// ErrorEvent reports a backend failure scoped to one session.
type ErrorEvent struct {
	Message string `json:"message"`
}

// DebugEvent is diagnostic output, not part of the functional contract.
type DebugEvent struct {
	Message string `json:"message"`
}

// SubagentStartEvent announces a spawned subagent.
type SubagentStartEvent struct {
	AgentID   string `json:"agentId"`
	AgentType string `json:"agentType"`
}

// SubagentStopEvent announces subagent completion.
type SubagentStopEvent struct {
	AgentID        string `json:"agentId"`
	TranscriptPath string `json:"transcriptPath"`
}

// DecodeError reports an unparsable protocol line. The raw text is preserved
// so the caller can log it; decode failures never terminate the reader loop.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("undecodable sidecar line %q: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// envelope is the common prefix of every inbound line.
type envelope struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Decode parses a single protocol line (without trailing newline) into an
// Event. Lines with an unrecognized type decode into an EventUnknown event
// preserving the raw JSON. Malformed JSON returns a *DecodeError.
func Decode(line []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Event{}, &DecodeError{Line: string(line), Err: err}
	}

	event := Event{Type: EventType(env.Type), SessionID: env.ID}

	var payload any
	switch event.Type {
	case EventReady, EventCreated, EventThinkingStart, EventThinkingEnd,
		EventDone, EventClosed:
		return event, nil
	case EventText:
		event.Text = &TextEvent{}
		payload = event.Text
	case EventToolStart:
		event.ToolStart = &ToolStartEvent{}
		payload = event.ToolStart
	case EventToolResult:
		event.ToolResult = &ToolResultEvent{}
		payload = event.ToolResult
	case EventUsage:
		event.Usage = &UsageEvent{}
		payload = event.Usage
	case EventProgressiveUsage:
		event.ProgressiveUsage = &ProgressiveUsageEvent{}
		payload = event.ProgressiveUsage
	case EventModelUpdated:
		event.ModelUpdated = &ModelUpdatedEvent{}
		payload = event.ModelUpdated
	case EventThinkingUpdated:
		event.ThinkingUpdated = &ThinkingUpdatedEvent{}
		payload = event.ThinkingUpdated
	case EventError:
		event.Error = &ErrorEvent{}
		payload = event.Error
	case EventDebug:
		event.Debug = &DebugEvent{}
		payload = event.Debug
	case EventSubagentStart:
		event.SubagentStart = &SubagentStartEvent{}
		payload = event.SubagentStart
	case EventSubagentStop:
		event.SubagentStop = &SubagentStopEvent{}
		payload = event.SubagentStop
	default:
		event.Type = EventUnknown
		event.Raw = json.RawMessage(append([]byte(nil), line...))
		return event, nil
	}

	if err := json.Unmarshal(line, payload); err != nil {
		return Event{}, &DecodeError{Line: string(line), Err: err}
	}
	return event, nil
}
