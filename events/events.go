// Package events fans decoded sidecar events out to per-session subscribers.
// External collaborators (UI layers) subscribe by session id and receive a
// typed event stream; publishing never blocks the reader loop, so a slow
// subscriber drops events rather than stalling every session.
package events

import "github.com/agentdeck/agentdeck/wire"

// Kind identifies the event variant delivered to subscribers.
type Kind string

const (
	KindText             Kind = "text"
	KindToolStart        Kind = "tool-start"
	KindToolResult       Kind = "tool-result"
	KindThinkingStart    Kind = "thinking-start"
	KindThinkingEnd      Kind = "thinking-end"
	KindUsage            Kind = "usage"
	KindProgressiveUsage Kind = "progressive-usage"
	KindSubagentStart    Kind = "subagent-start"
	KindSubagentStop     Kind = "subagent-stop"
	KindDone             Kind = "done"
	KindError            Kind = "error"
	KindClosed           Kind = "closed"
	KindModelUpdated     Kind = "model-updated"
	KindThinkingUpdated  Kind = "thinking-updated"
)

// Event is one notification delivered to a session's subscribers. Kind
// selects which payload pointer is populated; payloads are the wire-decoded
// structs, decoded exactly once at the codec boundary.
type Event struct {
	SessionID string
	Kind      Kind

	Text             *wire.TextEvent
	ToolStart        *wire.ToolStartEvent
	ToolResult       *wire.ToolResultEvent
	Usage            *wire.UsageEvent
	ProgressiveUsage *wire.ProgressiveUsageEvent
	SubagentStart    *wire.SubagentStartEvent
	SubagentStop     *wire.SubagentStopEvent
	ModelUpdated     *wire.ModelUpdatedEvent
	ThinkingUpdated  *wire.ThinkingUpdatedEvent
	Error            *wire.ErrorEvent
}
