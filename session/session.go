// Package session holds the authoritative in-memory table of agent sessions.
// Each session is a state machine fed by decoded sidecar events; the Registry
// owns every Session and is the only writer. External collaborators read
// snapshots and subscribe to the event bus for change notifications.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentdeck/agentdeck/usage"
)

// Status is a session's lifecycle state.
//
// setup and the pending_* states are pre-registration: no backend session
// exists yet. Registration moves a session to initializing, then idle.
// idle and querying alternate for the session's working life. error is
// absorbing: no event moves a session out of it.
type Status string

const (
	StatusSetup                Status = "setup"
	StatusPendingTranscription Status = "pending_transcription"
	StatusPendingRepo          Status = "pending_repo"
	StatusPendingApproval      Status = "pending_approval"
	StatusInitializing         Status = "initializing"
	StatusIdle                 Status = "idle"
	StatusQuerying             Status = "querying"
	StatusError                Status = "error"
)

// preRegistration reports whether the status precedes backend registration.
func (s Status) preRegistration() bool {
	switch s {
	case StatusSetup, StatusPendingTranscription, StatusPendingRepo, StatusPendingApproval:
		return true
	}
	return false
}

// ThinkingLevel is the session's extended-thinking setting.
type ThinkingLevel string

const (
	ThinkingOff ThinkingLevel = "off"
	ThinkingOn  ThinkingLevel = "on"
)

// MessageType discriminates transcript entries.
type MessageType string

const (
	MessageUser          MessageType = "user"
	MessageText          MessageType = "text"
	MessageToolStart     MessageType = "tool_start"
	MessageToolResult    MessageType = "tool_result"
	MessageThinking      MessageType = "thinking"
	MessageSubagentStart MessageType = "subagent_start"
	MessageSubagentStop  MessageType = "subagent_stop"
	MessageDone          MessageType = "done"
	MessageError         MessageType = "error"
)

// Message is one append-only transcript entry. Timestamp is unix
// milliseconds, strictly increasing within a session, and serves as the
// message's identity. Messages are never mutated after append except for
// attaching DurationMS to the most recent open thinking entry.
type Message struct {
	Type       MessageType     `json:"type"`
	Content    string          `json:"content,omitempty"`
	Tool       string          `json:"tool,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     string          `json:"output,omitempty"`
	DurationMS int64           `json:"durationMs,omitempty"`
	Timestamp  int64           `json:"timestamp"`
}

// PendingTranscription holds a finished recording awaiting transcription
// during session setup. Audio is runtime-only and never persisted.
type PendingTranscription struct {
	Audio      []byte `json:"-"`
	DurationMS int64  `json:"durationMs,omitempty"`
}

// PendingRepoSelection holds the transcript and candidate working
// directories while the user picks a repository.
type PendingRepoSelection struct {
	Transcript string   `json:"transcript"`
	Candidates []string `json:"candidates,omitempty"`
}

// PendingApprovalPrompt holds a prompt awaiting user confirmation before the
// session goes live.
type PendingApprovalPrompt struct {
	Prompt string `json:"prompt"`
}

// Session is one agent conversation. Owned exclusively by the Registry and
// mutated only through Registry operations; reads outside the Registry go
// through Clone snapshots.
type Session struct {
	ID                string        `json:"id"`
	Cwd               string        `json:"cwd"`
	Model             string        `json:"model"`
	SystemPrompt      string        `json:"systemPrompt,omitempty"`
	Thinking          ThinkingLevel `json:"thinking"`
	MaxThinkingTokens int           `json:"maxThinkingTokens,omitempty"`
	Messages          []Message     `json:"messages"`
	Status            Status        `json:"status"`
	CreatedAt         time.Time     `json:"createdAt"`
	PlanMode          bool          `json:"planMode,omitempty"`

	// AccumulatedDurationMS is total finalized busy time.
	// CurrentWorkStartedAt marks an open work interval and is runtime-only;
	// it is folded into AccumulatedDurationMS when a query settles.
	AccumulatedDurationMS int64      `json:"accumulatedDurationMs"`
	CurrentWorkStartedAt  *time.Time `json:"-"`

	Usage *usage.Usage `json:"usage,omitempty"`

	// Mutually exclusive pre-registration sub-states, matching the
	// corresponding pending_* status.
	PendingTranscription *PendingTranscription  `json:"pendingTranscription,omitempty"`
	PendingRepo          *PendingRepoSelection  `json:"pendingRepo,omitempty"`
	PendingApproval      *PendingApprovalPrompt `json:"pendingApproval,omitempty"`

	lastStamp int64
}

// Clone returns a deep copy safe to hand outside the Registry.
func (s *Session) Clone() Session {
	copied := *s

	copied.Messages = make([]Message, len(s.Messages))
	for i, msg := range s.Messages {
		copied.Messages[i] = msg
		copied.Messages[i].Input = append(json.RawMessage(nil), msg.Input...)
	}

	if s.CurrentWorkStartedAt != nil {
		started := *s.CurrentWorkStartedAt
		copied.CurrentWorkStartedAt = &started
	}
	if s.Usage != nil {
		u := *s.Usage
		u.History = append([]usage.Query(nil), s.Usage.History...)
		copied.Usage = &u
	}
	if s.PendingTranscription != nil {
		p := *s.PendingTranscription
		p.Audio = append([]byte(nil), s.PendingTranscription.Audio...)
		copied.PendingTranscription = &p
	}
	if s.PendingRepo != nil {
		p := *s.PendingRepo
		p.Candidates = append([]string(nil), s.PendingRepo.Candidates...)
		copied.PendingRepo = &p
	}
	if s.PendingApproval != nil {
		p := *s.PendingApproval
		copied.PendingApproval = &p
	}
	return copied
}

// BusyDuration returns finalized busy time plus the open work interval, if
// any, measured against now.
func (s *Session) BusyDuration(now time.Time) time.Duration {
	total := time.Duration(s.AccumulatedDurationMS) * time.Millisecond
	if s.CurrentWorkStartedAt != nil {
		total += now.Sub(*s.CurrentWorkStartedAt)
	}
	return total
}

// SmartStatus derives the display status. Non-querying sessions report their
// lifecycle status verbatim. A querying session reports what the agent is
// doing right now, based on the tail of the transcript: the active tool name
// with a ×N multiplier when the same tool ran N consecutive times,
// "responding" while text streams, "thinking" during extended thinking, and
// "working" otherwise. The multiplier counts backward from the tail and
// stops at the first differing tool or non-tool-start entry; it is a pure
// read-side computation.
func (s *Session) SmartStatus() string {
	if s.Status != StatusQuerying {
		return string(s.Status)
	}
	if len(s.Messages) == 0 {
		return "working"
	}

	last := s.Messages[len(s.Messages)-1]
	switch last.Type {
	case MessageToolStart:
		count := 1
		for i := len(s.Messages) - 2; i >= 0; i-- {
			if s.Messages[i].Type != MessageToolStart || s.Messages[i].Tool != last.Tool {
				break
			}
			count++
		}
		if count > 1 {
			return fmt.Sprintf("%s ×%d", last.Tool, count)
		}
		return last.Tool
	case MessageText:
		return "responding"
	case MessageThinking:
		return "thinking"
	default:
		return "working"
	}
}
