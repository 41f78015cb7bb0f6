// Package wire frames and parses the newline-delimited JSON protocol spoken
// on the sidecar subprocess channel. Commands flow to the sidecar, events
// flow back; every record is a single self-describing JSON object with a
// snake_case "type" discriminator and, for session-scoped records, an "id".
//
// Decoding happens once at this boundary: the rest of the system works with
// typed Command and Event values and never touches raw JSON.
package wire

import (
	"encoding/json"
	"fmt"
)

// CommandType discriminates outbound sidecar commands.
type CommandType string

const (
	CommandCreate         CommandType = "create"
	CommandQuery          CommandType = "query"
	CommandStop           CommandType = "stop"
	CommandUpdateModel    CommandType = "update_model"
	CommandUpdateThinking CommandType = "update_thinking"
	CommandClose          CommandType = "close"
)

// Command is an outbound sidecar protocol record. Implementations are the
// exported command structs in this package; Encode frames them as single
// newline-terminated JSON lines.
type Command interface {
	commandType() CommandType
}

// HistoryMessage is one prior transcript entry replayed to the sidecar when
// restoring a session. Type is one of "user", "assistant", "tool_use",
// "tool_result".
type HistoryMessage struct {
	Type    string          `json:"type"`
	Content string          `json:"content,omitempty"`
	Tool    string          `json:"tool,omitempty"`
	Input   json.RawMessage `json:"input,omitempty"`
	Output  string          `json:"output,omitempty"`
}

// Image is an inline image attached to a prompt.
type Image struct {
	MediaType  string `json:"mediaType"`
	Base64Data string `json:"base64Data"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}

// Create registers a new backend session. Messages carries prior history for
// restored sessions; the sidecar replays it before accepting prompts.
type Create struct {
	ID           string           `json:"id"`
	Cwd          string           `json:"cwd"`
	Model        string           `json:"model,omitempty"`
	SystemPrompt string           `json:"system_prompt,omitempty"`
	Messages     []HistoryMessage `json:"messages,omitempty"`
	PlanMode     bool             `json:"plan_mode,omitempty"`
}

func (Create) commandType() CommandType { return CommandCreate }

// Query submits a prompt to an existing backend session.
type Query struct {
	ID     string  `json:"id"`
	Prompt string  `json:"prompt"`
	Images []Image `json:"images,omitempty"`
}

func (Query) commandType() CommandType { return CommandQuery }

// Stop requests interruption of the session's in-flight query.
type Stop struct {
	ID string `json:"id"`
}

func (Stop) commandType() CommandType { return CommandStop }

// UpdateModel switches the session's model for subsequent queries.
type UpdateModel struct {
	ID    string `json:"id"`
	Model string `json:"model"`
}

func (UpdateModel) commandType() CommandType { return CommandUpdateModel }

// UpdateThinking sets the session's extended-thinking token budget.
// A nil MaxThinkingTokens disables thinking.
type UpdateThinking struct {
	ID                string `json:"id"`
	MaxThinkingTokens *int   `json:"maxThinkingTokens,omitempty"`
}

func (UpdateThinking) commandType() CommandType { return CommandUpdateThinking }

// Close tears down the backend session.
type Close struct {
	ID string `json:"id"`
}

func (Close) commandType() CommandType { return CommandClose }

// Encode frames a command as one JSON object on a single line, including the
// trailing newline. The type discriminator is injected alongside the
// command's own fields.
func Encode(command Command) ([]byte, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("encoding %s command: %w", command.commandType(), err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encoding %s command: %w", command.commandType(), err)
	}
	fields["type"], err = json.Marshal(string(command.commandType()))
	if err != nil {
		return nil, fmt.Errorf("encoding %s command: %w", command.commandType(), err)
	}

	line, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encoding %s command: %w", command.commandType(), err)
	}
	return append(line, '\n'), nil
}
