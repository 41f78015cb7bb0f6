package session

import "github.com/agentdeck/agentdeck/observability"

// Registry event types emitted as sessions move through their lifecycle.
const (
	EventCreate      observability.EventType = "session.create"
	EventRegister    observability.EventType = "session.register"
	EventPrompt      observability.EventType = "session.prompt"
	EventStop        observability.EventType = "session.stop"
	EventClose       observability.EventType = "session.close"
	EventFailure     observability.EventType = "session.failure"
	EventUnknownDrop observability.EventType = "session.unknown_drop"
)
