package sidecar

import "github.com/agentdeck/agentdeck/observability"

// Sidecar manager event types.
const (
	EventStart       observability.EventType = "sidecar.start"
	EventReady       observability.EventType = "sidecar.ready"
	EventExit        observability.EventType = "sidecar.exit"
	EventSend        observability.EventType = "sidecar.send"
	EventDecodeError observability.EventType = "sidecar.decode_error"
	EventStderr      observability.EventType = "sidecar.stderr"
	EventDebug       observability.EventType = "sidecar.debug"
)
