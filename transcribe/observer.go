package transcribe

import "github.com/agentdeck/agentdeck/observability"

// Queue event types emitted as recordings move through transcription.
const (
	EventEnqueue  observability.EventType = "queue.enqueue"
	EventStart    observability.EventType = "queue.start"
	EventComplete observability.EventType = "queue.complete"
	EventDrain    observability.EventType = "queue.drain"
)
