package persist

import "github.com/agentdeck/agentdeck/observability"

// Snapshot event types.
const (
	EventSave       observability.EventType = "persist.save"
	EventSaveFailed observability.EventType = "persist.save_failed"
	EventLoad       observability.EventType = "persist.load"
	EventClear      observability.EventType = "persist.clear"
)
