// Package persist converts live session state to and from a durable JSON
// snapshot. Runtime-only fields (the open work timer, raw audio on pending
// transcriptions) are dropped on the way out; restored sessions get type
// defaults applied and can never come back mid-query.
package persist

import (
	"sort"
	"time"

	"github.com/agentdeck/agentdeck/session"
)

// Document is the persisted snapshot: every serialized session, the focused
// session id, and when the snapshot was taken.
type Document struct {
	Sessions        []session.Session `json:"sessions"`
	ActiveSessionID string            `json:"activeSessionId,omitempty"`
	SavedAt         time.Time         `json:"savedAt"`
}

// Trim caps the document at max sessions, dropping the oldest by creation
// time first. A max of zero or less leaves the document unchanged.
func (d *Document) Trim(max int) {
	if max <= 0 || len(d.Sessions) <= max {
		return
	}
	sort.Slice(d.Sessions, func(i, j int) bool {
		return d.Sessions[i].CreatedAt.After(d.Sessions[j].CreatedAt)
	})
	d.Sessions = d.Sessions[:max]
}

// ToPersisted deep-copies s into its durable form: the open work timer is
// folded into the accumulated busy-time counter, and raw audio bytes on a
// pending transcription are dropped.
func ToPersisted(s session.Session, now time.Time) session.Session {
	persisted := s.Clone()
	if persisted.CurrentWorkStartedAt != nil {
		persisted.AccumulatedDurationMS += now.Sub(*persisted.CurrentWorkStartedAt).Milliseconds()
		persisted.CurrentWorkStartedAt = nil
	}
	if persisted.PendingTranscription != nil {
		persisted.PendingTranscription.Audio = nil
	}
	return persisted
}

// FromPersisted rebuilds a live session from its durable form. The work
// timer starts absent, the thinking level defaults to off when missing, and
// a persisted querying status downgrades to idle: a backend session cannot
// be resumed mid-turn across a restart.
func FromPersisted(record session.Session) session.Session {
	restored := record.Clone()
	restored.CurrentWorkStartedAt = nil
	if restored.Thinking == "" {
		restored.Thinking = session.ThinkingOff
	}
	if restored.Status == session.StatusQuerying {
		restored.Status = session.StatusIdle
	}
	return restored
}
