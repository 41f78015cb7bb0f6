// Package transcribe serializes speech-to-text work through a single-worker
// queue so overlapping recordings never race on the transcription backend.
// The backend itself is an opaque string-out contract behind the Transcriber
// interface; WhisperClient implements it against an OpenAI-compatible HTTP
// endpoint.
package transcribe

import (
	"context"
	"time"
)

// Transcriber converts raw audio into text. Implementations must be safe
// for concurrent use; the queue guarantees it never issues overlapping
// calls regardless.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// RecordingStatus is a queued recording's lifecycle state.
type RecordingStatus string

const (
	RecordingPending      RecordingStatus = "pending"
	RecordingTranscribing RecordingStatus = "transcribing"
	RecordingDone         RecordingStatus = "done"
	RecordingError        RecordingStatus = "error"
)

// terminal reports whether the recording has settled.
func (s RecordingStatus) terminal() bool {
	return s == RecordingDone || s == RecordingError
}

// Recording is a snapshot of one queued recording.
type Recording struct {
	ID         string
	Status     RecordingStatus
	Result     string
	Err        string
	EnqueuedAt time.Time
}

// CompletionFunc is invoked exactly once when a recording settles. Exactly
// one of result and err is meaningful.
type CompletionFunc func(result string, err error)
