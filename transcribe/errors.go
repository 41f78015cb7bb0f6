package transcribe

import "errors"

var (
	// ErrQueueClosed indicates the queue no longer accepts recordings.
	ErrQueueClosed = errors.New("transcription queue closed")

	// ErrRecordingNotFound indicates the recording id is unknown, either
	// never enqueued or already cleared.
	ErrRecordingNotFound = errors.New("recording not found")
)
