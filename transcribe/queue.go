package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentdeck/agentdeck/observability"
)

// entry is one queued recording plus its runtime bookkeeping. settled is
// closed exactly once when the recording reaches a terminal status; Await
// blocks on it.
type entry struct {
	id         string
	audio      []byte
	status     RecordingStatus
	result     string
	err        error
	enqueuedAt time.Time
	onComplete CompletionFunc
	settled    chan struct{}
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueObserver overrides the default SlogObserver.
func WithQueueObserver(o observability.Observer) QueueOption {
	return func(q *Queue) { q.observer = o }
}

// Queue serializes transcription work: recordings are processed strictly in
// enqueue order with at most one backend call in flight, so a burst of
// finished recordings never races on the backend. A dedicated worker
// goroutine drains the backlog; enqueueing never blocks on transcription.
type Queue struct {
	transcriber Transcriber
	observer    observability.Observer

	mu      sync.Mutex
	entries map[string]*entry
	order   []string // pending ids, FIFO
	closed  bool

	wake      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a Queue and starts its worker.
func NewQueue(transcriber Transcriber, opts ...QueueOption) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		transcriber: transcriber,
		observer:    observability.NewSlogObserver(slog.Default()),
		entries:     make(map[string]*entry),
		wake:        make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	go q.run()
	return q
}

// Enqueue appends a recording and returns its id. onComplete may be nil;
// when set it fires exactly once on settlement. The call returns
// immediately; transcription happens on the worker.
func (q *Queue) Enqueue(audio []byte, onComplete CompletionFunc) (string, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrQueueClosed
	}
	e := &entry{
		id:         uuid.Must(uuid.NewV7()).String(),
		audio:      append([]byte(nil), audio...),
		status:     RecordingPending,
		enqueuedAt: time.Now(),
		onComplete: onComplete,
		settled:    make(chan struct{}),
	}
	q.entries[e.id] = e
	q.order = append(q.order, e.id)
	backlog := len(q.order)
	q.mu.Unlock()

	q.observer.OnEvent(q.ctx, observability.NewEvent(
		EventEnqueue, observability.LevelVerbose, "transcribe.Queue",
		map[string]any{"recording_id": e.id, "bytes": len(audio), "backlog": backlog},
	))

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return e.id, nil
}

// Await blocks until the recording settles and returns its result. The
// outcome comes only from that recording's own completion, never a
// sibling's.
func (q *Queue) Await(ctx context.Context, id string) (string, error) {
	q.mu.Lock()
	e, ok := q.entries[id]
	q.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("recording %q: %w", id, ErrRecordingNotFound)
	}

	select {
	case <-e.settled:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	q.mu.Lock()
	result, err := e.result, e.err
	q.mu.Unlock()
	return result, err
}

// Get returns a snapshot of one recording.
func (q *Queue) Get(id string) (Recording, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return Recording{}, fmt.Errorf("recording %q: %w", id, ErrRecordingNotFound)
	}
	return snapshotLocked(e), nil
}

// Len reports how many recordings are pending or in flight. Settled
// entries do not count.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, e := range q.entries {
		if !e.status.terminal() {
			count++
		}
	}
	return count
}

// List returns snapshots of all retained recordings in enqueue order.
func (q *Queue) List() []Recording {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := make([]Recording, 0, len(q.entries))
	for _, e := range q.entries {
		list = append(list, snapshotLocked(e))
	}
	sortRecordings(list)
	return list
}

// ClearCompleted removes settled recordings. Pending and in-flight entries
// are never touched. Returns how many were removed.
func (q *Queue) ClearCompleted() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	for id, e := range q.entries {
		if e.status.terminal() {
			delete(q.entries, id)
			removed++
		}
	}
	return removed
}

// Close stops accepting recordings, cancels any in-flight backend call, and
// waits for the worker to exit or ctx to expire. Unsettled recordings are
// failed so their waiters unblock.
func (q *Queue) Close(ctx context.Context) error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		q.cancel()
	})

	select {
	case <-q.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the worker loop: wait for work, then drain the backlog one
// recording at a time. An explicit loop rather than completion-triggered
// recursion keeps stack depth flat under a long backlog.
func (q *Queue) run() {
	defer close(q.stopped)
	for {
		select {
		case <-q.ctx.Done():
			q.failRemaining()
			return
		case <-q.wake:
		}

		for {
			e := q.nextPending()
			if e == nil {
				break
			}

			q.observer.OnEvent(q.ctx, observability.NewEvent(
				EventStart, observability.LevelVerbose, "transcribe.Queue",
				map[string]any{"recording_id": e.id},
			))

			result, err := q.transcriber.Transcribe(q.ctx, e.audio)
			q.settle(e, result, err)

			if q.ctx.Err() != nil {
				q.failRemaining()
				return
			}
		}
	}
}

// nextPending claims the oldest pending entry, marking it transcribing.
func (q *Queue) nextPending() *entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return nil
	}
	id := q.order[0]
	q.order = q.order[1:]
	e, ok := q.entries[id]
	if !ok {
		// Cleared while pending; skip.
		return nil
	}
	e.status = RecordingTranscribing
	return e
}

// settle records the outcome, fires the completion callback exactly once,
// and emits completion and drain events. Callbacks run outside the lock.
func (q *Queue) settle(e *entry, result string, err error) {
	q.mu.Lock()
	if err != nil {
		e.status = RecordingError
		e.err = err
	} else {
		e.status = RecordingDone
		e.result = result
	}
	e.audio = nil
	onComplete := e.onComplete
	e.onComplete = nil
	remaining := len(q.order)
	q.mu.Unlock()
	close(e.settled)

	if onComplete != nil {
		onComplete(result, err)
	}

	data := map[string]any{"recording_id": e.id, "remaining": remaining}
	level := observability.LevelVerbose
	if err != nil {
		data["error"] = err.Error()
		level = observability.LevelWarning
	}
	q.observer.OnEvent(q.ctx, observability.NewEvent(EventComplete, level, "transcribe.Queue", data))

	if remaining == 0 {
		q.observer.OnEvent(q.ctx, observability.NewEvent(
			EventDrain, observability.LevelVerbose, "transcribe.Queue", nil,
		))
	}
}

// failRemaining settles every unfinished entry with the shutdown error.
func (q *Queue) failRemaining() {
	q.mu.Lock()
	var unfinished []*entry
	for _, e := range q.entries {
		if !e.status.terminal() {
			unfinished = append(unfinished, e)
		}
	}
	q.order = nil
	q.mu.Unlock()

	for _, e := range unfinished {
		q.settle(e, "", ErrQueueClosed)
	}
}

func snapshotLocked(e *entry) Recording {
	r := Recording{
		ID:         e.id,
		Status:     e.status,
		Result:     e.result,
		EnqueuedAt: e.enqueuedAt,
	}
	if e.err != nil {
		r.Err = e.err.Error()
	}
	return r
}

func sortRecordings(list []Recording) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].EnqueuedAt.Equal(list[j].EnqueuedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].EnqueuedAt.Before(list[j].EnqueuedAt)
	})
}
