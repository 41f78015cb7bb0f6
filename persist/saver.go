package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentdeck/agentdeck/observability"
)

// SnapshotFunc captures the current Document. Called by the saver at write
// time so coalesced mutations are folded into one snapshot.
type SnapshotFunc func() Document

// SaverOption configures a Saver.
type SaverOption func(*Saver)

// WithSaverObserver overrides the default SlogObserver.
func WithSaverObserver(o observability.Observer) SaverOption {
	return func(s *Saver) { s.observer = o }
}

// Saver debounces snapshot writes. Each MarkDirty reschedules a single
// deferred flush rather than writing immediately, so a rapid event burst
// produces one write instead of an I/O storm. Flush forces the write now;
// shutdown paths call it best-effort.
type Saver struct {
	store       Store
	snapshot    SnapshotFunc
	delay       time.Duration
	maxSessions int
	observer    observability.Observer

	mu     sync.Mutex
	timer  *time.Timer
	dirty  bool
	closed bool
}

// NewSaver creates a Saver writing through store. The snapshot function is
// invoked on the saver's timer goroutine and must be safe to call from it.
func NewSaver(cfg *Config, store Store, snapshot SnapshotFunc, opts ...SaverOption) *Saver {
	s := &Saver{
		store:       store,
		snapshot:    snapshot,
		delay:       time.Duration(cfg.DebounceMS) * time.Millisecond,
		maxSessions: cfg.MaxSessions,
		observer:    observability.NewSlogObserver(slog.Default()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MarkDirty schedules a coalesced write. Safe to call from any goroutine at
// any rate; only the deadline of the single pending flush moves.
func (s *Saver) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.dirty = true
	if s.timer == nil {
		s.timer = time.AfterFunc(s.delay, s.deferredFlush)
		return
	}
	s.timer.Reset(s.delay)
}

// deferredFlush is the timer callback; failures are logged, never fatal.
func (s *Saver) deferredFlush() {
	if err := s.Flush(); err != nil {
		s.observer.OnEvent(context.Background(), observability.NewEvent(
			EventSaveFailed, observability.LevelWarning, "persist.Saver",
			map[string]any{"error": err.Error()},
		))
	}
}

// Flush writes the snapshot now if anything is dirty, cancelling any
// pending deferred write.
func (s *Saver) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	s.dirty = false
	s.mu.Unlock()

	doc := s.snapshot()
	doc.Trim(s.maxSessions)
	doc.SavedAt = time.Now()

	if err := s.store.Save(doc); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return err
	}

	s.observer.OnEvent(context.Background(), observability.NewEvent(
		EventSave, observability.LevelVerbose, "persist.Saver",
		map[string]any{"sessions": len(doc.Sessions)},
	))
	return nil
}

// Close performs a final best-effort flush and stops the saver. Subsequent
// MarkDirty calls are ignored.
func (s *Saver) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	return s.Flush()
}
