package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentdeck/agentdeck/events"
	"github.com/agentdeck/agentdeck/observability"
	"github.com/agentdeck/agentdeck/usage"
	"github.com/agentdeck/agentdeck/wire"
)

// Sender is the registry's view of the sidecar process manager.
type Sender interface {
	EnsureStarted(ctx context.Context) error
	Send(ctx context.Context, command wire.Command) error
}

// registration tracks one in-flight or completed backend registration. The
// first caller for an id performs the create; concurrent callers wait on
// done and share the outcome.
type registration struct {
	done chan struct{}
	err  error
}

// Option configures a Registry after construction.
type Option func(*Registry)

// WithObserver overrides the default SlogObserver.
func WithObserver(o observability.Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// WithClock overrides the wall clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) { r.clock = clock }
}

// WithDirtyHook installs a callback invoked after every persistable
// mutation. The persistence layer uses it to schedule a debounced save.
func WithDirtyHook(hook func()) Option {
	return func(r *Registry) { r.onDirty = hook }
}

// Registry owns all sessions and applies every inbound sidecar event to
// exactly one of them. All mutations go through Registry methods under one
// mutex; sends to the sidecar happen outside the lock so one session's
// in-flight work never blocks another's.
type Registry struct {
	sender   Sender
	bus      *events.Bus
	observer observability.Observer
	clock    func() time.Time
	onDirty  func()

	mu       sync.Mutex
	sessions map[string]*Session
	live     map[string]*registration
	activeID string
	cfg      Config
}

// NewRegistry creates a Registry multiplexing sessions over sender and
// fanning applied events out on bus.
func NewRegistry(cfg *Config, sender Sender, bus *events.Bus, opts ...Option) *Registry {
	r := &Registry{
		sender:   sender,
		bus:      bus,
		observer: observability.NewSlogObserver(slog.Default()),
		clock:    time.Now,
		sessions: make(map[string]*Session),
		live:     make(map[string]*registration),
		cfg:      *cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateParams are the caller-supplied attributes for a new session.
// Zero-value fields take registry defaults; an empty ID is generated.
type CreateParams struct {
	ID                string
	Cwd               string
	Model             string
	SystemPrompt      string
	MaxThinkingTokens int
	PlanMode          bool
}

func (r *Registry) newSession(params CreateParams, status Status) *Session {
	s := &Session{
		ID:           params.ID,
		Cwd:          params.Cwd,
		Model:        params.Model,
		SystemPrompt: params.SystemPrompt,
		PlanMode:     params.PlanMode,
		Thinking:     ThinkingOff,
		Status:       status,
		CreatedAt:    r.clock(),
	}
	if s.ID == "" {
		s.ID = uuid.Must(uuid.NewV7()).String()
	}
	if s.Model == "" {
		s.Model = r.cfg.DefaultModel
	}
	if params.MaxThinkingTokens > 0 {
		s.Thinking = ThinkingOn
		s.MaxThinkingTokens = params.MaxThinkingTokens
	}
	return s
}

// Create allocates a session in idle and registers it with the backend
// immediately. It fails when the sidecar cannot be started or the create
// command cannot be written; the session is not retained on failure.
func (r *Registry) Create(ctx context.Context, params CreateParams) (string, error) {
	s := r.newSession(params, StatusIdle)

	r.mu.Lock()
	if _, exists := r.sessions[s.ID]; exists {
		r.mu.Unlock()
		return "", fmt.Errorf("creating session %q: %w", s.ID, ErrExists)
	}
	r.sessions[s.ID] = s
	r.mu.Unlock()

	if err := r.ensureLive(ctx, s.ID); err != nil {
		r.mu.Lock()
		delete(r.sessions, s.ID)
		delete(r.live, s.ID)
		r.mu.Unlock()
		return "", fmt.Errorf("creating session %q: %w", s.ID, err)
	}

	r.observer.OnEvent(ctx, observability.NewEvent(
		EventCreate, observability.LevelInfo, "session.Registry",
		map[string]any{"session_id": s.ID, "cwd": s.Cwd, "model": s.Model},
	))
	r.markDirty()
	return s.ID, nil
}

// CreateDraft allocates a session in setup without touching the backend.
// Draft sessions move through the pending_* states and are registered
// lazily on their first prompt.
func (r *Registry) CreateDraft(params CreateParams) string {
	s := r.newSession(params, StatusSetup)

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.markDirty()
	return s.ID
}

// Restore inserts a session recovered from a persisted snapshot. The
// session is not live; its first prompt replays the transcript to the
// backend.
func (r *Registry) Restore(s Session) error {
	restored := s.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[restored.ID]; exists {
		return fmt.Errorf("restoring session %q: %w", restored.ID, ErrExists)
	}
	r.sessions[restored.ID] = &restored
	return nil
}

// pendingLocked validates that s can take a pending_* sub-state.
func pendingLocked(s *Session) error {
	if !s.Status.preRegistration() {
		return fmt.Errorf("session %q: %w", s.ID, ErrAlreadyLive)
	}
	return nil
}

// SetPendingTranscription parks a setup-stage session on an unfinished
// transcription. Only valid before backend registration.
func (r *Registry) SetPendingTranscription(id string, info PendingTranscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if err := pendingLocked(s); err != nil {
		return err
	}
	s.PendingTranscription = &info
	s.PendingRepo = nil
	s.PendingApproval = nil
	s.Status = StatusPendingTranscription
	return nil
}

// SetPendingRepo parks a setup-stage session on repository selection.
func (r *Registry) SetPendingRepo(id string, info PendingRepoSelection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if err := pendingLocked(s); err != nil {
		return err
	}
	s.PendingRepo = &info
	s.PendingTranscription = nil
	s.PendingApproval = nil
	s.Status = StatusPendingRepo
	return nil
}

// SetPendingApproval parks a setup-stage session on user approval.
func (r *Registry) SetPendingApproval(id string, info PendingApprovalPrompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if err := pendingLocked(s); err != nil {
		return err
	}
	s.PendingApproval = &info
	s.PendingTranscription = nil
	s.PendingRepo = nil
	s.Status = StatusPendingApproval
	return nil
}

// ClearPending returns a pending_* session to setup, dropping its sub-state
// payload.
func (r *Registry) ClearPending(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if err := pendingLocked(s); err != nil {
		return err
	}
	s.PendingTranscription = nil
	s.PendingRepo = nil
	s.PendingApproval = nil
	s.Status = StatusSetup
	return nil
}

// historyMessages converts a transcript into the replay records the backend
// accepts on create. Runtime-only entry types are skipped.
func historyMessages(msgs []Message) []wire.HistoryMessage {
	var history []wire.HistoryMessage
	for _, msg := range msgs {
		switch msg.Type {
		case MessageUser:
			history = append(history, wire.HistoryMessage{Type: "user", Content: msg.Content})
		case MessageText:
			history = append(history, wire.HistoryMessage{Type: "assistant", Content: msg.Content})
		case MessageToolStart:
			history = append(history, wire.HistoryMessage{Type: "tool_use", Tool: msg.Tool, Input: msg.Input})
		case MessageToolResult:
			history = append(history, wire.HistoryMessage{Type: "tool_result", Tool: msg.Tool, Output: msg.Output})
		}
	}
	return history
}

// ensureLive registers the session with the backend exactly once. The first
// caller sends the create command; concurrent callers block until it
// settles and share its outcome. A transport failure marks the session
// failed.
func (r *Registry) ensureLive(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if reg, exists := r.live[id]; exists {
		r.mu.Unlock()
		select {
		case <-reg.done:
			return reg.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.Status == StatusError {
		r.mu.Unlock()
		return fmt.Errorf("session %q: %w", id, ErrSessionFailed)
	}

	reg := &registration{done: make(chan struct{})}
	r.live[id] = reg
	if s.Status.preRegistration() {
		s.Status = StatusInitializing
		s.PendingTranscription = nil
		s.PendingRepo = nil
		s.PendingApproval = nil
	}
	create := wire.Create{
		ID:           s.ID,
		Cwd:          s.Cwd,
		Model:        s.Model,
		SystemPrompt: s.SystemPrompt,
		Messages:     historyMessages(s.Messages),
		PlanMode:     s.PlanMode,
	}
	r.mu.Unlock()

	err := r.sender.EnsureStarted(ctx)
	if err == nil {
		err = r.sender.Send(ctx, create)
	}
	if err != nil {
		err = fmt.Errorf("registering session with backend: %w", err)
		r.mu.Lock()
		delete(r.live, id)
		r.failLocked(s, err.Error())
		r.mu.Unlock()
	}
	reg.err = err
	close(reg.done)

	if err == nil {
		r.observer.OnEvent(ctx, observability.NewEvent(
			EventRegister, observability.LevelVerbose, "session.Registry",
			map[string]any{"session_id": id, "history": len(create.Messages)},
		))
	}
	return err
}

// SendPrompt appends a user message, moves the session to querying, and
// forwards the prompt. The session is registered lazily if this is its
// first contact with the backend. A transport failure records an error
// message, fails the session, and is returned to the caller.
func (r *Registry) SendPrompt(ctx context.Context, id, prompt string, images []wire.Image) error {
	if err := r.ensureLive(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if s.Status == StatusError {
		r.mu.Unlock()
		return fmt.Errorf("session %q: %w", id, ErrSessionFailed)
	}
	r.appendLocked(s, Message{Type: MessageUser, Content: prompt})
	s.Status = StatusQuerying
	started := r.clock()
	s.CurrentWorkStartedAt = &started
	r.mu.Unlock()
	r.markDirty()

	r.observer.OnEvent(ctx, observability.NewEvent(
		EventPrompt, observability.LevelVerbose, "session.Registry",
		map[string]any{"session_id": id, "prompt_length": len(prompt), "images": len(images)},
	))

	if err := r.sender.Send(ctx, wire.Query{ID: id, Prompt: prompt, Images: images}); err != nil {
		r.mu.Lock()
		r.failLocked(s, fmt.Sprintf("failed to send prompt: %v", err))
		r.mu.Unlock()
		r.markDirty()
		return fmt.Errorf("sending prompt to session %q: %w", id, err)
	}
	return nil
}

// StopQuery requests best-effort interruption of the in-flight query and
// returns the session to idle regardless of the interruption outcome. A
// failed interrupt is logged and the in-flight request abandoned.
func (r *Registry) StopQuery(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	_, isLive := r.live[id]
	if s.Status == StatusQuerying {
		s.Status = StatusIdle
	}
	r.mu.Unlock()
	r.markDirty()

	r.observer.OnEvent(ctx, observability.NewEvent(
		EventStop, observability.LevelVerbose, "session.Registry",
		map[string]any{"session_id": id},
	))

	if !isLive {
		return nil
	}
	if err := r.sender.Send(ctx, wire.Stop{ID: id}); err != nil {
		r.observer.OnEvent(ctx, observability.NewEvent(
			EventFailure, observability.LevelWarning, "session.Registry",
			map[string]any{"session_id": id, "error": fmt.Sprintf("interrupt failed: %v", err)},
		))
	}
	return nil
}

// Close removes the session from the registry, drops all its event
// subscriptions, and asks the backend to tear it down. Backend close errors
// are swallowed; close is always locally honored.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	_, isLive := r.live[id]
	delete(r.sessions, id)
	delete(r.live, id)
	if r.activeID == id {
		r.activeID = ""
	}
	r.mu.Unlock()

	if isLive {
		if err := r.sender.Send(ctx, wire.Close{ID: id}); err != nil {
			r.observer.OnEvent(ctx, observability.NewEvent(
				EventFailure, observability.LevelWarning, "session.Registry",
				map[string]any{"session_id": id, "error": fmt.Sprintf("backend close failed: %v", err)},
			))
		}
	}
	r.bus.DropSession(id)

	r.observer.OnEvent(ctx, observability.NewEvent(
		EventClose, observability.LevelInfo, "session.Registry",
		map[string]any{"session_id": id},
	))
	r.markDirty()
	return nil
}

// UpdateModel switches the session's model for subsequent queries. The
// local record updates immediately; the backend confirms with a
// model_updated event.
func (r *Registry) UpdateModel(ctx context.Context, id, model string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	s.Model = model
	_, isLive := r.live[id]
	r.mu.Unlock()
	r.markDirty()

	if !isLive {
		return nil
	}
	if err := r.sender.Send(ctx, wire.UpdateModel{ID: id, Model: model}); err != nil {
		return fmt.Errorf("updating model for session %q: %w", id, err)
	}
	return nil
}

// UpdateThinking sets the session's extended-thinking token budget. A
// budget of zero disables thinking.
func (r *Registry) UpdateThinking(ctx context.Context, id string, maxTokens int) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if maxTokens > 0 {
		s.Thinking = ThinkingOn
		s.MaxThinkingTokens = maxTokens
	} else {
		s.Thinking = ThinkingOff
		s.MaxThinkingTokens = 0
	}
	_, isLive := r.live[id]
	r.mu.Unlock()
	r.markDirty()

	if !isLive {
		return nil
	}
	cmd := wire.UpdateThinking{ID: id}
	if maxTokens > 0 {
		cmd.MaxThinkingTokens = &maxTokens
	}
	if err := r.sender.Send(ctx, cmd); err != nil {
		return fmt.Errorf("updating thinking for session %q: %w", id, err)
	}
	return nil
}

// SetPlanMode toggles planning tools for the session. The flag is carried
// on the backend create, so it is only settable before registration.
func (r *Registry) SetPlanMode(id string, planMode bool) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if _, isLive := r.live[id]; isLive {
		r.mu.Unlock()
		return fmt.Errorf("session %q: %w", id, ErrAlreadyLive)
	}
	s.PlanMode = planMode
	r.mu.Unlock()
	r.markDirty()
	return nil
}

// UpdateCwd changes the session's working directory. Only valid before
// backend registration; a live backend session's directory is fixed.
func (r *Registry) UpdateCwd(id, cwd string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if _, isLive := r.live[id]; isLive {
		return fmt.Errorf("session %q: %w", id, ErrAlreadyLive)
	}
	s.Cwd = cwd
	return nil
}

// Get returns a snapshot of the session.
func (r *Registry) Get(id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return s.Clone(), nil
}

// List returns snapshots of every session, oldest first.
func (r *Registry) List() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s.Clone())
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// SetActive records which session the collaborator considers focused. An
// empty id clears the selection.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != "" {
		if _, ok := r.sessions[id]; !ok {
			return fmt.Errorf("session %q: %w", id, ErrNotFound)
		}
	}
	r.activeID = id
	return nil
}

// Active returns the focused session id, or empty when none is set.
func (r *Registry) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// appendLocked stamps and appends one transcript entry. Timestamps are
// strictly increasing within a session so they can serve as identity.
func (r *Registry) appendLocked(s *Session, msg Message) {
	stamp := r.clock().UnixMilli()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp
	msg.Timestamp = stamp
	s.Messages = append(s.Messages, msg)
}

// foldWorkLocked finalizes the open work interval into the accumulated
// busy-time counter. Called only when a query settles.
func (r *Registry) foldWorkLocked(s *Session) {
	if s.CurrentWorkStartedAt == nil {
		return
	}
	s.AccumulatedDurationMS += r.clock().Sub(*s.CurrentWorkStartedAt).Milliseconds()
	s.CurrentWorkStartedAt = nil
}

// failLocked moves the session to the absorbing error state with a
// transcript record of what went wrong.
func (r *Registry) failLocked(s *Session, message string) {
	r.appendLocked(s, Message{Type: MessageError, Content: message})
	r.foldWorkLocked(s)
	s.Status = StatusError
}

// Apply folds one decoded sidecar event into the session it names and
// publishes the corresponding notification. Events for unknown ids are
// silently dropped: the session may have been closed while the event was in
// flight. Apply is called from the sidecar reader loop, so events for one
// session arrive here in stream order.
func (r *Registry) Apply(event wire.Event) {
	ctx := context.Background()

	switch event.Type {
	case wire.EventReady:
		return
	case wire.EventDebug:
		r.observer.OnEvent(ctx, observability.NewEvent(
			"session.debug", observability.LevelVerbose, "session.Registry",
			map[string]any{"session_id": event.SessionID, "message": event.Debug.Message},
		))
		return
	case wire.EventUnknown:
		r.observer.OnEvent(ctx, observability.NewEvent(
			EventUnknownDrop, observability.LevelVerbose, "session.Registry",
			map[string]any{"raw": string(event.Raw)},
		))
		return
	}

	r.mu.Lock()
	s, ok := r.sessions[event.SessionID]
	if !ok {
		r.mu.Unlock()
		r.observer.OnEvent(ctx, observability.NewEvent(
			EventUnknownDrop, observability.LevelVerbose, "session.Registry",
			map[string]any{"session_id": event.SessionID, "type": string(event.Type)},
		))
		return
	}

	notify, dirty := r.applyLocked(s, event)
	r.mu.Unlock()

	if notify != nil {
		notify.SessionID = event.SessionID
		r.bus.Publish(*notify)
	}
	if dirty {
		r.markDirty()
	}
}

// applyLocked mutates s for one event and reports the notification to
// publish plus whether persistable state changed. Status transitions out of
// the error state are refused; the error state is absorbing.
func (r *Registry) applyLocked(s *Session, event wire.Event) (*events.Event, bool) {
	switch event.Type {
	case wire.EventCreated:
		if s.Status == StatusInitializing {
			s.Status = StatusIdle
			return nil, true
		}
		return nil, false

	case wire.EventText:
		r.appendLocked(s, Message{Type: MessageText, Content: event.Text.Content})
		return &events.Event{Kind: events.KindText, Text: event.Text}, true

	case wire.EventToolStart:
		r.appendLocked(s, Message{
			Type:  MessageToolStart,
			Tool:  event.ToolStart.Tool,
			Input: event.ToolStart.Input,
		})
		return &events.Event{Kind: events.KindToolStart, ToolStart: event.ToolStart}, true

	case wire.EventToolResult:
		r.appendLocked(s, Message{
			Type:   MessageToolResult,
			Tool:   event.ToolResult.Tool,
			Output: event.ToolResult.Output,
		})
		return &events.Event{Kind: events.KindToolResult, ToolResult: event.ToolResult}, true

	case wire.EventThinkingStart:
		r.appendLocked(s, Message{Type: MessageThinking})
		return &events.Event{Kind: events.KindThinkingStart}, true

	case wire.EventThinkingEnd:
		// Attach the measured duration to the most recent open thinking
		// entry. This is the single permitted in-place message mutation.
		// DurationMS zero marks the entry open, so the attached value is
		// clamped to at least 1ms.
		for i := len(s.Messages) - 1; i >= 0; i-- {
			if s.Messages[i].Type == MessageThinking && s.Messages[i].DurationMS == 0 {
				duration := r.clock().UnixMilli() - s.Messages[i].Timestamp
				if duration < 1 {
					duration = 1
				}
				s.Messages[i].DurationMS = duration
				break
			}
		}
		return &events.Event{Kind: events.KindThinkingEnd}, true

	case wire.EventDone:
		r.appendLocked(s, Message{Type: MessageDone})
		r.foldWorkLocked(s)
		if s.Status != StatusError {
			s.Status = StatusIdle
		}
		return &events.Event{Kind: events.KindDone}, true

	case wire.EventError:
		r.failLocked(s, event.Error.Message)
		return &events.Event{Kind: events.KindError, Error: event.Error}, true

	case wire.EventUsage:
		previous := usage.Usage{}
		if s.Usage != nil {
			previous = *s.Usage
		}
		next := usage.ApplyQuery(previous, usage.Query(*event.Usage))
		s.Usage = &next
		return &events.Event{Kind: events.KindUsage, Usage: event.Usage}, true

	case wire.EventProgressiveUsage:
		previous := usage.Usage{}
		if s.Usage != nil {
			previous = *s.Usage
		}
		next := usage.ApplyProgressive(previous, usage.Progressive(*event.ProgressiveUsage))
		s.Usage = &next
		return &events.Event{Kind: events.KindProgressiveUsage, ProgressiveUsage: event.ProgressiveUsage}, true

	case wire.EventModelUpdated:
		s.Model = event.ModelUpdated.Model
		return &events.Event{Kind: events.KindModelUpdated, ModelUpdated: event.ModelUpdated}, true

	case wire.EventThinkingUpdated:
		if event.ThinkingUpdated.MaxThinkingTokens > 0 {
			s.Thinking = ThinkingOn
			s.MaxThinkingTokens = event.ThinkingUpdated.MaxThinkingTokens
		} else {
			s.Thinking = ThinkingOff
			s.MaxThinkingTokens = 0
		}
		return &events.Event{Kind: events.KindThinkingUpdated, ThinkingUpdated: event.ThinkingUpdated}, true

	case wire.EventSubagentStart:
		r.appendLocked(s, Message{
			Type:    MessageSubagentStart,
			Content: event.SubagentStart.AgentID,
			Tool:    event.SubagentStart.AgentType,
		})
		return &events.Event{Kind: events.KindSubagentStart, SubagentStart: event.SubagentStart}, true

	case wire.EventSubagentStop:
		r.appendLocked(s, Message{
			Type:    MessageSubagentStop,
			Content: event.SubagentStop.AgentID,
			Output:  event.SubagentStop.TranscriptPath,
		})
		return &events.Event{Kind: events.KindSubagentStop, SubagentStop: event.SubagentStop}, true

	case wire.EventClosed:
		// Backend-initiated teardown. The session stays in the registry but
		// is no longer live; a later prompt re-registers it.
		delete(r.live, s.ID)
		if s.Status == StatusQuerying {
			s.Status = StatusIdle
		}
		return &events.Event{Kind: events.KindClosed}, true
	}

	return nil, false
}

func (r *Registry) markDirty() {
	if r.onDirty != nil {
		r.onDirty()
	}
}
