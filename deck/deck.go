// Package deck composes the sidecar manager, session registry, event
// fan-out, transcription queue, and snapshot persistence into the single
// surface a host UI talks to.
//
// The deck initializes from configuration via New, creating all subsystems
// internally. Functional options allow test overrides of any subsystem.
//
//	d, err := deck.New(&cfg)
//	id, err := d.CreateSession(ctx, session.CreateParams{Cwd: "/repo"})
package deck

import (
	"context"
	"fmt"
	"time"

	"github.com/agentdeck/agentdeck/events"
	"github.com/agentdeck/agentdeck/observability"
	"github.com/agentdeck/agentdeck/persist"
	"github.com/agentdeck/agentdeck/session"
	"github.com/agentdeck/agentdeck/sidecar"
	"github.com/agentdeck/agentdeck/transcribe"
	"github.com/agentdeck/agentdeck/wire"
)

// Option configures a Deck after config-driven initialization.
type Option func(*options)

type options struct {
	observer    observability.Observer
	launcher    sidecar.Launcher
	transcriber transcribe.Transcriber
	store       persist.Store
}

// WithObserver overrides the default SlogObserver for every subsystem.
func WithObserver(o observability.Observer) Option {
	return func(opts *options) { opts.observer = o }
}

// WithLauncher overrides how the sidecar subprocess is spawned.
func WithLauncher(l sidecar.Launcher) Option {
	return func(opts *options) { opts.launcher = l }
}

// WithTranscriber overrides the config-created Whisper client.
func WithTranscriber(t transcribe.Transcriber) Option {
	return func(opts *options) { opts.transcriber = t }
}

// WithStore overrides the config-created snapshot store.
func WithStore(s persist.Store) Option {
	return func(opts *options) { opts.store = s }
}

// Deck is the composition root: one shared sidecar channel, the session
// registry multiplexed over it, a serialized transcription queue, and
// debounced snapshot persistence.
type Deck struct {
	manager  *sidecar.Manager
	registry *session.Registry
	bus      *events.Bus
	queue    *transcribe.Queue
	whisper  *transcribe.WhisperClient
	store    persist.Store
	saver    *persist.Saver
	observer observability.Observer
}

// New creates a Deck from configuration. The observer comes from the
// WithObserver option when given, otherwise it is resolved by name from the
// observability registry. Persistence activates only when the config names
// a snapshot path or a store override is supplied.
func New(cfg *Config, opts ...Option) (*Deck, error) {
	var resolved options
	for _, opt := range opts {
		opt(&resolved)
	}
	if resolved.observer == nil {
		name := cfg.Observer
		if name == "" {
			name = "slog"
		}
		observer, err := observability.GetObserver(name)
		if err != nil {
			return nil, fmt.Errorf("resolving observer: %w", err)
		}
		resolved.observer = observer
	}

	d := &Deck{
		bus:      events.NewBus(cfg.EventBuffer),
		observer: resolved.observer,
		whisper:  transcribe.NewWhisperClient(&cfg.Transcribe),
	}

	managerOpts := []sidecar.Option{sidecar.WithObserver(d.observer)}
	if resolved.launcher != nil {
		managerOpts = append(managerOpts, sidecar.WithLauncher(resolved.launcher))
	}
	d.manager = sidecar.NewManager(&cfg.Sidecar, managerOpts...)

	d.registry = session.NewRegistry(&cfg.Session, d.manager, d.bus,
		session.WithObserver(d.observer),
		session.WithDirtyHook(d.markDirty),
	)
	d.manager.Route(d.registry.Apply)

	transcriber := resolved.transcriber
	if transcriber == nil {
		transcriber = d.whisper
	}
	d.queue = transcribe.NewQueue(transcriber, transcribe.WithQueueObserver(d.observer))

	d.store = resolved.store
	if d.store == nil && cfg.Persist.Path != "" {
		d.store = persist.NewFileStore(cfg.Persist.Path)
	}
	if d.store != nil {
		d.saver = persist.NewSaver(&cfg.Persist, d.store, d.snapshot,
			persist.WithSaverObserver(d.observer))
	}

	return d, nil
}

// markDirty forwards registry mutations to the saver when persistence is
// enabled.
func (d *Deck) markDirty() {
	if d.saver != nil {
		d.saver.MarkDirty()
	}
}

// snapshot captures the persistable view of every session.
func (d *Deck) snapshot() persist.Document {
	live := d.registry.List()
	doc := persist.Document{
		Sessions:        make([]session.Session, 0, len(live)),
		ActiveSessionID: d.registry.Active(),
	}
	now := time.Now()
	for _, s := range live {
		doc.Sessions = append(doc.Sessions, persist.ToPersisted(s, now))
	}
	return doc
}

// CreateSession allocates a session and registers it with the backend.
func (d *Deck) CreateSession(ctx context.Context, params session.CreateParams) (string, error) {
	return d.registry.Create(ctx, params)
}

// CreateDraft allocates a setup-stage session without touching the backend.
func (d *Deck) CreateDraft(params session.CreateParams) string {
	return d.registry.CreateDraft(params)
}

// SendPrompt forwards a prompt to the session, registering it first if
// needed.
func (d *Deck) SendPrompt(ctx context.Context, id, prompt string) error {
	return d.registry.SendPrompt(ctx, id, prompt, nil)
}

// SendPromptWithImages forwards a prompt with inline images attached.
func (d *Deck) SendPromptWithImages(ctx context.Context, id, prompt string, images []wire.Image) error {
	return d.registry.SendPrompt(ctx, id, prompt, images)
}

// StopQuery interrupts the session's in-flight query, best effort.
func (d *Deck) StopQuery(ctx context.Context, id string) error {
	return d.registry.StopQuery(ctx, id)
}

// CloseSession tears the session down locally and on the backend.
func (d *Deck) CloseSession(ctx context.Context, id string) error {
	return d.registry.Close(ctx, id)
}

// UpdateModel switches the session's model.
func (d *Deck) UpdateModel(ctx context.Context, id, model string) error {
	return d.registry.UpdateModel(ctx, id, model)
}

// UpdateThinking sets the session's extended-thinking budget; zero disables.
func (d *Deck) UpdateThinking(ctx context.Context, id string, maxTokens int) error {
	return d.registry.UpdateThinking(ctx, id, maxTokens)
}

// SetPlanMode toggles planning tools for a not-yet-registered session.
func (d *Deck) SetPlanMode(id string, planMode bool) error {
	return d.registry.SetPlanMode(id, planMode)
}

// UpdateCwd changes a not-yet-registered session's working directory.
func (d *Deck) UpdateCwd(id, cwd string) error {
	return d.registry.UpdateCwd(id, cwd)
}

// Session returns a snapshot of one session.
func (d *Deck) Session(id string) (session.Session, error) {
	return d.registry.Get(id)
}

// Sessions returns snapshots of every session, oldest first.
func (d *Deck) Sessions() []session.Session {
	return d.registry.List()
}

// SetActiveSession records the focused session id.
func (d *Deck) SetActiveSession(id string) error {
	return d.registry.SetActive(id)
}

// ActiveSession returns the focused session id, empty when none.
func (d *Deck) ActiveSession() string {
	return d.registry.Active()
}

// Subscribe opens a per-session event stream.
func (d *Deck) Subscribe(id string) *events.Subscription {
	return d.bus.Subscribe(id)
}

// Unsubscribe closes an event stream.
func (d *Deck) Unsubscribe(sub *events.Subscription) {
	d.bus.Unsubscribe(sub)
}

// EnqueueRecording queues one finished recording for transcription.
func (d *Deck) EnqueueRecording(audio []byte, onComplete transcribe.CompletionFunc) (string, error) {
	return d.queue.Enqueue(audio, onComplete)
}

// AwaitTranscription blocks until the recording settles.
func (d *Deck) AwaitTranscription(ctx context.Context, id string) (string, error) {
	return d.queue.Await(ctx, id)
}

// QueueLen reports pending plus in-flight recordings.
func (d *Deck) QueueLen() int {
	return d.queue.Len()
}

// ClearCompletedRecordings drops settled queue entries.
func (d *Deck) ClearCompletedRecordings() int {
	return d.queue.ClearCompleted()
}

// TestTranscription probes the transcription backend's health and
// transcription paths.
func (d *Deck) TestTranscription(ctx context.Context) transcribe.ConnectionTestResult {
	return d.whisper.TestConnection(ctx)
}

// LoadSessions restores the persisted snapshot into the registry. A
// missing or unreadable snapshot restores nothing; load failures are
// logged, not fatal.
func (d *Deck) LoadSessions() error {
	if d.store == nil {
		return nil
	}
	doc, err := d.store.Load()
	if err != nil {
		d.observer.OnEvent(context.Background(), observability.NewEvent(
			persist.EventLoad, observability.LevelWarning, "deck",
			map[string]any{"error": err.Error()},
		))
		return nil
	}

	restored := 0
	for _, record := range doc.Sessions {
		if err := d.registry.Restore(persist.FromPersisted(record)); err != nil {
			d.observer.OnEvent(context.Background(), observability.NewEvent(
				persist.EventLoad, observability.LevelWarning, "deck",
				map[string]any{"session_id": record.ID, "error": err.Error()},
			))
			continue
		}
		restored++
	}
	if doc.ActiveSessionID != "" {
		if err := d.registry.SetActive(doc.ActiveSessionID); err != nil {
			d.observer.OnEvent(context.Background(), observability.NewEvent(
				persist.EventLoad, observability.LevelVerbose, "deck",
				map[string]any{"session_id": doc.ActiveSessionID, "error": err.Error()},
			))
		}
	}

	d.observer.OnEvent(context.Background(), observability.NewEvent(
		persist.EventLoad, observability.LevelInfo, "deck",
		map[string]any{"restored": restored},
	))
	return nil
}

// SaveNow flushes the snapshot immediately, bypassing the debounce.
func (d *Deck) SaveNow() error {
	if d.saver == nil {
		return nil
	}
	return d.saver.Flush()
}

// ClearSnapshot removes the persisted snapshot from disk.
func (d *Deck) ClearSnapshot() error {
	if d.store == nil {
		return fmt.Errorf("clearing snapshot: %w", ErrPersistenceDisabled)
	}
	if err := d.store.Clear(); err != nil {
		return err
	}
	d.observer.OnEvent(context.Background(), observability.NewEvent(
		persist.EventClear, observability.LevelInfo, "deck", nil,
	))
	return nil
}

// Shutdown stops the deck: a final best-effort snapshot flush, then the
// transcription queue, then the sidecar subprocess.
func (d *Deck) Shutdown(ctx context.Context) error {
	var firstErr error

	if d.saver != nil {
		if err := d.saver.Close(); err != nil {
			d.observer.OnEvent(ctx, observability.NewEvent(
				persist.EventSaveFailed, observability.LevelWarning, "deck",
				map[string]any{"error": err.Error()},
			))
		}
	}
	if err := d.queue.Close(ctx); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing transcription queue: %w", err)
	}
	if err := d.manager.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("shutting down sidecar: %w", err)
	}
	return firstErr
}
