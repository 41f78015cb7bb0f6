package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/events"
	"github.com/agentdeck/agentdeck/observability"
	"github.com/agentdeck/agentdeck/session"
	"github.com/agentdeck/agentdeck/wire"
)

type fakeSender struct {
	mu       sync.Mutex
	startErr error
	sendErr  error
	commands []wire.Command
}

func (f *fakeSender) EnsureStarted(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startErr
}

func (f *fakeSender) Send(ctx context.Context, command wire.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.commands = append(f.commands, command)
	return nil
}

func (f *fakeSender) setSendErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

func (f *fakeSender) sent() []wire.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wire.Command(nil), f.commands...)
}

func (f *fakeSender) countCreates() int {
	count := 0
	for _, cmd := range f.sent() {
		if _, ok := cmd.(wire.Create); ok {
			count++
		}
	}
	return count
}

// fakeClock is an adjustable wall clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T) (*session.Registry, *fakeSender, *events.Bus, *fakeClock) {
	t.Helper()
	sender := &fakeSender{}
	bus := events.NewBus(0)
	clock := newFakeClock()
	cfg := session.DefaultConfig()
	registry := session.NewRegistry(&cfg, sender, bus,
		session.WithObserver(observability.NoOpObserver{}),
		session.WithClock(clock.Now),
	)
	return registry, sender, bus, clock
}

func TestRegistry_Create(t *testing.T) {
	registry, sender, _, _ := newTestRegistry(t)

	id, err := registry.Create(context.Background(), session.CreateParams{Cwd: "/repo"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id == "" {
		t.Fatal("Create() returned empty id")
	}

	s, err := registry.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if s.Status != session.StatusIdle {
		t.Errorf("status = %q, want idle", s.Status)
	}
	if s.Model == "" {
		t.Error("model default was not applied")
	}

	commands := sender.sent()
	if len(commands) != 1 {
		t.Fatalf("sent %d commands, want 1 create", len(commands))
	}
	create, ok := commands[0].(wire.Create)
	if !ok {
		t.Fatalf("sent %T, want wire.Create", commands[0])
	}
	if create.ID != id || create.Cwd != "/repo" {
		t.Errorf("create = %+v", create)
	}
}

func TestRegistry_Create_SidecarStartFailure(t *testing.T) {
	registry, sender, _, _ := newTestRegistry(t)
	sender.startErr = errors.New("spawn failed")

	id, err := registry.Create(context.Background(), session.CreateParams{ID: "s1", Cwd: "/repo"})
	if err == nil {
		t.Fatal("Create() succeeded with a dead sidecar")
	}
	if id != "" {
		t.Errorf("Create() returned id %q on failure", id)
	}
	if _, err := registry.Get("s1"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("failed session was retained: %v", err)
	}

	if registry.List() != nil && len(registry.List()) != 0 {
		t.Errorf("List() = %v, want empty", registry.List())
	}
}

func TestRegistry_Create_DuplicateID(t *testing.T) {
	registry, _, _, _ := newTestRegistry(t)

	if _, err := registry.Create(context.Background(), session.CreateParams{ID: "s1"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := registry.Create(context.Background(), session.CreateParams{ID: "s1"}); !errors.Is(err, session.ErrExists) {
		t.Errorf("duplicate Create() error = %v, want ErrExists", err)
	}
}

func TestRegistry_ConcurrentRegistrationIsIdempotent(t *testing.T) {
	registry, sender, _, _ := newTestRegistry(t)
	id := registry.CreateDraft(session.CreateParams{Cwd: "/repo"})

	var group sync.WaitGroup
	for i := 0; i < 10; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			if err := registry.SendPrompt(context.Background(), id, "go", nil); err != nil {
				t.Errorf("SendPrompt() error = %v", err)
			}
		}()
	}
	group.Wait()

	if got := sender.countCreates(); got != 1 {
		t.Errorf("backend received %d create commands, want exactly 1", got)
	}
}

func TestRegistry_SendPrompt(t *testing.T) {
	registry, sender, _, _ := newTestRegistry(t)
	id, _ := registry.Create(context.Background(), session.CreateParams{Cwd: "/repo"})

	if err := registry.SendPrompt(context.Background(), id, "fix the bug", nil); err != nil {
		t.Fatalf("SendPrompt() error = %v", err)
	}

	s, _ := registry.Get(id)
	if s.Status != session.StatusQuerying {
		t.Errorf("status = %q, want querying", s.Status)
	}
	if s.CurrentWorkStartedAt == nil {
		t.Error("work timer was not started")
	}
	if len(s.Messages) != 1 || s.Messages[0].Type != session.MessageUser || s.Messages[0].Content != "fix the bug" {
		t.Errorf("messages = %+v, want one user message", s.Messages)
	}

	commands := sender.sent()
	last := commands[len(commands)-1]
	query, ok := last.(wire.Query)
	if !ok {
		t.Fatalf("last command is %T, want wire.Query", last)
	}
	if query.ID != id || query.Prompt != "fix the bug" {
		t.Errorf("query = %+v", query)
	}
}

func TestRegistry_SendPrompt_TransportFailure(t *testing.T) {
	registry, sender, _, _ := newTestRegistry(t)
	id, _ := registry.Create(context.Background(), session.CreateParams{Cwd: "/repo"})

	sender.setSendErr(errors.New("broken pipe"))
	if err := registry.SendPrompt(context.Background(), id, "go", nil); err == nil {
		t.Fatal("SendPrompt() succeeded over a broken transport")
	}

	s, _ := registry.Get(id)
	if s.Status != session.StatusError {
		t.Errorf("status = %q, want error", s.Status)
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Type != session.MessageError {
		t.Errorf("last message = %+v, want an error entry", last)
	}
	if s.CurrentWorkStartedAt != nil {
		t.Error("work timer left open after failure")
	}

	// The error state is absorbing.
	if err := registry.SendPrompt(context.Background(), id, "again", nil); !errors.Is(err, session.ErrSessionFailed) {
		t.Errorf("SendPrompt() on failed session error = %v, want ErrSessionFailed", err)
	}
}

func applyLine(t *testing.T, registry *session.Registry, line string) {
	t.Helper()
	event, err := wire.Decode([]byte(line))
	if err != nil {
		t.Fatalf("decoding %q: %v", line, err)
	}
	registry.Apply(event)
}

func TestRegistry_SmartStatusScenario(t *testing.T) {
	registry, _, _, _ := newTestRegistry(t)
	id, _ := registry.Create(context.Background(), session.CreateParams{ID: "A", Cwd: "/repo"})
	if err := registry.SendPrompt(context.Background(), id, "fix the bug", nil); err != nil {
		t.Fatalf("SendPrompt() error = %v", err)
	}

	statusAfter := func(line string) string {
		applyLine(t, registry, line)
		s, err := registry.Get(id)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		return s.SmartStatus()
	}

	if got := statusAfter(`{"type":"tool_start","id":"A","tool":"grep","input":{}}`); got != "grep" {
		t.Errorf("after first tool_start: %q, want %q", got, "grep")
	}
	if got := statusAfter(`{"type":"tool_start","id":"A","tool":"grep","input":{}}`); got != "grep ×2" {
		t.Errorf("after second tool_start: %q, want %q", got, "grep ×2")
	}
	if got := statusAfter(`{"type":"text","id":"A","content":"done"}`); got != "responding" {
		t.Errorf("after text: %q, want %q", got, "responding")
	}
	if got := statusAfter(`{"type":"done","id":"A"}`); got != "idle" {
		t.Errorf("after done: %q, want %q", got, "idle")
	}

	s, _ := registry.Get(id)
	if s.Status != session.StatusIdle {
		t.Errorf("final status = %q, want idle", s.Status)
	}
}

func TestRegistry_ErrorIsolation(t *testing.T) {
	registry, _, _, _ := newTestRegistry(t)
	ctx := context.Background()
	registry.Create(ctx, session.CreateParams{ID: "A", Cwd: "/a"})
	registry.Create(ctx, session.CreateParams{ID: "B", Cwd: "/b"})
	if err := registry.SendPrompt(ctx, "B", "work", nil); err != nil {
		t.Fatalf("SendPrompt(B) error = %v", err)
	}

	applyLine(t, registry, `{"type":"error","id":"A","message":"boom"}`)

	a, _ := registry.Get("A")
	if a.Status != session.StatusError {
		t.Errorf("A status = %q, want error", a.Status)
	}
	last := a.Messages[len(a.Messages)-1]
	if last.Type != session.MessageError || last.Content != "boom" {
		t.Errorf("A last message = %+v, want error %q", last, "boom")
	}

	b, _ := registry.Get("B")
	if b.Status != session.StatusQuerying {
		t.Errorf("B status = %q, want querying", b.Status)
	}
	if len(b.Messages) != 1 {
		t.Errorf("B transcript grew to %d messages", len(b.Messages))
	}
}

func TestRegistry_ErrorStateIsAbsorbing(t *testing.T) {
	registry, _, _, _ := newTestRegistry(t)
	registry.Create(context.Background(), session.CreateParams{ID: "A"})
	registry.SendPrompt(context.Background(), "A", "go", nil)

	applyLine(t, registry, `{"type":"error","id":"A","message":"boom"}`)
	applyLine(t, registry, `{"type":"done","id":"A"}`)

	s, _ := registry.Get("A")
	if s.Status != session.StatusError {
		t.Errorf("status = %q after done, want error to absorb", s.Status)
	}
}

func TestRegistry_UnknownSessionEventDropped(t *testing.T) {
	registry, _, _, _ := newTestRegistry(t)
	registry.Create(context.Background(), session.CreateParams{ID: "A"})

	applyLine(t, registry, `{"type":"text","id":"ghost","content":"hi"}`)

	s, _ := registry.Get("A")
	if len(s.Messages) != 0 {
		t.Errorf("event for unknown id leaked into session A: %+v", s.Messages)
	}
}

func TestRegistry_DoneFoldsWorkTimer(t *testing.T) {
	registry, _, _, clock := newTestRegistry(t)
	registry.Create(context.Background(), session.CreateParams{ID: "A"})
	registry.SendPrompt(context.Background(), "A", "go", nil)

	clock.Advance(1500 * time.Millisecond)
	applyLine(t, registry, `{"type":"done","id":"A"}`)

	s, _ := registry.Get("A")
	if s.AccumulatedDurationMS != 1500 {
		t.Errorf("AccumulatedDurationMS = %d, want 1500", s.AccumulatedDurationMS)
	}
	if s.CurrentWorkStartedAt != nil {
		t.Error("work timer not cleared by done")
	}

	// A second turn accumulates on top.
	registry.SendPrompt(context.Background(), "A", "more", nil)
	clock.Advance(500 * time.Millisecond)
	applyLine(t, registry, `{"type":"done","id":"A"}`)

	s, _ = registry.Get("A")
	if s.AccumulatedDurationMS != 2000 {
		t.Errorf("AccumulatedDurationMS = %d after second turn, want 2000", s.AccumulatedDurationMS)
	}
}

func TestRegistry_ThinkingDuration(t *testing.T) {
	registry, _, _, clock := newTestRegistry(t)
	registry.Create(context.Background(), session.CreateParams{ID: "A"})
	registry.SendPrompt(context.Background(), "A", "go", nil)

	clock.Advance(100 * time.Millisecond)
	applyLine(t, registry, `{"type":"thinking_start","id":"A"}`)
	clock.Advance(800 * time.Millisecond)
	applyLine(t, registry, `{"type":"thinking_end","id":"A"}`)

	s, _ := registry.Get("A")
	var thinking *session.Message
	for i := range s.Messages {
		if s.Messages[i].Type == session.MessageThinking {
			thinking = &s.Messages[i]
		}
	}
	if thinking == nil {
		t.Fatal("no thinking entry recorded")
	}
	if thinking.DurationMS != 800 {
		t.Errorf("thinking DurationMS = %d, want 800", thinking.DurationMS)
	}
}

func TestRegistry_ZeroLengthThinkingTurnCloses(t *testing.T) {
	registry, _, _, clock := newTestRegistry(t)
	registry.Create(context.Background(), session.CreateParams{ID: "A"})
	registry.SendPrompt(context.Background(), "A", "go", nil)

	clock.Advance(100 * time.Millisecond)
	applyLine(t, registry, `{"type":"thinking_start","id":"A"}`)
	applyLine(t, registry, `{"type":"thinking_end","id":"A"}`)

	clock.Advance(100 * time.Millisecond)
	applyLine(t, registry, `{"type":"thinking_start","id":"A"}`)
	clock.Advance(500 * time.Millisecond)
	applyLine(t, registry, `{"type":"thinking_end","id":"A"}`)

	s, _ := registry.Get("A")
	var durations []int64
	for _, msg := range s.Messages {
		if msg.Type == session.MessageThinking {
			durations = append(durations, msg.DurationMS)
		}
	}
	if len(durations) != 2 {
		t.Fatalf("got %d thinking entries, want 2", len(durations))
	}
	if durations[0] != 1 {
		t.Errorf("zero-length turn DurationMS = %d, want clamped to 1", durations[0])
	}
	if durations[1] != 500 {
		t.Errorf("second turn DurationMS = %d, want 500", durations[1])
	}
}

func TestRegistry_StopQuery(t *testing.T) {
	registry, sender, _, _ := newTestRegistry(t)
	registry.Create(context.Background(), session.CreateParams{ID: "A"})
	registry.SendPrompt(context.Background(), "A", "go", nil)

	if err := registry.StopQuery(context.Background(), "A"); err != nil {
		t.Fatalf("StopQuery() error = %v", err)
	}

	s, _ := registry.Get("A")
	if s.Status != session.StatusIdle {
		t.Errorf("status = %q, want idle", s.Status)
	}

	commands := sender.sent()
	if _, ok := commands[len(commands)-1].(wire.Stop); !ok {
		t.Errorf("last command is %T, want wire.Stop", commands[len(commands)-1])
	}
}

func TestRegistry_StopQuery_InterruptFailureStillIdles(t *testing.T) {
	registry, sender, _, _ := newTestRegistry(t)
	registry.Create(context.Background(), session.CreateParams{ID: "A"})
	registry.SendPrompt(context.Background(), "A", "go", nil)

	sender.setSendErr(errors.New("broken pipe"))
	if err := registry.StopQuery(context.Background(), "A"); err != nil {
		t.Fatalf("StopQuery() error = %v, interruption is best-effort", err)
	}

	s, _ := registry.Get("A")
	if s.Status != session.StatusIdle {
		t.Errorf("status = %q, want idle despite failed interrupt", s.Status)
	}
}

func TestRegistry_Close(t *testing.T) {
	registry, sender, bus, _ := newTestRegistry(t)
	registry.Create(context.Background(), session.CreateParams{ID: "A"})
	sub := bus.Subscribe("A")

	if err := registry.Close(context.Background(), "A"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := registry.Get("A"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get() after close error = %v, want ErrNotFound", err)
	}
	commands := sender.sent()
	if _, ok := commands[len(commands)-1].(wire.Close); !ok {
		t.Errorf("last command is %T, want wire.Close", commands[len(commands)-1])
	}
	select {
	case _, open := <-sub.Events():
		if open {
			t.Error("subscription still delivering after close")
		}
	case <-time.After(time.Second):
		t.Error("subscription channel not closed")
	}
}

func TestRegistry_Close_BackendErrorSwallowed(t *testing.T) {
	registry, sender, _, _ := newTestRegistry(t)
	registry.Create(context.Background(), session.CreateParams{ID: "A"})

	sender.setSendErr(errors.New("broken pipe"))
	if err := registry.Close(context.Background(), "A"); err != nil {
		t.Errorf("Close() error = %v, backend errors must be swallowed", err)
	}
	if _, err := registry.Get("A"); !errors.Is(err, session.ErrNotFound) {
		t.Error("session survived close")
	}
}

func TestRegistry_UpdateModel(t *testing.T) {
	registry, sender, _, _ := newTestRegistry(t)
	registry.Create(context.Background(), session.CreateParams{ID: "A"})

	if err := registry.UpdateModel(context.Background(), "A", "claude-opus-4-20250514"); err != nil {
		t.Fatalf("UpdateModel() error = %v", err)
	}

	s, _ := registry.Get("A")
	if s.Model != "claude-opus-4-20250514" {
		t.Errorf("model = %q", s.Model)
	}
	commands := sender.sent()
	update, ok := commands[len(commands)-1].(wire.UpdateModel)
	if !ok || update.Model != "claude-opus-4-20250514" {
		t.Errorf("last command = %+v, want update_model", commands[len(commands)-1])
	}
}

func TestRegistry_UpdateThinking(t *testing.T) {
	registry, sender, _, _ := newTestRegistry(t)
	registry.Create(context.Background(), session.CreateParams{ID: "A"})

	if err := registry.UpdateThinking(context.Background(), "A", 8192); err != nil {
		t.Fatalf("UpdateThinking() error = %v", err)
	}
	s, _ := registry.Get("A")
	if s.Thinking != session.ThinkingOn || s.MaxThinkingTokens != 8192 {
		t.Errorf("thinking = %q/%d, want on/8192", s.Thinking, s.MaxThinkingTokens)
	}

	commands := sender.sent()
	update, ok := commands[len(commands)-1].(wire.UpdateThinking)
	if !ok || update.MaxThinkingTokens == nil || *update.MaxThinkingTokens != 8192 {
		t.Fatalf("last command = %+v, want update_thinking with budget", commands[len(commands)-1])
	}

	if err := registry.UpdateThinking(context.Background(), "A", 0); err != nil {
		t.Fatalf("UpdateThinking(0) error = %v", err)
	}
	s, _ = registry.Get("A")
	if s.Thinking != session.ThinkingOff || s.MaxThinkingTokens != 0 {
		t.Errorf("thinking = %q/%d after disable, want off/0", s.Thinking, s.MaxThinkingTokens)
	}
	commands = sender.sent()
	update = commands[len(commands)-1].(wire.UpdateThinking)
	if update.MaxThinkingTokens != nil {
		t.Errorf("disable sent budget %d, want omitted", *update.MaxThinkingTokens)
	}
}

func TestRegistry_UpdateCwd(t *testing.T) {
	registry, _, _, _ := newTestRegistry(t)
	id := registry.CreateDraft(session.CreateParams{Cwd: "/old"})

	if err := registry.UpdateCwd(id, "/new"); err != nil {
		t.Fatalf("UpdateCwd() error = %v", err)
	}
	s, _ := registry.Get(id)
	if s.Cwd != "/new" {
		t.Errorf("cwd = %q", s.Cwd)
	}

	live, _ := registry.Create(context.Background(), session.CreateParams{Cwd: "/repo"})
	if err := registry.UpdateCwd(live, "/elsewhere"); !errors.Is(err, session.ErrAlreadyLive) {
		t.Errorf("UpdateCwd() on live session error = %v, want ErrAlreadyLive", err)
	}
}

func TestRegistry_PlanMode(t *testing.T) {
	registry, sender, _, _ := newTestRegistry(t)
	id := registry.CreateDraft(session.CreateParams{Cwd: "/repo"})

	if err := registry.SetPlanMode(id, true); err != nil {
		t.Fatalf("SetPlanMode() error = %v", err)
	}
	s, _ := registry.Get(id)
	if !s.PlanMode {
		t.Error("plan mode was not recorded")
	}

	if err := registry.SendPrompt(context.Background(), id, "plan the refactor", nil); err != nil {
		t.Fatalf("SendPrompt() error = %v", err)
	}
	create, ok := sender.sent()[0].(wire.Create)
	if !ok {
		t.Fatalf("first command = %T, want wire.Create", sender.sent()[0])
	}
	if !create.PlanMode {
		t.Error("plan mode was not carried on the backend create")
	}

	if err := registry.SetPlanMode(id, false); !errors.Is(err, session.ErrAlreadyLive) {
		t.Errorf("SetPlanMode() on live session error = %v, want ErrAlreadyLive", err)
	}
}

func TestRegistry_PendingSubStates(t *testing.T) {
	registry, _, _, _ := newTestRegistry(t)
	id := registry.CreateDraft(session.CreateParams{})

	if err := registry.SetPendingTranscription(id, session.PendingTranscription{Audio: []byte{1}}); err != nil {
		t.Fatalf("SetPendingTranscription() error = %v", err)
	}
	s, _ := registry.Get(id)
	if s.Status != session.StatusPendingTranscription || s.PendingTranscription == nil {
		t.Errorf("status = %q, pending = %+v", s.Status, s.PendingTranscription)
	}

	// Sub-states are mutually exclusive.
	if err := registry.SetPendingRepo(id, session.PendingRepoSelection{Transcript: "fix it"}); err != nil {
		t.Fatalf("SetPendingRepo() error = %v", err)
	}
	s, _ = registry.Get(id)
	if s.Status != session.StatusPendingRepo || s.PendingTranscription != nil || s.PendingRepo == nil {
		t.Errorf("status = %q, transcription = %+v, repo = %+v", s.Status, s.PendingTranscription, s.PendingRepo)
	}

	if err := registry.SetPendingApproval(id, session.PendingApprovalPrompt{Prompt: "fix it"}); err != nil {
		t.Fatalf("SetPendingApproval() error = %v", err)
	}
	s, _ = registry.Get(id)
	if s.Status != session.StatusPendingApproval || s.PendingRepo != nil {
		t.Errorf("status = %q, repo = %+v", s.Status, s.PendingRepo)
	}

	if err := registry.ClearPending(id); err != nil {
		t.Fatalf("ClearPending() error = %v", err)
	}
	s, _ = registry.Get(id)
	if s.Status != session.StatusSetup || s.PendingApproval != nil {
		t.Errorf("status = %q, approval = %+v", s.Status, s.PendingApproval)
	}

	// Registration consumes the pending stage.
	if err := registry.SetPendingApproval(id, session.PendingApprovalPrompt{Prompt: "go"}); err != nil {
		t.Fatal(err)
	}
	if err := registry.SendPrompt(context.Background(), id, "go", nil); err != nil {
		t.Fatalf("SendPrompt() error = %v", err)
	}
	s, _ = registry.Get(id)
	if s.PendingApproval != nil {
		t.Error("pending payload survived registration")
	}
	if err := registry.SetPendingApproval(id, session.PendingApprovalPrompt{Prompt: "again"}); !errors.Is(err, session.ErrAlreadyLive) {
		t.Errorf("SetPendingApproval() on live session error = %v, want ErrAlreadyLive", err)
	}
}

func TestRegistry_RestoreReplaysHistory(t *testing.T) {
	registry, sender, _, _ := newTestRegistry(t)

	restored := session.Session{
		ID:     "old",
		Cwd:    "/repo",
		Model:  "claude-sonnet-4-20250514",
		Status: session.StatusIdle,
		Messages: []session.Message{
			{Type: session.MessageUser, Content: "fix the bug", Timestamp: 1},
			{Type: session.MessageToolStart, Tool: "grep", Input: json.RawMessage(`{"pattern":"bug"}`), Timestamp: 2},
			{Type: session.MessageToolResult, Tool: "grep", Output: "main.go:1", Timestamp: 3},
			{Type: session.MessageText, Content: "fixed", Timestamp: 4},
			{Type: session.MessageDone, Timestamp: 5},
		},
		CreatedAt: time.UnixMilli(1),
	}
	if err := registry.Restore(restored); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if err := registry.Restore(restored); !errors.Is(err, session.ErrExists) {
		t.Errorf("second Restore() error = %v, want ErrExists", err)
	}

	if err := registry.SendPrompt(context.Background(), "old", "continue", nil); err != nil {
		t.Fatalf("SendPrompt() error = %v", err)
	}

	var create wire.Create
	found := false
	for _, cmd := range sender.sent() {
		if c, ok := cmd.(wire.Create); ok {
			create = c
			found = true
		}
	}
	if !found {
		t.Fatal("no create command sent for restored session")
	}
	wantTypes := []string{"user", "tool_use", "tool_result", "assistant"}
	if len(create.Messages) != len(wantTypes) {
		t.Fatalf("replayed %d history records, want %d: %+v", len(create.Messages), len(wantTypes), create.Messages)
	}
	for i, want := range wantTypes {
		if create.Messages[i].Type != want {
			t.Errorf("history[%d].Type = %q, want %q", i, create.Messages[i].Type, want)
		}
	}
}

func TestRegistry_PublishesToBus(t *testing.T) {
	registry, _, bus, _ := newTestRegistry(t)
	registry.Create(context.Background(), session.CreateParams{ID: "A"})
	sub := bus.Subscribe("A")

	applyLine(t, registry, `{"type":"text","id":"A","content":"hi"}`)

	select {
	case event := <-sub.Events():
		if event.Kind != events.KindText || event.Text.Content != "hi" {
			t.Errorf("received %+v, want text/hi", event)
		}
		if event.SessionID != "A" {
			t.Errorf("SessionID = %q, want A", event.SessionID)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered to subscriber")
	}
}

func TestRegistry_UsageEvents(t *testing.T) {
	registry, _, _, _ := newTestRegistry(t)
	registry.Create(context.Background(), session.CreateParams{ID: "A"})

	applyLine(t, registry, `{"type":"usage","id":"A","inputTokens":1000,"outputTokens":500,"cacheReadTokens":200,"cacheCreationTokens":100,"totalCostUsd":0.05,"numTurns":1}`)
	applyLine(t, registry, `{"type":"progressive_usage","id":"A","inputTokens":50,"outputTokens":25}`)

	s, _ := registry.Get("A")
	if s.Usage == nil {
		t.Fatal("usage not recorded")
	}
	if s.Usage.InputTokens != 1000 || s.Usage.OutputTokens != 500 {
		t.Errorf("usage totals = %d/%d", s.Usage.InputTokens, s.Usage.OutputTokens)
	}
	if len(s.Usage.History) != 1 {
		t.Errorf("history length = %d, want 1", len(s.Usage.History))
	}
	if s.Usage.Progressive.InputTokens != 50 {
		t.Errorf("progressive input = %d, want 50", s.Usage.Progressive.InputTokens)
	}
	if s.Usage.ContextUsedPercent <= 0 || s.Usage.ContextUsedPercent > 100 {
		t.Errorf("ContextUsedPercent = %v, want (0,100]", s.Usage.ContextUsedPercent)
	}
}

func TestRegistry_ModelUpdatedEvent(t *testing.T) {
	registry, _, _, _ := newTestRegistry(t)
	registry.Create(context.Background(), session.CreateParams{ID: "A"})

	applyLine(t, registry, `{"type":"model_updated","id":"A","model":"claude-opus-4-20250514"}`)

	s, _ := registry.Get("A")
	if s.Model != "claude-opus-4-20250514" {
		t.Errorf("model = %q", s.Model)
	}
}

func TestRegistry_ActiveSelection(t *testing.T) {
	registry, _, _, _ := newTestRegistry(t)
	registry.Create(context.Background(), session.CreateParams{ID: "A"})

	if err := registry.SetActive("A"); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	if got := registry.Active(); got != "A" {
		t.Errorf("Active() = %q, want A", got)
	}
	if err := registry.SetActive("ghost"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("SetActive(ghost) error = %v, want ErrNotFound", err)
	}

	// Closing the active session clears the selection.
	registry.Close(context.Background(), "A")
	if got := registry.Active(); got != "" {
		t.Errorf("Active() = %q after close, want empty", got)
	}
}

func TestRegistry_DirtyHookFires(t *testing.T) {
	sender := &fakeSender{}
	bus := events.NewBus(0)
	var dirty int
	cfg := session.DefaultConfig()
	registry := session.NewRegistry(&cfg, sender, bus,
		session.WithObserver(observability.NoOpObserver{}),
		session.WithDirtyHook(func() { dirty++ }),
	)

	registry.Create(context.Background(), session.CreateParams{ID: "A"})
	if dirty == 0 {
		t.Error("dirty hook not invoked by Create")
	}

	before := dirty
	applyLine(t, registry, `{"type":"text","id":"A","content":"hi"}`)
	if dirty == before {
		t.Error("dirty hook not invoked by an applied event")
	}
}
