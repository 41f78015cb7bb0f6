package sidecar

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agentdeck/agentdeck/observability"
	"github.com/agentdeck/agentdeck/wire"
)

// Scanner sizing for the reader loop. Tool results can carry large file
// contents on a single line.
const (
	initialLineBuffer = 64 * 1024
	maxLineBuffer     = 1024 * 1024
)

// Handler receives every event decoded from the sidecar's stdout, in stream
// order. The manager calls it from the reader goroutine; implementations
// dispatch by the event's session id.
type Handler func(event wire.Event)

// Option configures a Manager.
type Option func(*Manager)

// WithLauncher overrides the process launcher. Tests use this to run the
// manager against an in-memory fake process.
func WithLauncher(launcher Launcher) Option {
	return func(m *Manager) { m.launcher = launcher }
}

// WithObserver overrides the default NoOpObserver.
func WithObserver(observer observability.Observer) Option {
	return func(m *Manager) { m.observer = observer }
}

// Manager owns the one sidecar subprocess shared by every session. It is
// safe for concurrent use: EnsureStarted is idempotent, writes are
// serialized, and the reader loop runs independently of writers.
type Manager struct {
	launcher Launcher
	observer observability.Observer

	mu       sync.Mutex
	handler  Handler
	started  bool
	shutdown bool
	stdin    io.WriteCloser
	cancel   context.CancelFunc
	// One errgroup per launch; superseded entries stay until Shutdown so a
	// relaunch never orphans a still-draining reader.
	groups []*errgroup.Group

	writeMu sync.Mutex
}

// NewManager creates a Manager from configuration. The subprocess is not
// started until EnsureStarted or the first operation that needs it.
func NewManager(cfg *Config, opts ...Option) *Manager {
	m := &Manager{
		launcher: NewExecLauncher(cfg.Command, cfg.Args...),
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Route sets the handler receiving decoded events. Must be set before the
// process starts; events decoded with no handler in place are dropped.
func (m *Manager) Route(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Started reports whether the subprocess is currently running.
func (m *Manager) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// EnsureStarted launches the subprocess if it is not already running.
// Concurrent callers race on the mutex and exactly one launches; the rest
// observe started state and return nil. The process lifetime is detached
// from the caller's context.
func (m *Manager) EnsureStarted(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return ErrShutDown
	}
	if m.started {
		return nil
	}

	processCtx, cancel := context.WithCancel(context.Background())
	process, err := m.launcher.Launch(processCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("launching sidecar: %w", err)
	}

	m.stdin = process.Stdin()
	m.cancel = cancel
	m.started = true

	group := new(errgroup.Group)
	group.Go(func() error { return m.readLoop(process.Stdout()) })
	group.Go(func() error { return m.stderrLoop(process.Stderr()) })
	group.Go(func() error {
		err := process.Wait()
		m.markStopped(err)
		return nil
	})
	m.groups = append(m.groups, group)

	m.observer.OnEvent(ctx, observability.NewEvent(
		EventStart, observability.LevelInfo, "sidecar.Manager", nil,
	))
	return nil
}

// Send frames the command and writes it to the subprocess's stdin. Returns
// ErrNotStarted if the subprocess is not running; a write failure is a
// transport error the caller surfaces to the affected session.
func (m *Manager) Send(ctx context.Context, command wire.Command) error {
	line, err := wire.Encode(command)
	if err != nil {
		return err
	}

	m.mu.Lock()
	stdin := m.stdin
	started := m.started
	m.mu.Unlock()

	if !started || stdin == nil {
		return ErrNotStarted
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if _, err := stdin.Write(line); err != nil {
		return fmt.Errorf("writing to sidecar: %w", err)
	}
	return nil
}

// Shutdown stops the subprocess and waits for the reader goroutines to
// drain, bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shutdown = true
	groups := make([]*errgroup.Group, len(m.groups))
	copy(groups, m.groups)
	cancel := m.cancel
	stdin := m.stdin
	m.mu.Unlock()

	if stdin != nil {
		stdin.Close()
	}
	if cancel != nil {
		cancel()
	}
	if len(groups) == 0 {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		var firstErr error
		for _, group := range groups {
			if err := group.Wait(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		done <- firstErr
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("sidecar shutdown: %w", ctx.Err())
	}
}

// markStopped records subprocess exit so a later EnsureStarted can relaunch.
func (m *Manager) markStopped(exitErr error) {
	m.mu.Lock()
	m.started = false
	m.stdin = nil
	m.mu.Unlock()

	data := map[string]any{}
	if exitErr != nil {
		data["error"] = exitErr.Error()
	}
	m.observer.OnEvent(context.Background(), observability.NewEvent(
		EventExit, observability.LevelWarning, "sidecar.Manager", data,
	))
}

// readLoop decodes stdout line by line and routes each event. Undecodable
// lines are logged with their raw text and skipped; they never terminate
// the loop.
func (m *Manager) readLoop(stdout io.Reader) error {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, initialLineBuffer), maxLineBuffer)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		event, err := wire.Decode(line)
		if err != nil {
			m.observer.OnEvent(context.Background(), observability.NewEvent(
				EventDecodeError, observability.LevelWarning, "sidecar.Manager",
				map[string]any{"line": string(line)},
			))
			continue
		}

		switch event.Type {
		case wire.EventReady:
			m.observer.OnEvent(context.Background(), observability.NewEvent(
				EventReady, observability.LevelInfo, "sidecar.Manager", nil,
			))
		case wire.EventDebug:
			m.observer.OnEvent(context.Background(), observability.NewEvent(
				EventDebug, observability.LevelVerbose, "sidecar.Manager",
				map[string]any{"session_id": event.SessionID, "message": event.Debug.Message},
			))
		}

		m.mu.Lock()
		handler := m.handler
		m.mu.Unlock()
		if handler != nil {
			handler(event)
		}
	}

	return scanner.Err()
}

// stderrLoop relays subprocess stderr to the observer.
func (m *Manager) stderrLoop(stderr io.Reader) error {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, initialLineBuffer), maxLineBuffer)

	for scanner.Scan() {
		m.observer.OnEvent(context.Background(), observability.NewEvent(
			EventStderr, observability.LevelVerbose, "sidecar.Manager",
			map[string]any{"line": scanner.Text()},
		))
	}
	return nil
}
