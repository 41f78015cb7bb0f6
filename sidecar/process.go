// Package sidecar manages the single long-lived worker subprocess that all
// agent sessions share. The manager starts the process lazily on first use,
// serializes framed command writes to its stdin, and runs a reader loop that
// decodes stdout line by line and hands each event to the routing handler.
package sidecar

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Process is a handle on a running sidecar subprocess.
type Process interface {
	// Wait blocks until the process exits. Returns nil on exit status 0.
	Wait() error

	// Stdin returns the write end of the process's stdin pipe. Framed
	// commands are injected here, one JSON object per line.
	Stdin() io.WriteCloser

	// Stdout returns the process's stdout pipe carrying framed events.
	Stdout() io.ReadCloser

	// Stderr returns the process's stderr pipe, relayed to the observer.
	Stderr() io.ReadCloser
}

// Launcher spawns the sidecar process. The default launcher execs the
// configured command; tests inject fakes through WithLauncher.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

type execProcess struct {
	command *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderr  io.ReadCloser
}

func (p *execProcess) Wait() error            { return p.command.Wait() }
func (p *execProcess) Stdin() io.WriteCloser  { return p.stdin }
func (p *execProcess) Stdout() io.ReadCloser  { return p.stdout }
func (p *execProcess) Stderr() io.ReadCloser  { return p.stderr }

type execLauncher struct {
	command string
	args    []string
}

// NewExecLauncher creates a Launcher that spawns command with args. The
// process inherits the parent environment and is killed when the launch
// context is cancelled.
func NewExecLauncher(command string, args ...string) Launcher {
	return &execLauncher{command: command, args: args}
}

func (l *execLauncher) Launch(ctx context.Context) (Process, error) {
	command := exec.CommandContext(ctx, l.command, l.args...)
	command.Env = os.Environ()

	stdin, err := command.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := command.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := command.StderrPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := command.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("starting sidecar %q: %w", l.command, err)
	}

	return &execProcess{
		command: command,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}, nil
}
