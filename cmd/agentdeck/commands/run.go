package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/deck"
	"github.com/agentdeck/agentdeck/events"
	"github.com/agentdeck/agentdeck/session"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	var (
		cwd    string
		model  string
		prompt string
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single prompt through a fresh session",
		Long: `Run starts the sidecar, creates one session, sends the prompt, and
streams the agent's output until the query finishes. The session is
persisted before exit when persistence is configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt is required")
			}
			return runPrompt(cwd, model, prompt)
		},
	}

	runCmd.Flags().StringVar(&cwd, "cwd", ".", "Working directory for the session")
	runCmd.Flags().StringVar(&model, "model", "", "Model override (defaults to config)")
	runCmd.Flags().StringVar(&prompt, "prompt", "", "Prompt to send (required)")

	return runCmd
}

func runPrompt(cwd, model, prompt string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	d, err := deck.New(cfg, deck.WithObserver(newObserver()))
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	defer func() {
		if err := d.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		}
	}()

	if err := d.LoadSessions(); err != nil {
		return err
	}

	id, err := d.CreateSession(ctx, session.CreateParams{Cwd: cwd, Model: model})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	sub := d.Subscribe(id)
	defer d.Unsubscribe(sub)

	if err := d.SendPrompt(ctx, id, prompt); err != nil {
		return fmt.Errorf("failed to send prompt: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			if err := d.StopQuery(context.Background(), id); err != nil {
				fmt.Fprintf(os.Stderr, "interrupt: %v\n", err)
			}
			return d.SaveNow()
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			switch event.Kind {
			case events.KindText:
				fmt.Println(event.Text.Content)
			case events.KindToolStart:
				fmt.Printf("[tool] %s\n", event.ToolStart.Tool)
			case events.KindThinkingStart:
				fmt.Println("[thinking]")
			case events.KindError:
				return fmt.Errorf("session error: %s", event.Error.Message)
			case events.KindDone:
				printFinalUsage(d, id)
				return d.SaveNow()
			}
		}
	}
}

func printFinalUsage(d *deck.Deck, id string) {
	s, err := d.Session(id)
	if err != nil || s.Usage == nil {
		return
	}
	fmt.Printf("\n%d input / %d output tokens, %.0f%% of context\n",
		s.Usage.InputTokens, s.Usage.OutputTokens, s.Usage.ContextUsedPercent)
}
