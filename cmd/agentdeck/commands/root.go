package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/deck"
	"github.com/agentdeck/agentdeck/observability"
)

var (
	configFile string
	verbose    bool
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentdeck",
		Short: "Run concurrent coding-agent sessions over a shared sidecar",
		Long: `agentdeck multiplexes coding-agent sessions over a single sidecar
subprocess, with voice transcription and session persistence.`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config JSON file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging to stderr")
	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewSessionsCommand())
	rootCmd.AddCommand(NewTranscribeCommand())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the effective Config: the --config file merged over
// defaults, or plain defaults when no file is given.
func loadConfig() (*deck.Config, error) {
	if configFile == "" {
		cfg := deck.DefaultConfig()
		return &cfg, nil
	}
	return deck.LoadConfig(configFile)
}

func newObserver() observability.Observer {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	return observability.NewSlogObserver(logger)
}
