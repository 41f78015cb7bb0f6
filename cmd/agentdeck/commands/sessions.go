package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/persist"
)

// NewSessionsCommand creates the sessions command
func NewSessionsCommand() *cobra.Command {
	var clear bool

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect the persisted session snapshot",
		Long: `Sessions lists the sessions saved in the persistence snapshot without
starting the sidecar. With --clear the snapshot is deleted instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if clear {
				return clearSnapshot()
			}
			return showSessions()
		},
	}

	sessionsCmd.Flags().BoolVar(&clear, "clear", false, "Delete the persisted snapshot")

	return sessionsCmd
}

func openStore() (persist.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Persist.Path == "" {
		return nil, fmt.Errorf("persistence is not configured (set persist.path in the config file)")
	}
	return persist.NewFileStore(cfg.Persist.Path), nil
}

func showSessions() error {
	store, err := openStore()
	if err != nil {
		return err
	}
	doc, err := store.Load()
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	if len(doc.Sessions) == 0 {
		fmt.Println("No saved sessions")
		return nil
	}

	fmt.Printf("Saved sessions (snapshot from %s):\n", doc.SavedAt.Format("2006-01-02 15:04"))
	for i, s := range doc.Sessions {
		marker := " "
		if s.ID == doc.ActiveSessionID {
			marker = "*"
		}
		fmt.Printf("%s %d. %s\n", marker, i+1, s.ID)
		fmt.Printf("     Cwd: %s\n", s.Cwd)
		fmt.Printf("     Model: %s\n", s.Model)
		fmt.Printf("     Status: %s\n", s.SmartStatus())
		fmt.Printf("     Messages: %d\n", len(s.Messages))
		fmt.Printf("     Created: %s\n", s.CreatedAt.Format("2006-01-02 15:04"))
		if s.AccumulatedDurationMS > 0 {
			fmt.Printf("     Work time: %s\n", (time.Duration(s.AccumulatedDurationMS) * time.Millisecond).Round(time.Second))
		}
		fmt.Println()
	}
	return nil
}

func clearSnapshot() error {
	store, err := openStore()
	if err != nil {
		return err
	}
	if err := store.Clear(); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	fmt.Println("Snapshot cleared")
	return nil
}
