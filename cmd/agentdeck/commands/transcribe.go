package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/transcribe"
)

// NewTranscribeCommand creates the transcribe command
func NewTranscribeCommand() *cobra.Command {
	var test bool

	transcribeCmd := &cobra.Command{
		Use:   "transcribe [audio-file...]",
		Short: "Transcribe audio files through the transcription queue",
		Long: `Transcribe sends each audio file to the configured Whisper endpoint,
one at a time in argument order, and prints the transcripts. With
--test the endpoint is probed instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if test {
				return testConnection()
			}
			if len(args) == 0 {
				return fmt.Errorf("no audio files given (or use --test)")
			}
			return transcribeFiles(args)
		},
	}

	transcribeCmd.Flags().BoolVar(&test, "test", false, "Probe the transcription endpoint and exit")

	return transcribeCmd
}

func testConnection() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client := transcribe.NewWhisperClient(&cfg.Transcribe)
	result := client.TestConnection(context.Background())

	fmt.Printf("Endpoint: %s\n", cfg.Transcribe.Endpoint)
	if result.HealthOK {
		fmt.Println("Health check: ok")
	} else {
		fmt.Printf("Health check: failed (%s)\n", result.HealthError)
	}
	if result.TranscriptionOK {
		fmt.Println("Transcription probe: ok")
	} else {
		fmt.Printf("Transcription probe: failed (%s)\n", result.TranscriptionError)
	}
	if !result.HealthOK || !result.TranscriptionOK {
		return fmt.Errorf("transcription endpoint is not healthy")
	}
	return nil
}

func transcribeFiles(paths []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := transcribe.NewWhisperClient(&cfg.Transcribe)
	queue := transcribe.NewQueue(client, transcribe.WithQueueObserver(newObserver()))
	defer queue.Close(context.Background())

	ids := make([]string, 0, len(paths))
	for _, path := range paths {
		audio, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		id, err := queue.Enqueue(audio, nil)
		if err != nil {
			return fmt.Errorf("failed to enqueue %s: %w", path, err)
		}
		ids = append(ids, id)
	}

	for i, id := range ids {
		transcript, err := queue.Await(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to transcribe %s: %w", paths[i], err)
		}
		fmt.Printf("%s:\n%s\n", paths[i], transcript)
	}
	return nil
}
