package deck

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/agentdeck/agentdeck/persist"
	"github.com/agentdeck/agentdeck/session"
	"github.com/agentdeck/agentdeck/sidecar"
	"github.com/agentdeck/agentdeck/transcribe"
)

// Config holds initialization parameters for all deck subsystems. Each
// section delegates to that subsystem's config-driven constructor.
type Config struct {
	Sidecar    sidecar.Config    `json:"sidecar"`
	Session    session.Config    `json:"session"`
	Transcribe transcribe.Config `json:"transcribe"`
	Persist    persist.Config    `json:"persist"`

	// Observer names a registered observer ("noop", "slog", or anything
	// added via observability.RegisterObserver) used by every subsystem.
	Observer string `json:"observer,omitempty"`

	// EventBuffer sizes each subscriber's event channel; zero uses the
	// fan-out default.
	EventBuffer int `json:"eventBuffer,omitempty"`
}

// DefaultConfig returns a Config with defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Sidecar:    sidecar.DefaultConfig(),
		Session:    session.DefaultConfig(),
		Transcribe: transcribe.DefaultConfig(),
		Persist:    persist.DefaultConfig(),
		Observer:   "slog",
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Sidecar.Merge(&source.Sidecar)
	c.Session.Merge(&source.Session)
	c.Transcribe.Merge(&source.Transcribe)
	c.Persist.Merge(&source.Persist)

	if source.Observer != "" {
		c.Observer = source.Observer
	}
	if source.EventBuffer > 0 {
		c.EventBuffer = source.EventBuffer
	}
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
