package persist

// Config holds snapshot persistence settings.
type Config struct {
	// Path is the snapshot file location; empty disables persistence.
	Path string `json:"path,omitempty"`
	// MaxSessions caps how many sessions the snapshot retains; the oldest
	// by creation time are dropped first.
	MaxSessions int `json:"maxSessions"`
	// DebounceMS is how long the saver coalesces mutations before writing.
	DebounceMS int `json:"debounceMs"`
}

// DefaultConfig returns the default persistence configuration. Path is empty
// until the host decides where the snapshot lives.
func DefaultConfig() Config {
	return Config{
		MaxSessions: 50,
		DebounceMS:  1000,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.MaxSessions != 0 {
		c.MaxSessions = source.MaxSessions
	}
	if source.DebounceMS != 0 {
		c.DebounceMS = source.DebounceMS
	}
}
