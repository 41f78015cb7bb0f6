package session

// Config holds registry defaults applied when a caller omits a value.
type Config struct {
	// DefaultModel is used when CreateParams.Model is empty.
	DefaultModel string `json:"defaultModel"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		DefaultModel: "claude-sonnet-4-20250514",
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.DefaultModel != "" {
		c.DefaultModel = source.DefaultModel
	}
}
