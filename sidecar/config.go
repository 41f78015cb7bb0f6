package sidecar

const (
	defaultCommand = "node"
	defaultScript  = "sidecar/dist/index.js"
)

// Config holds sidecar launch parameters.
type Config struct {
	Command string   `json:"command,omitempty"` // Executable to run.
	Args    []string `json:"args,omitempty"`    // Arguments, typically the worker script path.
}

// DefaultConfig returns the default sidecar configuration: a node worker
// script resolved relative to the working directory.
func DefaultConfig() Config {
	return Config{
		Command: defaultCommand,
		Args:    []string{defaultScript},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Command != "" {
		c.Command = source.Command
	}
	if len(source.Args) > 0 {
		c.Args = source.Args
	}
}
