package transcribe

// Config holds transcription backend settings.
type Config struct {
	// Endpoint is the OpenAI-compatible transcription URL.
	Endpoint string `json:"endpoint"`
	// Model is the backend model identifier.
	Model string `json:"model"`
	// Language is the expected speech language code.
	Language string `json:"language"`
	// APIKey, when set, is sent as a bearer token.
	APIKey string `json:"apiKey,omitempty"`
}

// DefaultConfig returns settings for a local faster-whisper server.
func DefaultConfig() Config {
	return Config{
		Endpoint: "http://localhost:8000/v1/audio/transcriptions",
		Model:    "Systran/faster-whisper-base",
		Language: "en",
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Endpoint != "" {
		c.Endpoint = source.Endpoint
	}
	if source.Model != "" {
		c.Model = source.Model
	}
	if source.Language != "" {
		c.Language = source.Language
	}
	if source.APIKey != "" {
		c.APIKey = source.APIKey
	}
}
