package transcribe

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// WhisperClient talks to an OpenAI-compatible transcription endpoint such as
// faster-whisper-server. Audio is posted as a multipart form with model and
// language fields; the response body is {"text": "..."}.
type WhisperClient struct {
	httpClient *http.Client
	cfg        Config
}

// WhisperOption configures a WhisperClient.
type WhisperOption func(*WhisperClient)

// WithHTTPClient overrides the default HTTP client, for tests.
func WithHTTPClient(client *http.Client) WhisperOption {
	return func(w *WhisperClient) { w.httpClient = client }
}

// NewWhisperClient creates a client from configuration.
func NewWhisperClient(cfg *Config, opts ...WhisperOption) *WhisperClient {
	w := &WhisperClient{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		cfg:        *cfg,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// transcriptionResponse is the endpoint's success body.
type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe posts one recording and returns the recognized text.
func (w *WhisperClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	request, err := w.buildRequest(ctx, audio, "audio.wav")
	if err != nil {
		return "", err
	}

	response, err := w.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return "", fmt.Errorf("transcription endpoint returned %s: %s", response.Status, strings.TrimSpace(string(body)))
	}

	var result transcriptionResponse
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("parsing transcription response: %w", err)
	}
	return result.Text, nil
}

// ConnectionTestResult reports the two probes TestConnection runs.
type ConnectionTestResult struct {
	HealthOK           bool   `json:"healthOk"`
	HealthError        string `json:"healthError,omitempty"`
	TranscriptionOK    bool   `json:"transcriptionOk"`
	TranscriptionError string `json:"transcriptionError,omitempty"`
}

// TestConnection checks the backend's health endpoint, then posts a minimal
// silent WAV to exercise the real transcription path. The second probe also
// wakes backends that idle their model between requests.
func (w *WhisperClient) TestConnection(ctx context.Context) ConnectionTestResult {
	var result ConnectionTestResult

	healthURL := strings.Replace(w.cfg.Endpoint, "/v1/audio/transcriptions", "/health", 1)
	healthReq, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		result.HealthError = fmt.Sprintf("building health request: %v", err)
	} else if response, err := w.httpClient.Do(healthReq); err != nil {
		result.HealthError = fmt.Sprintf("health check failed: %v", err)
	} else {
		response.Body.Close()
		if response.StatusCode == http.StatusOK {
			result.HealthOK = true
		} else {
			result.HealthError = fmt.Sprintf("health check returned %s", response.Status)
		}
	}

	probe, err := w.buildRequest(ctx, minimalWAV(), "test.wav")
	if err != nil {
		result.TranscriptionError = err.Error()
		return result
	}
	response, err := w.httpClient.Do(probe)
	if err != nil {
		result.TranscriptionError = fmt.Sprintf("transcription probe failed: %v", err)
		return result
	}
	defer response.Body.Close()
	if response.StatusCode == http.StatusOK {
		result.TranscriptionOK = true
	} else {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		result.TranscriptionError = fmt.Sprintf("transcription probe returned %s: %s", response.Status, strings.TrimSpace(string(body)))
	}
	return result
}

func (w *WhisperClient) buildRequest(ctx context.Context, audio []byte, filename string) (*http.Request, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", "audio/wav")
	part, err := form.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("building transcription form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("building transcription form: %w", err)
	}
	if err := form.WriteField("model", w.cfg.Model); err != nil {
		return nil, fmt.Errorf("building transcription form: %w", err)
	}
	if err := form.WriteField("language", w.cfg.Language); err != nil {
		return nil, fmt.Errorf("building transcription form: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("building transcription form: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.Endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("building transcription request: %w", err)
	}
	request.Header.Set("Content-Type", form.FormDataContentType())
	if w.cfg.APIKey != "" {
		request.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)
	}
	return request, nil
}

// minimalWAV returns 0.1 seconds of 16 kHz mono PCM silence with a valid
// RIFF header, enough to drive one real transcription round trip.
func minimalWAV() []byte {
	const (
		sampleRate    = 16000
		numSamples    = 1600
		bitsPerSample = 16
		numChannels   = 1
	)
	const dataSize = numSamples * (bitsPerSample / 8) * numChannels

	wav := make([]byte, 0, 44+dataSize)
	le := binary.LittleEndian

	wav = append(wav, "RIFF"...)
	wav = le.AppendUint32(wav, 36+dataSize)
	wav = append(wav, "WAVE"...)

	wav = append(wav, "fmt "...)
	wav = le.AppendUint32(wav, 16)
	wav = le.AppendUint16(wav, 1) // PCM
	wav = le.AppendUint16(wav, numChannels)
	wav = le.AppendUint32(wav, sampleRate)
	wav = le.AppendUint32(wav, sampleRate*(bitsPerSample/8)*numChannels)
	wav = le.AppendUint16(wav, numChannels*(bitsPerSample/8))
	wav = le.AppendUint16(wav, bitsPerSample)

	wav = append(wav, "data"...)
	wav = le.AppendUint32(wav, dataSize)
	return append(wav, make([]byte, dataSize)...)
}
