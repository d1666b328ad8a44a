// Package asr provides the speech-recognition capability: a narrow
// Transcriber interface, a mock and an OpenAI-backed implementation, and the
// router that selects between them by configuration.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hubenschmidt/dubline/internal/httputil"
	"github.com/hubenschmidt/dubline/internal/provider"
)

// Options configures a single transcribe call.
type Options struct {
	Language   string
	Timestamps bool
}

// Transcriber transcribes an audio file, returning the provider's raw
// payload (JSON bytes) for the normalizer to classify — transcribe(audioPath)
// never interprets provider-specific shape itself.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) ([]byte, error)
}

// Router selects a Transcriber by configured engine name.
type Router struct {
	*provider.Router[Transcriber]
}

// NewRouter builds the ASR router with the mock and openai backends
// registered, falling back to mock when an unknown engine is requested.
func NewRouter(openaiAPIKey string, poolSize int, timeout time.Duration) *Router {
	backends := map[string]Transcriber{
		"mock": NewMock(),
	}
	if openaiAPIKey != "" {
		backends["openai"] = NewOpenAI(openaiAPIKey, poolSize, timeout)
	}
	return &Router{provider.NewRouter(backends, "mock")}
}

// Mock is a deterministic placeholder ASR backend for offline testing.
type Mock struct{}

// NewMock constructs the mock ASR backend.
func NewMock() *Mock { return &Mock{} }

// Transcribe returns a fixed Shape-A payload naming the input file, so
// downstream pipeline stages exercise the full normalizer path.
func (m *Mock) Transcribe(ctx context.Context, audioPath string, opts Options) ([]byte, error) {
	base := filepath.Base(audioPath)
	payload := map[string]any{
		"text": fmt.Sprintf("mock transcript for %s", base),
		"segments": []map[string]any{
			{"text": fmt.Sprintf("mock transcript for %s", base), "start": 0.0, "end": 2.0},
		},
	}
	return json.Marshal(payload)
}

// OpenAI transcribes via the Whisper transcription endpoint.
type OpenAI struct {
	apiKey string
	client *http.Client
}

// NewOpenAI constructs the OpenAI-backed ASR adapter with a pooled HTTP client.
func NewOpenAI(apiKey string, poolSize int, timeout time.Duration) *OpenAI {
	return &OpenAI{apiKey: apiKey, client: httputil.NewPooledClient(poolSize, timeout)}
}

// Transcribe uploads the audio file to OpenAI's transcription API and
// returns the raw JSON response body for the normalizer.
func (o *OpenAI) Transcribe(ctx context.Context, audioPath string, opts Options) ([]byte, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	w.WriteField("model", "whisper-1")
	if opts.Language != "" {
		w.WriteField("language", opts.Language)
	}
	if opts.Timestamps {
		w.WriteField("response_format", "verbose_json")
		w.WriteField("timestamp_granularities[]", "word")
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/audio/transcriptions", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("asr request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("asr status %d: %s", resp.StatusCode, respBody)
	}
	return respBody, nil
}
