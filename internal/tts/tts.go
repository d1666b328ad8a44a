// Package tts provides the speech-synthesis capability: a narrow
// Synthesizer interface, a mock and an HTTP-backed implementation, and the
// router that selects between them by configuration.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hubenschmidt/dubline/internal/audio"
	"github.com/hubenschmidt/dubline/internal/httputil"
	"github.com/hubenschmidt/dubline/internal/provider"
)

// Options parametrizes a single synthesize call.
type Options struct {
	Voice        string
	LanguageCode string
	Encoding     string
}

// Synthesizer synthesizes UTF-8 text to speech, writing the audio file at
// outPath. An empty resulting audio file is a failure.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outPath string, opts Options) error
}

// Router selects a Synthesizer by configured engine name.
type Router struct {
	*provider.Router[Synthesizer]
}

// NewRouter builds the TTS router with the mock backend always registered
// and an HTTP-backed backend registered when baseURL is configured.
func NewRouter(baseURL string, poolSize int, timeout time.Duration) *Router {
	backends := map[string]Synthesizer{
		"mock": NewMock(),
	}
	if baseURL != "" {
		backends["http"] = NewHTTP(baseURL, poolSize, timeout)
	}
	return &Router{provider.NewRouter(backends, "mock")}
}

// Mock is a deterministic placeholder TTS backend that writes a short sine
// tone WAV instead of calling out to a network provider, so pipeline runs
// exercise a real, playable audio artifact offline.
type Mock struct{}

// NewMock constructs the mock TTS backend.
func NewMock() *Mock { return &Mock{} }

// Synthesize ignores the requested voice/language and writes a placeholder
// tone lasting 0.5s plus 0.04s per byte of input text.
func (m *Mock) Synthesize(ctx context.Context, text, outPath string, opts Options) error {
	duration := 0.5 + float64(len(text))*0.04
	wav := audio.ToneWAV(220, duration, 16000)
	if len(wav) == 0 {
		return fmt.Errorf("mock tts produced empty audio")
	}
	return os.WriteFile(outPath, wav, 0o644)
}

// HTTP synthesizes speech via a JSON POST to a configured TTS server,
// writing whatever raw audio bytes the server returns.
type HTTP struct {
	baseURL string
	client  *http.Client
}

// NewHTTP constructs the HTTP-backed TTS adapter with a pooled client.
func NewHTTP(baseURL string, poolSize int, timeout time.Duration) *HTTP {
	return &HTTP{baseURL: baseURL, client: httputil.NewPooledClient(poolSize, timeout)}
}

type synthesizeRequest struct {
	Text         string `json:"text"`
	Voice        string `json:"voice,omitempty"`
	LanguageCode string `json:"languageCode,omitempty"`
	Encoding     string `json:"encoding,omitempty"`
}

// Synthesize posts text+opts as JSON and writes the raw response body
// (audio bytes) to outPath.
func (h *HTTP) Synthesize(ctx context.Context, text, outPath string, opts Options) error {
	payload, err := json.Marshal(synthesizeRequest{
		Text: text, Voice: opts.Voice, LanguageCode: opts.LanguageCode, Encoding: opts.Encoding,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/synthesize", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	audioBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tts status %d: %s", resp.StatusCode, audioBytes)
	}
	if len(audioBytes) == 0 {
		return fmt.Errorf("tts returned empty audio")
	}
	return os.WriteFile(outPath, audioBytes, 0o644)
}
