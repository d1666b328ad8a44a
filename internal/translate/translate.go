// Package translate provides the translation capability: a narrow
// Translator interface, a mock and a Google Translate-backed implementation,
// and the router that selects between them by configuration.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hubenschmidt/dubline/internal/httputil"
	"github.com/hubenschmidt/dubline/internal/provider"
)

// Translator translates UTF-8 text into a BCP-47-ish target language.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// Router selects a Translator by configured engine name.
type Router struct {
	*provider.Router[Translator]
}

// NewRouter builds the translate router with the mock and google backends
// registered, falling back to mock when an unknown engine is requested or no
// API key is configured.
func NewRouter(googleAPIKey string, poolSize int, timeout time.Duration) *Router {
	backends := map[string]Translator{
		"mock": NewMock(),
	}
	if googleAPIKey != "" {
		backends["google"] = NewGoogle(googleAPIKey, poolSize, timeout)
	}
	return &Router{provider.NewRouter(backends, "mock")}
}

// Mock is a deterministic placeholder translation backend for offline testing.
type Mock struct{}

// NewMock constructs the mock translate backend.
func NewMock() *Mock { return &Mock{} }

// Translate returns a fixed placeholder string naming the target language,
// so downstream stages (TTS input selection, subtitle source selection)
// exercise the full pipeline without a network call.
func (m *Mock) Translate(ctx context.Context, text, targetLang string) (string, error) {
	return fmt.Sprintf("[%s] %s", targetLang, text), nil
}

// Google translates via the Google Cloud Translation v2 REST endpoint.
type Google struct {
	apiKey string
	client *http.Client
}

// NewGoogle constructs the Google-backed translate adapter with a pooled
// HTTP client.
func NewGoogle(apiKey string, poolSize int, timeout time.Duration) *Google {
	return &Google{apiKey: apiKey, client: httputil.NewPooledClient(poolSize, timeout)}
}

type googleTranslateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

// Translate calls the Google Translate v2 API and returns the translated text.
func (g *Google) Translate(ctx context.Context, text, targetLang string) (string, error) {
	form := url.Values{}
	form.Set("q", text)
	form.Set("target", targetLang)
	form.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://translation.googleapis.com/language/translate/v2", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate status %d: %s", resp.StatusCode, body)
	}

	var parsed googleTranslateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse translate response: %w", err)
	}
	if len(parsed.Data.Translations) == 0 {
		return "", fmt.Errorf("translate response has no translations")
	}
	return parsed.Data.Translations[0].TranslatedText, nil
}
