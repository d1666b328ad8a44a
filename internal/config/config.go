// Package config loads the process-wide configuration from environment
// variables, covering every key the pipeline, queue, and HTTP boundary read.
package config

import (
	"time"

	"github.com/hubenschmidt/dubline/internal/env"
)

// Config holds every environment-tunable setting read once at process startup.
type Config struct {
	ASRProvider   string
	ASRLanguage   string
	ASRTimestamps bool

	TranslateProvider string
	TranslateTarget   string

	TTSProvider string
	TTSLanguage string
	TTSVoice    string

	MergeMode     string
	BurnSubtitles bool
	Enhance       bool

	SRTMaxWords        int
	SRTMaxLineDuration float64
	SRTMaxChars        int

	UploadDir     string
	RedisURL      string
	MediaToolPath string

	ASRTimeout       time.Duration
	TranslateTimeout time.Duration
	TTSTimeout       time.Duration
	MediaTimeout     time.Duration

	RetryAttempts int
	RetryMinDelay time.Duration
	RetryFactor   float64

	WorkerConcurrency int
	LogLevel          string
	HTTPPort          string

	OpenAIAPIKey       string
	GoogleTranslateKey string
	TTSBaseURL         string
	HTTPClientPoolSize int
}

// Load reads Config from the environment, applying the defaults from §6 of
// the design document when a variable is unset.
func Load() Config {
	return Config{
		ASRProvider:   env.Str("ASR_PROVIDER", "mock"),
		ASRLanguage:   env.Str("ASR_LANGUAGE", ""),
		ASRTimestamps: env.Bool("ASR_TIMESTAMPS", false),

		TranslateProvider: env.Str("TRANSLATE_PROVIDER", "google"),
		TranslateTarget:   env.Str("TRANSLATE_TARGET", "id"),

		TTSProvider: env.Str("TTS_PROVIDER", "mock"),
		TTSLanguage: env.Str("TTS_LANGUAGE", "id-ID"),
		TTSVoice:    env.Str("TTS_VOICE", ""),

		MergeMode:     env.Str("MERGE_MODE", "replace"),
		BurnSubtitles: env.Bool("BURN_SUBTITLES", false),
		Enhance:       env.Bool("ENHANCE", false),

		SRTMaxWords:        env.Int("SRT_MAX_WORDS", 7),
		SRTMaxLineDuration: env.Float("SRT_MAX_LINE_DURATION", 4.0),
		SRTMaxChars:        env.Int("SRT_MAX_CHARS", 80),

		UploadDir:     env.Str("UPLOAD_DIR", "uploads"),
		RedisURL:      env.Str("REDIS_URL", "redis://localhost:6379/0"),
		MediaToolPath: env.Str("MEDIA_TOOL_PATH", ""),

		ASRTimeout:       time.Duration(env.Int("ASR_TIMEOUT_SEC", 300)) * time.Second,
		TranslateTimeout: time.Duration(env.Int("TRANSLATE_TIMEOUT_SEC", 30)) * time.Second,
		TTSTimeout:       time.Duration(env.Int("TTS_TIMEOUT_SEC", 60)) * time.Second,
		MediaTimeout:     time.Duration(env.Int("MEDIA_TIMEOUT_SEC", 120)) * time.Second,

		RetryAttempts: env.Int("RETRY_ATTEMPTS", 3),
		RetryMinDelay: time.Duration(env.Int("RETRY_MIN_DELAY_MS", 500)) * time.Millisecond,
		RetryFactor:   env.Float("RETRY_FACTOR", 2),

		WorkerConcurrency: env.Int("WORKER_CONCURRENCY", 1),
		LogLevel:          env.Str("LOG_LEVEL", "info"),
		HTTPPort:          env.Str("HTTP_PORT", "8080"),

		OpenAIAPIKey:       env.Str("OPENAI_API_KEY", ""),
		GoogleTranslateKey: env.Str("GOOGLE_TRANSLATE_API_KEY", ""),
		TTSBaseURL:         env.Str("TTS_BASE_URL", ""),
		HTTPClientPoolSize: env.Int("HTTP_CLIENT_POOL_SIZE", 8),
	}
}
