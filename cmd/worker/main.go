// Command worker drains the media-jobs queue and drives each job through
// the dubbing pipeline: extract, optionally enhance, transcribe, translate,
// synthesize, and optionally merge the dub back into the source video.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hubenschmidt/dubline/internal/asr"
	"github.com/hubenschmidt/dubline/internal/config"
	"github.com/hubenschmidt/dubline/internal/media"
	"github.com/hubenschmidt/dubline/internal/pipeline"
	"github.com/hubenschmidt/dubline/internal/queue"
	"github.com/hubenschmidt/dubline/internal/retry"
	"github.com/hubenschmidt/dubline/internal/subtitle"
	"github.com/hubenschmidt/dubline/internal/translate"
	"github.com/hubenschmidt/dubline/internal/tts"
	"github.com/hubenschmidt/dubline/internal/worker"
)

func main() {
	concurrency := flag.Int("concurrency", 0, "number of concurrent dequeue loops (0 = use WORKER_CONCURRENCY)")
	flag.Parse()

	cfg := config.Load()

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	q, err := queue.NewRedisQueue(cfg.RedisURL, logger)
	if err != nil {
		logger.Error("connect to queue failed", "err", err)
		os.Exit(1)
	}
	defer q.Close()

	engine := &pipeline.Engine{
		ASR:       asr.NewRouter(cfg.OpenAIAPIKey, cfg.HTTPClientPoolSize, cfg.ASRTimeout),
		Translate: translate.NewRouter(cfg.GoogleTranslateKey, cfg.HTTPClientPoolSize, cfg.TranslateTimeout),
		TTS:       tts.NewRouter(cfg.TTSBaseURL, cfg.HTTPClientPoolSize, cfg.TTSTimeout),
		Media:     media.NewTool(cfg.MediaToolPath),

		RetryConfig: retry.Config{
			Retries:  cfg.RetryAttempts,
			MinDelay: cfg.RetryMinDelay,
			Factor:   cfg.RetryFactor,
		},
		SRTBounds: subtitle.Bounds{
			MaxWords:        cfg.SRTMaxWords,
			MaxLineDuration: cfg.SRTMaxLineDuration,
			MaxChars:        cfg.SRTMaxChars,
		},
		Timeouts: pipeline.Timeouts{
			ASR:       cfg.ASRTimeout,
			Translate: cfg.TranslateTimeout,
			TTS:       cfg.TTSTimeout,
			Media:     cfg.MediaTimeout,
		},

		DefaultTTSLanguage: cfg.TTSLanguage,
		DefaultTTSVoice:    cfg.TTSVoice,

		Logger: logger,
	}

	w := &worker.Worker{
		Queue:  q,
		Engine: engine,
		Logger: logger,

		DefaultASRProvider:       cfg.ASRProvider,
		DefaultASRLanguage:       cfg.ASRLanguage,
		DefaultASRTimestamps:     cfg.ASRTimestamps,
		DefaultTranslateProvider: cfg.TranslateProvider,
		DefaultTranslateTarget:   cfg.TranslateTarget,
		DefaultTTSProvider:       cfg.TTSProvider,
		DefaultMergeMode:         queue.MergeMode(cfg.MergeMode),
	}

	n := *concurrency
	if n <= 0 {
		n = cfg.WorkerConcurrency
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("worker starting", "concurrency", n)
	w.Run(ctx, n)
	logger.Info("worker stopped")
}
