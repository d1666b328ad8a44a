// Command server runs the HTTP submission/query boundary: accepts uploads,
// enqueues process-video jobs, and serves job state and downloadable
// artifacts back to clients.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubenschmidt/dubline/internal/config"
	"github.com/hubenschmidt/dubline/internal/httpapi"
	"github.com/hubenschmidt/dubline/internal/queue"
)

func main() {
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

	srv := httpapi.NewServer(
		":"+cfg.HTTPPort,
		q,
		cfg.UploadDir,
		queue.MergeMode(cfg.MergeMode),
		cfg.BurnSubtitles,
		cfg.Enhance,
		logger,
	)

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			os.Exit(1)
		}
	}()

	awaitShutdown(srv, logger)
}

func awaitShutdown(srv *http.Server, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}
