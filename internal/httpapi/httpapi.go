// Package httpapi implements the submission/query boundary: multipart
// upload enqueues a process-video job, job state/progress/result is readable
// by id, and completed artifacts are served by basename.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hubenschmidt/dubline/internal/queue"
)

// deps carries the dependencies every route handler needs, wired once at
// startup rather than threaded through globals.
type deps struct {
	queue     queue.Queue
	uploadDir string
	logger    *slog.Logger

	defaultMergeMode     queue.MergeMode
	defaultBurnSubtitles bool
	defaultEnhance       bool
}

// NewServer builds an http.Server exposing the upload/job/download/health
// surface, ready for ListenAndServe and graceful Shutdown.
func NewServer(addr string, q queue.Queue, uploadDir string, defaultMergeMode queue.MergeMode, defaultBurnSubtitles, defaultEnhance bool, logger *slog.Logger) *http.Server {
	d := deps{
		queue:                q,
		uploadDir:            uploadDir,
		logger:               logger,
		defaultMergeMode:     defaultMergeMode,
		defaultBurnSubtitles: defaultBurnSubtitles,
		defaultEnhance:       defaultEnhance,
	}

	mux := http.NewServeMux()
	registerRoutes(mux, d)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, d deps) {
	mux.HandleFunc("POST /upload", d.handleUpload)
	mux.HandleFunc("GET /job/{id}", d.handleJob)
	mux.HandleFunc("GET /download/{name}", d.handleDownload)
	mux.HandleFunc("GET /health", d.handleHealth)
	mux.Handle("GET /metrics", metricsHandler())
}

const maxUploadBytes = 1 << 30 // 1GiB

func (d deps) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	stamped := fmt.Sprintf("%d-%s", time.Now().UnixNano(), filepath.Base(header.Filename))
	destPath := filepath.Join(d.uploadDir, stamped)

	if err := os.MkdirAll(d.uploadDir, 0o755); err != nil {
		d.logger.Error("upload dir create failed", "err", err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}

	dest, err := os.Create(destPath)
	if err != nil {
		d.logger.Error("upload file create failed", "err", err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	if _, err := io.Copy(dest, file); err != nil {
		dest.Close()
		d.logger.Error("upload file write failed", "err", err)
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	dest.Close()

	data := queue.Data{
		SourcePath:       destPath,
		OriginalFilename: header.Filename,
		MergeMode:        parseMergeMode(r.FormValue("mergeMode"), d.defaultMergeMode),
		BurnSubtitles:    parseTruthy(r.FormValue("burnSubtitles"), d.defaultBurnSubtitles),
		Enhance:          parseTruthy(r.FormValue("enhance"), d.defaultEnhance),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	id, err := d.queue.Enqueue(ctx, queue.JobName, data)
	if err != nil {
		d.logger.Error("enqueue failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	d.logger.Info("job enqueued", "job_id", id, "filename", header.Filename)
	writeJSON(w, http.StatusOK, map[string]string{"jobId": id, "status": "queued"})
}

func (d deps) handleJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	job, err := d.queue.Get(ctx, id)
	if err != nil {
		d.logger.Error("get job failed", "job_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to read job")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (d deps) handleDownload(w http.ResponseWriter, r *http.Request) {
	// Basename-stripped to prevent path traversal: "../../etc/passwd" and
	// "name" both resolve to a single entry inside uploadDir.
	name := filepath.Base(r.PathValue("name"))
	if name == "." || name == "/" || strings.TrimSpace(name) == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	path := filepath.Join(d.uploadDir, name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	http.ServeFile(w, r, path)
}

func (d deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseMergeMode(raw string, fallback queue.MergeMode) queue.MergeMode {
	mode := queue.MergeMode(strings.ToLower(strings.TrimSpace(raw)))
	switch mode {
	case queue.MergeReplace, queue.MergeMix:
		return mode
	case "":
		if fallback != "" {
			return fallback
		}
		return queue.MergeReplace
	default:
		return queue.MergeReplace
	}
}

// parseTruthy matches §6's flag-parsing rule: truthy iff the string "true"
// (case-insensitive); any other non-empty value is falsy; empty falls back
// to the configured default.
func parseTruthy(raw string, fallback bool) bool {
	if raw == "" {
		return fallback
	}
	return strings.EqualFold(raw, "true")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
