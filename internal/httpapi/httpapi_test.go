package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hubenschmidt/dubline/internal/queue"
)

type fakeQueue struct {
	jobs       map[string]*queue.Job
	enqueueErr error
	lastData   queue.Data
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(map[string]*queue.Job)}
}

func (q *fakeQueue) Enqueue(ctx context.Context, name string, data queue.Data) (string, error) {
	if q.enqueueErr != nil {
		return "", q.enqueueErr
	}
	q.lastData = data
	id := "job-1"
	q.jobs[id] = &queue.Job{ID: id, Name: name, Data: data, State: queue.StateQueued}
	return id, nil
}

func (q *fakeQueue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error) {
	return nil, nil
}
func (q *fakeQueue) Heartbeat(ctx context.Context, id string) error             { return nil }
func (q *fakeQueue) UpdateProgress(ctx context.Context, id string, p int) error { return nil }
func (q *fakeQueue) Complete(ctx context.Context, id string, r queue.Result) error {
	return nil
}
func (q *fakeQueue) Fail(ctx context.Context, id string, reason string) error { return nil }

func (q *fakeQueue) Get(ctx context.Context, id string) (*queue.Job, error) {
	job, ok := q.jobs[id]
	if !ok {
		return nil, nil
	}
	return job, nil
}

func (q *fakeQueue) Depth(ctx context.Context) (int64, error)        { return int64(len(q.jobs)), nil }
func (q *fakeQueue) ReclaimExpired(ctx context.Context) (int, error) { return 0, nil }

func testServer(t *testing.T, q queue.Queue, uploadDir string) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(":0", q, uploadDir, queue.MergeReplace, false, false, logger)
	return srv.Handler
}

func multipartUpload(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write file content: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, w.FormDataContentType()
}

func TestHandleUpload_EnqueuesJobAndStoresFile(t *testing.T) {
	dir := t.TempDir()
	q := newFakeQueue()
	handler := testServer(t, q, dir)

	body, contentType := multipartUpload(t, map[string]string{
		"mergeMode":     "mix",
		"burnSubtitles": "true",
	}, "clip.mp4", []byte("fake video bytes"))

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["jobId"] == "" {
		t.Fatalf("expected non-empty jobId in %+v", resp)
	}
	if q.lastData.MergeMode != queue.MergeMix {
		t.Fatalf("mergeMode = %q, want mix", q.lastData.MergeMode)
	}
	if !q.lastData.BurnSubtitles {
		t.Fatal("expected burnSubtitles to be true")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read upload dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one uploaded file, got %d", len(entries))
	}
}

func TestHandleUpload_MissingFileField(t *testing.T) {
	dir := t.TempDir()
	q := newFakeQueue()
	handler := testServer(t, q, dir)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	_ = w.WriteField("mergeMode", "replace")
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleUpload_EnqueueFailureReturns500(t *testing.T) {
	dir := t.TempDir()
	q := newFakeQueue()
	q.enqueueErr = errors.New("redis down")
	handler := testServer(t, q, dir)

	body, contentType := multipartUpload(t, nil, "clip.mp4", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestHandleJob_FoundAndNotFound(t *testing.T) {
	dir := t.TempDir()
	q := newFakeQueue()
	q.jobs["job-1"] = &queue.Job{ID: "job-1", State: queue.StateCompleted, Progress: 100}
	handler := testServer(t, q, dir)

	req := httptest.NewRequest(http.MethodGet, "/job/job-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/job/does-not-exist", nil)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec2.Code)
	}
}

func TestHandleDownload_PathTraversalBlocked(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("hush"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	q := newFakeQueue()
	handler := testServer(t, q, dir)

	req := httptest.NewRequest(http.MethodGet, "/download/..%2F..%2Fetc%2Fpasswd", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatalf("path traversal should not serve a file, got 200 body=%q", rec.Body.String())
	}
}

func TestHandleDownload_ServesExistingFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "clip-dubbed.mp4"), []byte("video bytes"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	q := newFakeQueue()
	handler := testServer(t, q, dir)

	req := httptest.NewRequest(http.MethodGet, "/download/clip-dubbed.mp4", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "video bytes" {
		t.Fatalf("body = %q, want video bytes", rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	q := newFakeQueue()
	handler := testServer(t, q, t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestParseMergeMode(t *testing.T) {
	cases := []struct {
		raw      string
		fallback queue.MergeMode
		want     queue.MergeMode
	}{
		{"mix", queue.MergeReplace, queue.MergeMix},
		{"REPLACE", queue.MergeMix, queue.MergeReplace},
		{"", queue.MergeMix, queue.MergeMix},
		{"bogus", queue.MergeReplace, queue.MergeReplace},
	}
	for _, tc := range cases {
		if got := parseMergeMode(tc.raw, tc.fallback); got != tc.want {
			t.Errorf("parseMergeMode(%q, %q) = %q, want %q", tc.raw, tc.fallback, got, tc.want)
		}
	}
}

func TestParseTruthy(t *testing.T) {
	cases := []struct {
		raw      string
		fallback bool
		want     bool
	}{
		{"true", false, true},
		{"TRUE", false, true},
		{"false", true, false},
		{"", true, true},
		{"", false, false},
		{"garbage", true, false},
	}
	for _, tc := range cases {
		if got := parseTruthy(tc.raw, tc.fallback); got != tc.want {
			t.Errorf("parseTruthy(%q, %v) = %v, want %v", tc.raw, tc.fallback, got, tc.want)
		}
	}
}
