// Package worker drains the durable job queue and invokes the pipeline
// engine for each "process-video" job, reporting progress back to the
// queue and recording a recovered panic as a failed job rather than
// crashing the process.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hubenschmidt/dubline/internal/metrics"
	"github.com/hubenschmidt/dubline/internal/pipeline"
	"github.com/hubenschmidt/dubline/internal/queue"
)

// pollInterval is how long Dequeue blocks waiting for a job before the
// worker loop checks ctx for cancellation and tries again.
const pollInterval = 5 * time.Second

// heartbeatInterval renews an in-flight job's lease while it is processing.
const heartbeatInterval = 10 * time.Second

// reclaimInterval is how often a worker sweeps for crashed peers' expired leases.
const reclaimInterval = 30 * time.Second

// Worker consumes jobs from Queue and drives them through Engine.
type Worker struct {
	Queue  queue.Queue
	Engine *pipeline.Engine
	Logger *slog.Logger

	// Defaults applied when a job's data does not override them. BurnSubtitles
	// and Enhance have no entry here: httpapi.parseTruthy already folds the
	// server's env default into job.Data at submission time, so those two
	// fields on the job record are final decisions, not unset sentinels.
	DefaultASRProvider       string
	DefaultASRLanguage       string
	DefaultASRTimestamps     bool
	DefaultTranslateProvider string
	DefaultTranslateTarget   string
	DefaultTTSProvider       string
	DefaultMergeMode         queue.MergeMode
}

// Run launches Concurrency dequeue-loop goroutines against the same queue
// and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}

	done := make(chan struct{})
	for i := 0; i < concurrency; i++ {
		go w.loop(ctx, i, done)
	}

	go w.reclaimLoop(ctx)

	for i := 0; i < concurrency; i++ {
		<-done
	}
}

func (w *Worker) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(reclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.Queue.ReclaimExpired(ctx); err != nil {
				w.Logger.Warn("reclaim expired jobs failed", "err", err)
			} else if n > 0 {
				w.Logger.Info("reclaimed expired jobs", "count", n)
			}
			if depth, err := w.Queue.Depth(ctx); err == nil {
				metrics.QueueDepth.Set(float64(depth))
			}
		}
	}
}

func (w *Worker) loop(ctx context.Context, workerIdx int, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.Queue.Dequeue(ctx, queue.QueueName, pollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Logger.Error("dequeue failed", "worker", workerIdx, "err", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		if job.Name != queue.JobName {
			w.Logger.Error("rejecting unknown job name", "job_id", job.ID, "name", job.Name)
			if err := w.Queue.Fail(ctx, job.ID, fmt.Sprintf("unknown job name %q", job.Name)); err != nil {
				w.Logger.Warn("mark unknown job failed: write failed", "job_id", job.ID, "err", err)
			}
			continue
		}

		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *queue.Job) {
	hbCtx, cancelHB := context.WithCancel(ctx)
	defer cancelHB()
	go w.heartbeat(hbCtx, job.ID)

	metrics.JobsActive.Inc()
	defer metrics.JobsActive.Dec()

	result, err := w.runWithRecover(ctx, job)
	if err != nil {
		w.Logger.Error("job failed", "job_id", job.ID, "err", err)
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		if ferr := w.Queue.Fail(ctx, job.ID, err.Error()); ferr != nil {
			w.Logger.Error("mark job failed: write failed", "job_id", job.ID, "err", ferr)
		}
		return
	}

	metrics.JobsTotal.WithLabelValues("completed").Inc()
	if cerr := w.Queue.Complete(ctx, job.ID, result); cerr != nil {
		w.Logger.Error("mark job completed: write failed", "job_id", job.ID, "err", cerr)
	}
}

// runWithRecover invokes the pipeline engine, converting a panicking stage
// into a failed job instead of crashing the worker process.
func (w *Worker) runWithRecover(ctx context.Context, job *queue.Job) (result queue.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	params := w.paramsFor(job)
	report := func(percent int) {
		// Progress writes are advisory: a failed write is logged and
		// swallowed, never propagated into the pipeline. They run in order on
		// the job's own goroutine, so the stored progress never goes backwards
		// and no late write can overwrite the record after Complete.
		if uerr := w.Queue.UpdateProgress(context.Background(), job.ID, percent); uerr != nil {
			w.Logger.Debug("progress update failed", "job_id", job.ID, "err", uerr)
		}
	}

	return w.Engine.Run(ctx, params, report)
}

func (w *Worker) paramsFor(job *queue.Job) pipeline.Params {
	mergeMode := job.Data.MergeMode
	if mergeMode == "" {
		mergeMode = w.DefaultMergeMode
	}

	return pipeline.Params{
		JobID:             job.ID,
		SourcePath:        job.Data.SourcePath,
		OriginalFilename:  job.Data.OriginalFilename,
		MergeMode:         mergeMode,
		BurnSubtitles:     job.Data.BurnSubtitles,
		Enhance:           job.Data.Enhance,
		ASRProvider:       w.DefaultASRProvider,
		ASRLanguage:       w.DefaultASRLanguage,
		ASRTimestamps:     w.DefaultASRTimestamps,
		TranslateProvider: w.DefaultTranslateProvider,
		TranslateTarget:   w.DefaultTranslateTarget,
		TTSProvider:       w.DefaultTTSProvider,
	}
}

func (w *Worker) heartbeat(ctx context.Context, jobID string) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Queue.Heartbeat(ctx, jobID); err != nil {
				w.Logger.Debug("heartbeat failed", "job_id", jobID, "err", err)
			}
		}
	}
}
