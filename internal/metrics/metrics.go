// Package metrics exposes the Prometheus instrumentation shared by the
// pipeline engine, provider adapters, and HTTP boundary.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration records wall-clock latency per pipeline stage
	// (extract/enhance/transcribe/translate/synthesize/merge).
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"stage"})

	// Errors counts stage failures labeled by stage and severity ("fatal"
	// or "tolerated"), per the per-stage fallback policy.
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_errors_total",
		Help: "Stage error counts by stage and severity",
	}, []string{"stage", "severity"})

	// JobsActive gauges the number of jobs currently being processed by
	// this worker process.
	JobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dubline_jobs_active",
		Help: "Jobs currently being processed by this worker",
	})

	// JobsTotal counts completed jobs labeled by terminal state.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dubline_jobs_total",
		Help: "Total jobs processed by terminal state",
	}, []string{"state"})

	// QueueDepth gauges the number of jobs waiting in the durable queue,
	// sampled periodically by the worker's reclaim loop.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dubline_queue_depth",
		Help: "Jobs currently queued, not yet dequeued",
	})
)
