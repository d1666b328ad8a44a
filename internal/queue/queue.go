// Package queue implements the durable job queue and record types the
// worker and HTTP boundary share: a single logical queue ("media-jobs") of
// "process-video" jobs, at-most-one execution via a lease, and progress/
// result storage readable by job id.
package queue

import (
	"context"
	"time"
)

// JobName is the only job name the worker accepts.
const JobName = "process-video"

// QueueName is the single logical queue this module uses.
const QueueName = "media-jobs"

// State is the job's lifecycle state.
type State string

const (
	StateQueued    State = "queued"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// MergeMode selects how the dub audio is combined with the source video.
type MergeMode string

const (
	MergeReplace MergeMode = "replace"
	MergeMix     MergeMode = "mix"
)

// Data is the submission payload for a process-video job.
type Data struct {
	SourcePath       string    `json:"sourcePath"`
	OriginalFilename string    `json:"originalFilename"`
	MergeMode        MergeMode `json:"mergeMode,omitempty"`
	BurnSubtitles    bool      `json:"burnSubtitles"`
	Enhance          bool      `json:"enhance"`
}

// Result maps artifact kind to its filesystem path; populated iff the job completed.
type Result map[string]string

// Job is the durable, queue-resident job record.
type Job struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Data     Data   `json:"data"`
	State    State  `json:"state"`
	Progress int    `json:"progress"`
	Result   Result `json:"result,omitempty"`
	Failure  string `json:"failure,omitempty"`
}

// Queue is the contract the worker and HTTP boundary depend on. Any
// implementation satisfying durability, at-most-one execution via lease, and
// progress/result storage is acceptable; this module ships a Redis-backed one.
type Queue interface {
	// Enqueue durably records a new job in the queued state and returns its id.
	Enqueue(ctx context.Context, name string, data Data) (string, error)

	// Dequeue blocks up to timeout for the next queued job, moving it to the
	// active state and acquiring a lease. Returns nil, nil on timeout with no job.
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error)

	// Heartbeat renews the lease for an in-flight job.
	Heartbeat(ctx context.Context, id string) error

	// UpdateProgress best-effort updates a job's progress; callers must not
	// treat a failed update as a pipeline failure.
	UpdateProgress(ctx context.Context, id string, progress int) error

	// Complete marks a job completed with its result artifact mapping.
	Complete(ctx context.Context, id string, result Result) error

	// Fail marks a job failed with the given reason.
	Fail(ctx context.Context, id string, reason string) error

	// Get reads back a job's current record by id.
	Get(ctx context.Context, id string) (*Job, error)

	// Depth reports the number of jobs currently queued, not yet dequeued.
	Depth(ctx context.Context) (int64, error)

	// ReclaimExpired returns queued jobs whose lease expired while active,
	// releasing them back to the queue. Workers call this periodically so a
	// crashed worker's jobs become visible to other workers again.
	ReclaimExpired(ctx context.Context) (int, error)
}
