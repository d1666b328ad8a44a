package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const leaseTTL = 30 * time.Second

// RedisQueue is a Redis-backed Queue: a list holds queued job ids, a
// processing list + per-job lease key gives at-most-one execution with
// crash recovery, and a string key per job id holds the JSON-encoded job record.
type RedisQueue struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisQueue connects to Redis at the given URL (redis://host:port/db)
// and verifies the connection with a short-timeout ping.
func NewRedisQueue(redisURL string, logger *slog.Logger) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisQueue{client: client, logger: logger}, nil
}

func jobKey(id string) string        { return "dubline:job:" + id }
func leaseKey(id string) string      { return "dubline:lease:" + id }
func queueListKey(name string) string { return "dubline:queue:" + name }
func processingKey(name string) string { return "dubline:processing:" + name }

func (q *RedisQueue) Enqueue(ctx context.Context, name string, data Data) (string, error) {
	id := uuid.NewString()
	job := Job{ID: id, Name: name, Data: data, State: StateQueued, Progress: 0}

	if err := q.saveJob(ctx, job); err != nil {
		return "", err
	}
	if err := q.client.LPush(ctx, queueListKey(QueueName), id).Err(); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return id, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	id, err := q.client.BRPopLPush(ctx, queueListKey(queueName), processingKey(queueName), timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}

	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("dequeued id %s has no job record", id)
	}

	job.State = StateActive
	if err := q.saveJob(ctx, *job); err != nil {
		return nil, err
	}
	if err := q.client.Set(ctx, leaseKey(id), queueName, leaseTTL).Err(); err != nil {
		q.logger.Warn("failed to set lease, continuing best-effort", "job_id", id, "err", err)
	}

	return job, nil
}

func (q *RedisQueue) Heartbeat(ctx context.Context, id string) error {
	return q.client.Expire(ctx, leaseKey(id), leaseTTL).Err()
}

func (q *RedisQueue) UpdateProgress(ctx context.Context, id string, progress int) error {
	job, err := q.Get(ctx, id)
	if err != nil || job == nil {
		return err
	}
	job.Progress = progress
	return q.saveJob(ctx, *job)
}

func (q *RedisQueue) Complete(ctx context.Context, id string, result Result) error {
	job, err := q.Get(ctx, id)
	if err != nil || job == nil {
		return err
	}
	job.State = StateCompleted
	job.Progress = 100
	job.Result = result
	if err := q.saveJob(ctx, *job); err != nil {
		return err
	}
	return q.releaseLease(ctx, id)
}

func (q *RedisQueue) Fail(ctx context.Context, id string, reason string) error {
	job, err := q.Get(ctx, id)
	if err != nil || job == nil {
		return err
	}
	job.State = StateFailed
	job.Failure = reason
	if err := q.saveJob(ctx, *job); err != nil {
		return err
	}
	return q.releaseLease(ctx, id)
}

func (q *RedisQueue) releaseLease(ctx context.Context, id string) error {
	q.client.LRem(ctx, processingKey(QueueName), 1, id)
	q.client.Del(ctx, leaseKey(id))
	return nil
}

func (q *RedisQueue) Get(ctx context.Context, id string) (*Job, error) {
	raw, err := q.client.Get(ctx, jobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// ReclaimExpired scans the processing list for jobs whose lease key has
// expired and pushes them back onto the queue in the queued state, giving
// other workers at-most-one-but-eventually-retried execution after a crash.
func (q *RedisQueue) ReclaimExpired(ctx context.Context) (int, error) {
	ids, err := q.client.LRange(ctx, processingKey(QueueName), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("list processing jobs: %w", err)
	}

	reclaimed := 0
	for _, id := range ids {
		exists, err := q.client.Exists(ctx, leaseKey(id)).Result()
		if err != nil || exists > 0 {
			continue
		}

		job, err := q.Get(ctx, id)
		if err != nil || job == nil || job.State != StateActive {
			continue
		}

		job.State = StateQueued
		if err := q.saveJob(ctx, *job); err != nil {
			continue
		}
		q.client.LRem(ctx, processingKey(QueueName), 1, id)
		q.client.LPush(ctx, queueListKey(QueueName), id)
		reclaimed++
	}
	return reclaimed, nil
}

func (q *RedisQueue) saveJob(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := q.client.Set(ctx, jobKey(job.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Depth reports the number of jobs waiting in the queued list.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, queueListKey(QueueName)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

// Close releases the underlying Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
