// internal/common/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xeipuuv/gojsonschema"
)

// ErrDuplicateJob is returned when a job with the same ID is already
// pending or running. Enqueue is idempotent per job ID.
var ErrDuplicateJob = errors.New("queue: job with this id already enqueued")

// Job is a unit of work pulled from a queue.
type Job struct {
	ID      string          `json:"id"`
	Queue   string          `json:"queue"`
	Payload json.RawMessage `json:"payload"`
	Attempt int             `json:"attempt"`
}

// Bind unmarshals the job payload into v.
func (j *Job) Bind(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

// Queue is a durable Redis-backed job queue. Jobs are keyed by a
// caller-chosen deterministic ID so re-enqueueing the same work is a no-op
// while the original job is still pending or running.
//
// Layout per queue name:
//
//	queue:{name}:job:{id}    job hash, acts as the idempotency guard
//	queue:{name}:ready       list of job IDs ready to run
//	queue:{name}:processing  list of job IDs currently being handled
//	queue:{name}:delayed     zset of job IDs scored by ready-at unix ms
//
// pop moves a job ID from ready to processing instead of removing it, so
// a worker crash mid-job leaves the ID on the processing list where
// Recover can put it back on ready.
type Queue struct {
	rdb    *redis.Client
	name   string
	schema *gojsonschema.Schema
}

// New creates a queue handle. schemaDoc, when non-nil, is compiled and
// every enqueued payload is validated against it.
func New(rdb *redis.Client, name string, schemaDoc map[string]interface{}) (*Queue, error) {
	q := &Queue{rdb: rdb, name: name}

	if schemaDoc != nil {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaDoc))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema for queue %s: %w", name, err)
		}
		q.schema = schema
	}

	return q, nil
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) jobKey(id string) string {
	return fmt.Sprintf("queue:%s:job:%s", q.name, id)
}

func (q *Queue) readyKey() string {
	return fmt.Sprintf("queue:%s:ready", q.name)
}

func (q *Queue) processingKey() string {
	return fmt.Sprintf("queue:%s:processing", q.name)
}

func (q *Queue) delayedKey() string {
	return fmt.Sprintf("queue:%s:delayed", q.name)
}

// Enqueue stores the job and pushes it onto the ready list. Returns
// ErrDuplicateJob when a job with the same ID already exists.
func (q *Queue) Enqueue(ctx context.Context, jobID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	if q.schema != nil {
		result, err := q.schema.Validate(gojsonschema.NewBytesLoader(body))
		if err != nil {
			return fmt.Errorf("failed to validate job payload: %w", err)
		}
		if !result.Valid() {
			return fmt.Errorf("job payload rejected by schema: %v", result.Errors())
		}
	}

	// The job hash is the idempotency guard. HSetNX on the payload field
	// loses the race cleanly when two producers enqueue the same case.
	created, err := q.rdb.HSetNX(ctx, q.jobKey(jobID), "payload", string(body)).Result()
	if err != nil {
		return fmt.Errorf("failed to store job %s: %w", jobID, err)
	}
	if !created {
		return ErrDuplicateJob
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.jobKey(jobID),
		"attempts", 0,
		"enqueued_at", time.Now().UnixMilli(),
	)
	pipe.LPush(ctx, q.readyKey(), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}

	return nil
}

// promoteDelayed moves jobs whose ready-at time has passed from the
// delayed zset back onto the ready list.
func (q *Queue) promoteDelayed(ctx context.Context, now time.Time) error {
	ids, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, q.delayedKey(), id)
		pipe.LPush(ctx, q.readyKey(), id)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}

	return nil
}

// pop takes the next ready job ID, parking it on the processing list until
// the job is settled. Returns redis.Nil when nothing is ready.
func (q *Queue) pop(ctx context.Context) (string, error) {
	return q.rdb.LMove(ctx, q.readyKey(), q.processingKey(), "RIGHT", "LEFT").Result()
}

// load reads the stored job state for a popped ID.
func (q *Queue) load(ctx context.Context, jobID string) (*Job, error) {
	vals, err := q.rdb.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("job %s has no stored state", jobID)
	}

	job := &Job{
		ID:      jobID,
		Queue:   q.name,
		Payload: json.RawMessage(vals["payload"]),
	}
	fmt.Sscanf(vals["attempts"], "%d", &job.Attempt)

	return job, nil
}

// complete removes the job state, releasing the idempotency guard.
func (q *Queue) complete(ctx context.Context, jobID string) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, jobID)
	pipe.Del(ctx, q.jobKey(jobID))
	_, err := pipe.Exec(ctx)
	return err
}

// discard drops a popped job ID without touching its hash, for IDs whose
// stored state is gone or unreadable.
func (q *Queue) discard(ctx context.Context, jobID string) error {
	return q.rdb.LRem(ctx, q.processingKey(), 1, jobID).Err()
}

// Recover moves job IDs abandoned on the processing list by a crashed
// worker back onto the ready list, returning how many were moved.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		_, err := q.rdb.LMove(ctx, q.processingKey(), q.readyKey(), "RIGHT", "LEFT").Result()
		if err == redis.Nil {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

// retryLater bumps the attempt counter and schedules the job on the
// delayed zset.
func (q *Queue) retryLater(ctx context.Context, jobID string, attempt int, readyAt time.Time) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.processingKey(), 1, jobID)
	pipe.HSet(ctx, q.jobKey(jobID), "attempts", attempt)
	pipe.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: jobID,
	})
	_, err := pipe.Exec(ctx)
	return err
}

// Depth reports ready plus delayed job counts, for diagnostics.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	ready, err := q.rdb.LLen(ctx, q.readyKey()).Result()
	if err != nil {
		return 0, err
	}
	delayed, err := q.rdb.ZCard(ctx, q.delayedKey()).Result()
	if err != nil {
		return 0, err
	}
	return ready + delayed, nil
}
