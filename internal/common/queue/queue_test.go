// internal/common/queue/queue_test.go
package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gearbox-workers/internal/common/config"
	pipelineerrors "gearbox-workers/internal/common/errors"
)

func newTestQueue(t *testing.T, schema map[string]interface{}) (*Queue, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	q, err := New(rdb, "test-queue", schema)
	require.NoError(t, err)

	return q, mr
}

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		Enabled:      true,
		MaxAttempts:  3,
		BackoffMs:    5000,
		PollMs:       10,
		JobTimeoutMs: 5000,
	}
}

type payload struct {
	CaseID string `json:"caseId"`
}

func TestEnqueueIsIdempotentPerJobID(t *testing.T) {
	q, _ := newTestQueue(t, nil)
	ctx := context.Background()

	err := q.Enqueue(ctx, "case:abc", payload{CaseID: "abc"})
	require.NoError(t, err)

	err = q.Enqueue(ctx, "case:abc", payload{CaseID: "abc"})
	assert.ErrorIs(t, err, ErrDuplicateJob)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestEnqueueRejectsInvalidPayload(t *testing.T) {
	schema := map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"caseId"},
		"properties": map[string]interface{}{
			"caseId": map[string]interface{}{"type": "string", "minLength": 1},
		},
	}
	q, _ := newTestQueue(t, schema)

	err := q.Enqueue(context.Background(), "case:bad", map[string]interface{}{"other": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}

func TestEnqueueAllowedAgainAfterCompletion(t *testing.T) {
	q, _ := newTestQueue(t, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "case:abc", payload{CaseID: "abc"}))

	id, err := q.pop(ctx)
	require.NoError(t, err)
	require.NoError(t, q.complete(ctx, id))

	// Once the job is done its guard is released.
	assert.NoError(t, q.Enqueue(ctx, "case:abc", payload{CaseID: "abc"}))
}

func TestEnqueueSurfacesRedisFailure(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	t.Cleanup(func() { rdb.Close() })

	q, err := New(rdb, "test-queue", nil)
	require.NoError(t, err)

	mock.ExpectHSetNX("queue:test-queue:job:case:abc", "payload", `{"caseId":"abc"}`).
		SetErr(errors.New("connection refused"))

	err = q.Enqueue(context.Background(), "case:abc", payload{CaseID: "abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCrashedDeliveryIsRecoveredNotLost(t *testing.T) {
	q, _ := newTestQueue(t, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "case:crash", payload{CaseID: "crash"}))

	// A worker takes the job and dies before settling it.
	id, err := q.pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "case:crash", id)

	// The guard still holds and the job is not handed out twice.
	assert.ErrorIs(t, q.Enqueue(ctx, "case:crash", payload{CaseID: "crash"}), ErrDuplicateJob)
	_, err = q.pop(ctx)
	assert.Equal(t, redis.Nil, err)

	moved, err := q.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	// After recovery the job is deliverable and completable again.
	id, err = q.pop(ctx)
	require.NoError(t, err)
	require.NoError(t, q.complete(ctx, id))
	assert.NoError(t, q.Enqueue(ctx, "case:crash", payload{CaseID: "crash"}))
}

type recordingHandler struct {
	calls   int
	fail    int
	failErr error
}

func (h *recordingHandler) Handle(ctx context.Context, job *Job) error {
	h.calls++
	if h.calls <= h.fail {
		return h.failErr
	}
	return nil
}

func TestWorkerCompletesJob(t *testing.T) {
	q, _ := newTestQueue(t, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "case:ok", payload{CaseID: "ok"}))

	h := &recordingHandler{}
	w := NewWorker(q, h, testQueueConfig(), zaptest.NewLogger(t), nil)

	w.drain(ctx)

	assert.Equal(t, 1, h.calls)
	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}

type countingHandler struct {
	calls atomic.Int32
}

func (h *countingHandler) Handle(context.Context, *Job) error {
	h.calls.Add(1)
	return nil
}

func TestWorkerStartRecoversAbandonedJobs(t *testing.T) {
	q, _ := newTestQueue(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Enqueue(ctx, "case:orphan", payload{CaseID: "orphan"}))
	_, err := q.pop(ctx)
	require.NoError(t, err)

	// A fresh worker on the same queue picks the orphan back up.
	h := &countingHandler{}
	w := NewWorker(q, h, testQueueConfig(), zaptest.NewLogger(t), nil)
	go w.Start(ctx)

	require.Eventually(t, func() bool { return h.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	w.Stop(context.Background())

	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}

func TestWorkerRetriesWithBackoff(t *testing.T) {
	q, _ := newTestQueue(t, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "case:flaky", payload{CaseID: "flaky"}))

	h := &recordingHandler{
		fail:    1,
		failErr: pipelineerrors.NewDatabaseError("insert", errors.New("connection reset")),
	}
	w := NewWorker(q, h, testQueueConfig(), zaptest.NewLogger(t), nil)

	w.drain(ctx)
	assert.Equal(t, 1, h.calls)

	// The job sits on the delayed zset until its backoff elapses.
	w.drain(ctx)
	assert.Equal(t, 1, h.calls)

	require.NoError(t, q.promoteDelayed(ctx, time.Now().Add(time.Minute)))
	w.drain(ctx)
	assert.Equal(t, 2, h.calls)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}

func TestWorkerInvokesTerminalCallbackOnNonRetryableError(t *testing.T) {
	q, _ := newTestQueue(t, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "case:notfound", payload{CaseID: "notfound"}))

	h := &recordingHandler{
		fail:    10,
		failErr: pipelineerrors.NewNotFoundError("VIN", "JTDBT923771012345"),
	}

	var terminalJob *Job
	var terminalErr error
	w := NewWorker(q, h, testQueueConfig(), zaptest.NewLogger(t), func(_ context.Context, job *Job, err error) {
		terminalJob = job
		terminalErr = err
	})

	w.drain(ctx)

	assert.Equal(t, 1, h.calls, "NOT_FOUND must not retry")
	require.NotNil(t, terminalJob)
	assert.Equal(t, "case:notfound", terminalJob.ID)
	assert.Equal(t, pipelineerrors.ErrCodeNotFound, pipelineerrors.CodeOf(terminalErr))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}

func TestWorkerExhaustsRetriesThenCallsTerminal(t *testing.T) {
	q, _ := newTestQueue(t, nil)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "case:broken", payload{CaseID: "broken"}))

	h := &recordingHandler{
		fail:    10,
		failErr: pipelineerrors.NewDatabaseError("insert", errors.New("down")),
	}

	terminal := 0
	w := NewWorker(q, h, testQueueConfig(), zaptest.NewLogger(t), func(_ context.Context, _ *Job, _ error) {
		terminal++
	})

	for i := 0; i < 3; i++ {
		w.drain(ctx)
		require.NoError(t, q.promoteDelayed(ctx, time.Now().Add(time.Hour)))
	}

	assert.Equal(t, 3, h.calls)
	assert.Equal(t, 1, terminal)
}
