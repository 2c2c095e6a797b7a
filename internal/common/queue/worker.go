// internal/common/queue/worker.go
package queue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gearbox-workers/internal/common/config"
	pipelineerrors "gearbox-workers/internal/common/errors"
	"gearbox-workers/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

// Handler processes one job. A nil return acknowledges the job; an error
// triggers the retry policy.
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

// TerminalFunc is invoked once when a job fails permanently, either
// because retries are exhausted or the error is not retryable.
type TerminalFunc func(ctx context.Context, job *Job, err error)

// Worker polls a single queue and processes jobs one at a time. Jobs for
// the same case must never interleave, so concurrency stays at one per
// queue; scale-out happens by running more queues, not more goroutines.
type Worker struct {
	queue      *Queue
	handler    Handler
	logger     *zap.Logger
	cfg        config.QueueConfig
	onTerminal TerminalFunc
	stopped    chan struct{}
}

func NewWorker(q *Queue, handler Handler, cfg config.QueueConfig, logger *zap.Logger, onTerminal TerminalFunc) *Worker {
	return &Worker{
		queue:      q,
		handler:    handler,
		logger:     logger,
		cfg:        cfg,
		onTerminal: onTerminal,
		stopped:    make(chan struct{}),
	}
}

// Start runs the poll loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.stopped)

	w.logger.Info("worker started", zap.String("queue", w.queue.Name()))

	// Jobs from a previous run that died mid-flight go back on the ready
	// list before polling begins.
	if moved, err := w.queue.Recover(ctx); err != nil {
		w.logger.Error("failed to recover in-flight jobs",
			zap.String("queue", w.queue.Name()), zap.Error(err))
	} else if moved > 0 {
		w.logger.Warn("recovered jobs abandoned by a previous run",
			zap.String("queue", w.queue.Name()), zap.Int("jobs", moved))
	}

	poll := time.NewTicker(time.Duration(w.cfg.PollMs) * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping", zap.String("queue", w.queue.Name()))
			return
		case <-poll.C:
			w.drain(ctx)
		}
	}
}

// Stop blocks until the poll loop has exited.
func (w *Worker) Stop(ctx context.Context) {
	select {
	case <-w.stopped:
	case <-ctx.Done():
	}
}

// drain processes all currently ready jobs before going back to sleep.
func (w *Worker) drain(ctx context.Context) {
	if err := w.queue.promoteDelayed(ctx, time.Now()); err != nil {
		w.logger.Error("failed to promote delayed jobs",
			zap.String("queue", w.queue.Name()), zap.Error(err))
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		jobID, err := w.queue.pop(ctx)
		if err == redis.Nil {
			return
		}
		if err != nil {
			w.logger.Error("failed to pop job",
				zap.String("queue", w.queue.Name()), zap.Error(err))
			return
		}

		job, err := w.queue.load(ctx, jobID)
		if err != nil {
			w.logger.Error("failed to load job state",
				zap.String("queue", w.queue.Name()),
				zap.String("jobId", jobID),
				zap.Error(err))
			// No stored state means nothing to retry; drop the orphaned ID
			// so recovery does not resurrect it.
			if dErr := w.queue.discard(ctx, jobID); dErr != nil {
				w.logger.Error("failed to discard orphaned job id",
					zap.String("queue", w.queue.Name()),
					zap.String("jobId", jobID),
					zap.Error(dErr))
			}
			continue
		}

		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	metrics.QueueJobsActive.WithLabelValues(w.queue.Name()).Inc()
	defer metrics.QueueJobsActive.WithLabelValues(w.queue.Name()).Dec()

	start := time.Now()

	jobCtx, cancel := context.WithTimeout(ctx, time.Duration(w.cfg.JobTimeoutMs)*time.Millisecond)
	err := w.handler.Handle(jobCtx, job)
	cancel()

	metrics.QueueJobDuration.WithLabelValues(w.queue.Name()).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.QueueJobsCompleted.WithLabelValues(w.queue.Name()).Inc()
		if cErr := w.queue.complete(ctx, job.ID); cErr != nil {
			w.logger.Error("failed to ack completed job",
				zap.String("queue", w.queue.Name()),
				zap.String("jobId", job.ID),
				zap.Error(cErr))
		}
		return
	}

	code := pipelineerrors.CodeOf(err)
	metrics.QueueJobsFailed.WithLabelValues(w.queue.Name(), string(code)).Inc()

	// Coded errors may carry a tighter retry budget than the queue default,
	// e.g. timeouts stop one attempt earlier than database failures.
	maxAttempts := w.cfg.MaxAttempts
	if code != "" {
		if budget := pipelineerrors.GetRetryCount(code) + 1; budget < maxAttempts {
			maxAttempts = budget
		}
	}

	attempt := job.Attempt + 1
	if attempt < maxAttempts && pipelineerrors.IsRetryable(err) {
		// Exponential backoff on the configured base: base, 2x, 4x, ...
		delay := time.Duration(w.cfg.BackoffMs) * time.Millisecond << (attempt - 1)
		readyAt := time.Now().Add(delay)

		w.logger.Warn("job failed, scheduling retry",
			zap.String("queue", w.queue.Name()),
			zap.String("jobId", job.ID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		metrics.QueueJobsRetried.WithLabelValues(w.queue.Name()).Inc()

		if rErr := w.queue.retryLater(ctx, job.ID, attempt, readyAt); rErr != nil {
			w.logger.Error("failed to schedule retry",
				zap.String("queue", w.queue.Name()),
				zap.String("jobId", job.ID),
				zap.Error(rErr))
		}
		return
	}

	w.logger.Error("job failed permanently",
		zap.String("queue", w.queue.Name()),
		zap.String("jobId", job.ID),
		zap.Int("attempt", attempt),
		zap.String("errorCode", string(code)),
		zap.String("category", pipelineerrors.GetErrorCategory(code)),
		zap.Error(err))

	if w.onTerminal != nil {
		w.onTerminal(ctx, job, err)
	}

	if cErr := w.queue.complete(ctx, job.ID); cErr != nil {
		w.logger.Error("failed to remove failed job",
			zap.String("queue", w.queue.Name()),
			zap.String("jobId", job.ID),
			zap.Error(cErr))
	}
}
