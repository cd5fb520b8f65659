package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/workitems/internal/queue"
	"github.com/notifyhub/workitems/internal/repository"
)

// RetryWorker polls the database for jobs whose next attempt is due and
// puts them back on the queue.
//
// Retry times are persisted, not held in memory, so they survive restarts.
type RetryWorker struct {
	jobs      repository.JobRepository
	q         queue.Queue
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
}

func NewRetryWorker(
	jobs repository.JobRepository,
	q queue.Queue,
	interval time.Duration,
	batchSize int,
	logger *zap.Logger,
) *RetryWorker {
	return &RetryWorker{jobs: jobs, q: q, interval: interval, batchSize: batchSize, logger: logger, now: time.Now}
}

// Run ticks every interval and re-enqueues any due retries.
// Stops cleanly when ctx is cancelled.
func (rw *RetryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	rw.logger.Info("retry worker started", zap.Duration("interval", rw.interval))

	for {
		select {
		case <-ctx.Done():
			rw.logger.Info("retry worker stopping")
			return
		case <-ticker.C:
			rw.Poll(ctx)
		}
	}
}

// Poll claims one batch of due retries. A claimed job that the queue
// refuses is written back with a due time of now.
func (rw *RetryWorker) Poll(ctx context.Context) int {
	now := rw.now().UTC()
	jobs, err := rw.jobs.ClaimDueRetries(ctx, now, rw.batchSize)
	if err != nil {
		rw.logger.Error("retry poll error", zap.Error(err))
		return 0
	}

	requeued := 0
	for _, job := range jobs {
		if err := rw.q.Enqueue(ctx, job); err != nil {
			rw.logger.Warn("could not re-enqueue retry",
				zap.String("job_id", job.ID), zap.Error(err))
			if err := rw.jobs.ScheduleRetry(ctx, job, now, err.Error()); err != nil {
				rw.logger.Error("lost retry: could not put it back",
					zap.String("job_id", job.ID), zap.Error(err))
			}
			continue
		}
		requeued++
	}

	if requeued > 0 {
		rw.logger.Info("re-enqueued due retries", zap.Int("count", requeued))
	}
	return requeued
}
