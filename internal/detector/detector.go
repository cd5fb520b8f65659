// Package detector turns committed work item writes into status change
// notifications.
package detector

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/notifyhub/workitems/internal/domain"
	"github.com/notifyhub/workitems/internal/queue"
)

// Detect compares the status read before a write with the status the write
// committed. It reports an event only when a prior row existed and the two
// differ; creations never produce one.
func Detect(res domain.WriteResult, now time.Time) (domain.StatusChangeEvent, bool) {
	if !res.Existed || res.Prior == res.Current {
		return domain.StatusChangeEvent{}, false
	}
	return domain.StatusChangeEvent{
		Kind:       res.Kind,
		EntityID:   res.ID,
		Previous:   res.Prior,
		New:        res.Current,
		DetectedAt: now,
	}, true
}

// Hooks carries the metric callbacks injected by main. Nil fields are no-ops.
type Hooks struct {
	OnDetected func(kind domain.Kind)
	OnEnqueued func(kind domain.Kind)
	OnDropped  func(kind domain.Kind)
}

// Detector runs Detect on every write result and hands detected changes to
// the notification queue. Queue trouble never reaches the caller: a job
// that cannot be enqueued within the timeout is logged and dropped.
type Detector struct {
	q       queue.Queue
	timeout time.Duration
	logger  *zap.Logger
	hooks   Hooks
	seq     atomic.Int64
	now     func() time.Time
}

func New(q queue.Queue, enqueueTimeout time.Duration, logger *zap.Logger, hooks Hooks) *Detector {
	if hooks.OnDetected == nil {
		hooks.OnDetected = func(domain.Kind) {}
	}
	if hooks.OnEnqueued == nil {
		hooks.OnEnqueued = func(domain.Kind) {}
	}
	if hooks.OnDropped == nil {
		hooks.OnDropped = func(domain.Kind) {}
	}
	return &Detector{
		q:       q,
		timeout: enqueueTimeout,
		logger:  logger,
		hooks:   hooks,
		now:     time.Now,
	}
}

// Observe is called after every committed write. It reports whether a
// status change was detected; whether the job was actually enqueued is
// only visible in logs and metrics.
func (d *Detector) Observe(ctx context.Context, res domain.WriteResult) bool {
	event, changed := Detect(res, d.now().UTC())
	if !changed {
		return false
	}
	d.hooks.OnDetected(event.Kind)

	job := d.NewJob(domain.ReasonStatusChanged, event, res.Priority)
	d.Publish(ctx, job)
	return true
}

// NewJob stamps an event with a fresh job id and the next sequence number.
func (d *Detector) NewJob(reason domain.Reason, event domain.StatusChangeEvent, priority domain.Priority) domain.NotificationJob {
	return domain.NotificationJob{
		ID:         ulid.Make().String(),
		Seq:        d.seq.Add(1),
		Reason:     reason,
		Kind:       event.Kind,
		EntityID:   event.EntityID,
		Previous:   event.Previous,
		New:        event.New,
		Priority:   priority,
		DetectedAt: event.DetectedAt,
	}
}

// Publish enqueues job with a bounded wait. The wait ignores cancellation
// of ctx so a committed write still notifies after its client disconnects.
func (d *Detector) Publish(ctx context.Context, job domain.NotificationJob) bool {
	enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	log := d.logger.With(
		zap.String("job_id", job.ID),
		zap.Int64("seq", job.Seq),
		zap.String("kind", string(job.Kind)),
		zap.String("entity_id", job.EntityID),
	)

	if err := d.q.Enqueue(enqueueCtx, job); err != nil {
		d.hooks.OnDropped(job.Kind)
		log.Warn("notification dropped: queue unavailable",
			zap.String("reason", string(job.Reason)),
			zap.Error(err))
		return false
	}

	d.hooks.OnEnqueued(job.Kind)
	log.Debug("notification enqueued",
		zap.String("previous", string(job.Previous)),
		zap.String("new", string(job.New)))
	return true
}
