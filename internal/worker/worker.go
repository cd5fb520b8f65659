package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/notifyhub/workitems/internal/domain"
	"github.com/notifyhub/workitems/internal/mailer"
	"github.com/notifyhub/workitems/internal/queue"
	"github.com/notifyhub/workitems/internal/ratelimiter"
	"github.com/notifyhub/workitems/internal/repository"
)

// MetricHooks carries the metric callback functions injected by main.
// Nil fields are no-ops.
type MetricHooks struct {
	OnSent         func(kind domain.Kind, latency time.Duration)
	OnFailed       func(kind domain.Kind)
	OnDeadLettered func(kind domain.Kind)
}

func (h MetricHooks) withDefaults() MetricHooks {
	if h.OnSent == nil {
		h.OnSent = func(domain.Kind, time.Duration) {}
	}
	if h.OnFailed == nil {
		h.OnFailed = func(domain.Kind) {}
	}
	if h.OnDeadLettered == nil {
		h.OnDeadLettered = func(domain.Kind) {}
	}
	return h
}

// RecipientResolver computes the current addresses for an item.
type RecipientResolver interface {
	Resolve(ctx context.Context, item *domain.WorkItem) ([]string, error)
}

// Deps groups the collaborators every worker shares.
type Deps struct {
	Queue     queue.Queue
	Items     repository.WorkItemRepository
	Jobs      repository.JobRepository
	Resolver  RecipientResolver
	Transport mailer.Transport
	Limiter   *ratelimiter.KindLimiters
}

// Settings controls delivery. Attempt n (0-based) that fails is retried
// after Backoff[n], clamped to the last entry; the attempt that reaches
// MaxAttempts goes to the dead-letter store instead.
type Settings struct {
	MaxAttempts int
	Backoff     []time.Duration
	MailTimeout time.Duration
}

// Worker is a single goroutine that pulls jobs from the queue, resolves
// recipients against current state and hands the message to the transport.
// A failed delivery never blocks the worker: it is persisted for a later
// retry and the worker moves on.
type Worker struct {
	id       int
	deps     Deps
	settings Settings
	logger   *zap.Logger
	hooks    MetricHooks
	now      func() time.Time
}

func NewWorker(id int, deps Deps, settings Settings, logger *zap.Logger, hooks MetricHooks) *Worker {
	if settings.MaxAttempts < 1 {
		settings.MaxAttempts = 1
	}
	if len(settings.Backoff) == 0 {
		settings.Backoff = []time.Duration{0}
	}
	return &Worker{
		id:       id,
		deps:     deps,
		settings: settings,
		logger:   logger,
		hooks:    hooks.withDefaults(),
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled, processing one job per iteration.
// A job already dequeued runs to completion after cancellation; every
// blocking step inside it is bounded.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started", zap.Int("id", w.id))
	for {
		d, ok := w.deps.Queue.Dequeue(ctx)
		if !ok {
			w.logger.Info("worker stopping", zap.Int("id", w.id))
			return
		}
		w.Handle(context.WithoutCancel(ctx), d)
	}
}

// Handle processes one delivery. A panic is contained to the job that
// caused it: the job is logged as malformed and acknowledged.
func (w *Worker) Handle(ctx context.Context, d queue.Delivery) {
	var pc panics.Catcher
	pc.Try(func() { w.process(ctx, d) })
	if r := pc.Recovered(); r != nil {
		w.logger.Error("job panicked; discarding",
			zap.String("job_id", d.Job.ID),
			zap.Error(fmt.Errorf("%w: %v", domain.ErrMalformedJob, r.AsError())),
			zap.ByteString("stack", r.Stack))
		w.ack(ctx, d, w.logger)
	}
}

func (w *Worker) process(ctx context.Context, d queue.Delivery) {
	start := time.Now()
	job := d.Job
	log := w.logger.With(
		zap.String("job_id", job.ID),
		zap.Int64("seq", job.Seq),
		zap.String("kind", string(job.Kind)),
		zap.String("entity_id", job.EntityID),
		zap.Int("attempt", job.Attempt),
	)

	if err := job.Validate(); err != nil {
		log.Error("discarding malformed job", zap.Error(err))
		w.ack(ctx, d, log)
		return
	}

	// The item may have been deleted since the change; that is not an error.
	item, err := w.deps.Items.GetByID(ctx, job.Kind, job.EntityID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Debug("work item no longer exists; discarding job")
		w.ack(ctx, d, log)
		return
	}
	if err != nil {
		w.fail(ctx, d, fmt.Errorf("fetch work item: %w", err), log)
		return
	}

	recipients, err := w.deps.Resolver.Resolve(ctx, item)
	if err != nil {
		w.fail(ctx, d, fmt.Errorf("resolve recipients: %w", err), log)
		return
	}
	if len(recipients) == 0 {
		log.Info("no recipients with a contact address; nothing to send")
		w.ack(ctx, d, log)
		return
	}

	if err := w.deps.Limiter.Wait(ctx, job.Kind); err != nil {
		w.fail(ctx, d, fmt.Errorf("rate limiter: %w", err), log)
		return
	}

	subject, body := Render(job, item)

	sendCtx, cancel := context.WithTimeout(ctx, w.settings.MailTimeout)
	err = w.deps.Transport.Send(sendCtx, recipients, subject, body)
	cancel()
	elapsed := time.Since(start)

	if err != nil {
		w.hooks.OnFailed(job.Kind)
		w.fail(ctx, d, err, log)
		return
	}

	w.ack(ctx, d, log)
	w.hooks.OnSent(job.Kind, elapsed)
	log.Info("notification sent",
		zap.Strings("recipients", recipients),
		zap.Duration("latency", elapsed))
}

// fail records a failed attempt. The job is acknowledged only once its
// next step (retry row or dead letter) is persisted; otherwise it stays
// unacknowledged and a durable queue redelivers it.
func (w *Worker) fail(ctx context.Context, d queue.Delivery, cause error, log *zap.Logger) {
	job := d.Job
	attempts := job.Attempt + 1
	now := w.now().UTC()

	if attempts >= w.settings.MaxAttempts {
		dl := domain.DeadLetter{
			ID:        ulid.Make().String(),
			Job:       job,
			Attempts:  attempts,
			LastError: cause.Error(),
			CreatedAt: now,
		}
		if err := w.deps.Jobs.DeadLetter(ctx, dl); err != nil {
			log.Error("failed to record dead letter", zap.Error(err), zap.NamedError("cause", cause))
			return
		}
		w.hooks.OnDeadLettered(job.Kind)
		log.Error("delivery attempts exhausted; job dead-lettered",
			zap.Int("attempts", attempts), zap.Error(cause))
		w.ack(ctx, d, log)
		return
	}

	next := job
	next.Attempt = attempts
	nextAt := now.Add(w.backoff(job.Attempt))
	if err := w.deps.Jobs.ScheduleRetry(ctx, next, nextAt, cause.Error()); err != nil {
		log.Error("failed to schedule retry", zap.Error(err), zap.NamedError("cause", cause))
		return
	}
	log.Warn("delivery failed; retry scheduled",
		zap.Error(cause), zap.Time("next_attempt_at", nextAt))
	w.ack(ctx, d, log)
}

// backoff returns the delay after the given 0-based attempt:
//
//	attempt 0 → Backoff[0]  (default 5 s)
//	attempt 1 → Backoff[1]  (default 30 s)
//	attempt N ≥ len(Backoff) → last entry
func (w *Worker) backoff(attempt int) time.Duration {
	idx := attempt
	if idx >= len(w.settings.Backoff) {
		idx = len(w.settings.Backoff) - 1
	}
	return w.settings.Backoff[idx]
}

func (w *Worker) ack(ctx context.Context, d queue.Delivery, log *zap.Logger) {
	if err := w.deps.Queue.Ack(ctx, d); err != nil {
		log.Error("failed to acknowledge job", zap.Error(err))
	}
}
