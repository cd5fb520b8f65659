package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/workitems/internal/detector"
	"github.com/notifyhub/workitems/internal/domain"
	"github.com/notifyhub/workitems/internal/queue"
	"github.com/notifyhub/workitems/internal/ratelimiter"
	"github.com/notifyhub/workitems/internal/recipient"
	"github.com/notifyhub/workitems/internal/repository"
	"github.com/notifyhub/workitems/internal/worker"
)

type sentMail struct {
	to      []string
	subject string
	body    string
}

type fakeTransport struct {
	mu    sync.Mutex
	sent  []sentMail
	err   error
	panic bool
}

func (f *fakeTransport) Send(_ context.Context, to []string, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		panic("transport exploded")
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return f.err
}

func (f *fakeTransport) calls() []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMail(nil), f.sent...)
}

// countingQueue records acknowledgements on top of the memory queue.
type countingQueue struct {
	*queue.PriorityQueue
	mu   sync.Mutex
	acks int
}

func (q *countingQueue) Ack(ctx context.Context, d queue.Delivery) error {
	q.mu.Lock()
	q.acks++
	q.mu.Unlock()
	return q.PriorityQueue.Ack(ctx, d)
}

func (q *countingQueue) ackCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.acks
}

type fixture struct {
	q         *countingQueue
	items     *repository.MockWorkItemRepository
	users     *repository.MockUserRepository
	jobs      *repository.MockJobRepository
	transport *fakeTransport
	deps      worker.Deps
}

func strPtr(s string) *string { return &s }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		q:         &countingQueue{PriorityQueue: queue.New(100)},
		items:     repository.NewMockWorkItemRepository(),
		users:     repository.NewMockUserRepository(),
		jobs:      repository.NewMockJobRepository(),
		transport: &fakeTransport{},
	}
	require.NoError(t, f.users.Create(ctx, &domain.User{ID: "owner", Email: "o@x.com"}))
	require.NoError(t, f.users.Create(ctx, &domain.User{ID: "reporter", Email: "r@x.com"}))
	require.NoError(t, f.items.Create(ctx, &domain.WorkItem{
		ID: "epic-1", Kind: domain.KindEpic, Title: "Checkout revamp",
		Status: domain.StatusInProgress, Priority: domain.PriorityHigh,
		OwnerID: strPtr("owner"), ReporterID: "reporter",
	}))
	f.deps = worker.Deps{
		Queue:     f.q,
		Items:     f.items,
		Jobs:      f.jobs,
		Resolver:  recipient.NewResolver(f.users),
		Transport: f.transport,
		Limiter:   ratelimiter.New(0),
	}
	return f
}

func settings() worker.Settings {
	return worker.Settings{MaxAttempts: 3, Backoff: []time.Duration{0}, MailTimeout: time.Second}
}

func epicJob() domain.NotificationJob {
	return domain.NotificationJob{
		ID: "job-1", Seq: 1, Reason: domain.ReasonStatusChanged,
		Kind: domain.KindEpic, EntityID: "epic-1",
		Previous: domain.StatusTodo, New: domain.StatusInProgress,
		Priority: domain.PriorityHigh,
	}
}

func TestWorker_DeliversToOwnerAndReporter(t *testing.T) {
	f := newFixture(t)
	var sentKinds []domain.Kind
	w := worker.NewWorker(0, f.deps, settings(), zap.NewNop(), worker.MetricHooks{
		OnSent: func(k domain.Kind, _ time.Duration) { sentKinds = append(sentKinds, k) },
	})

	w.Handle(context.Background(), queue.Delivery{Job: epicJob()})

	calls := f.transport.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"o@x.com", "r@x.com"}, calls[0].to)
	assert.Equal(t, "Epic Status Changed: Checkout revamp", calls[0].subject)
	assert.Contains(t, calls[0].body, "Previous Status: TODO")
	assert.Contains(t, calls[0].body, "New Status: IN_PROGRESS")
	assert.Contains(t, calls[0].body, "Priority: HIGH")
	assert.Equal(t, []domain.Kind{domain.KindEpic}, sentKinds)
	assert.Equal(t, 1, f.q.ackCount())
	assert.Empty(t, f.jobs.PendingRetries())
}

func TestWorker_DeletedItemIsDiscarded(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.items.Delete(context.Background(), domain.KindEpic, "epic-1"))
	w := worker.NewWorker(0, f.deps, settings(), zap.NewNop(), worker.MetricHooks{})

	w.Handle(context.Background(), queue.Delivery{Job: epicJob()})

	assert.Empty(t, f.transport.calls())
	assert.Empty(t, f.jobs.PendingRetries())
	assert.Equal(t, 1, f.q.ackCount())
}

func TestWorker_NoRecipientsIsANoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.items.Create(ctx, &domain.WorkItem{
		ID: "task-1", Kind: domain.KindTask, Title: "orphan",
		Status: domain.StatusDone, Priority: domain.PriorityLow, ReporterID: "ghost",
	}))
	w := worker.NewWorker(0, f.deps, settings(), zap.NewNop(), worker.MetricHooks{})

	job := epicJob()
	job.Kind, job.EntityID = domain.KindTask, "task-1"
	w.Handle(ctx, queue.Delivery{Job: job})

	assert.Empty(t, f.transport.calls())
	assert.Empty(t, f.jobs.PendingRetries())
	assert.Equal(t, 1, f.q.ackCount())
}

func TestWorker_MalformedJobIsDiscarded(t *testing.T) {
	f := newFixture(t)
	w := worker.NewWorker(0, f.deps, settings(), zap.NewNop(), worker.MetricHooks{})

	job := epicJob()
	job.New = domain.StatusBlocked // not an Epic status
	w.Handle(context.Background(), queue.Delivery{Job: job})

	assert.Empty(t, f.transport.calls())
	assert.Empty(t, f.jobs.PendingRetries())
	assert.Equal(t, 1, f.q.ackCount())
}

func TestWorker_FailureSchedulesRetry(t *testing.T) {
	f := newFixture(t)
	f.transport.err = errors.New("relay down")
	var failed int
	s := settings()
	s.Backoff = []time.Duration{5 * time.Second, 30 * time.Second}
	w := worker.NewWorker(0, f.deps, s, zap.NewNop(), worker.MetricHooks{
		OnFailed: func(domain.Kind) { failed++ },
	})

	before := time.Now()
	w.Handle(context.Background(), queue.Delivery{Job: epicJob()})

	pending := f.jobs.PendingRetries()
	require.Contains(t, pending, "job-1")
	assert.WithinDuration(t, before.Add(5*time.Second), pending["job-1"], time.Second)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, f.q.ackCount())

	claimed, err := f.jobs.ClaimDueRetries(context.Background(), before.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 1, claimed[0].Attempt)
}

func TestWorker_ThreeFailuresDeadLetter(t *testing.T) {
	f := newFixture(t)
	f.transport.err = errors.New("relay down")
	ctx := context.Background()
	var dead int
	w := worker.NewWorker(0, f.deps, settings(), zap.NewNop(), worker.MetricHooks{
		OnDeadLettered: func(domain.Kind) { dead++ },
	})
	retry := worker.NewRetryWorker(f.jobs, f.q, time.Hour, 10, zap.NewNop())

	require.NoError(t, f.q.Enqueue(ctx, epicJob()))
	for attempt := 0; attempt < 3; attempt++ {
		d, ok := f.q.Dequeue(ctx)
		require.True(t, ok, "attempt %d", attempt)
		assert.Equal(t, attempt, d.Job.Attempt)
		w.Handle(ctx, d)
		retry.Poll(ctx)
	}

	assert.Len(t, f.transport.calls(), 3)
	assert.Empty(t, f.jobs.PendingRetries(), "no retry after the last attempt")
	depth, _ := f.q.Depth(ctx)
	assert.Zero(t, depth)
	assert.Equal(t, 1, dead)

	letters, err := f.jobs.ListDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "job-1", letters[0].Job.ID)
	assert.Equal(t, 3, letters[0].Attempts)
	assert.Contains(t, letters[0].LastError, "relay down")
}

func TestWorker_UnpersistedRetryIsNotAcked(t *testing.T) {
	f := newFixture(t)
	f.transport.err = errors.New("relay down")
	f.jobs.ScheduleRetryErr = errors.New("db gone")
	w := worker.NewWorker(0, f.deps, settings(), zap.NewNop(), worker.MetricHooks{})

	w.Handle(context.Background(), queue.Delivery{Job: epicJob()})

	assert.Zero(t, f.q.ackCount())
}

func TestWorker_PanicIsContained(t *testing.T) {
	f := newFixture(t)
	f.transport.panic = true
	w := worker.NewWorker(0, f.deps, settings(), zap.NewNop(), worker.MetricHooks{})

	assert.NotPanics(t, func() {
		w.Handle(context.Background(), queue.Delivery{Job: epicJob()})
	})
	assert.Equal(t, 1, f.q.ackCount())
	assert.Empty(t, f.jobs.PendingRetries())
}

func TestWorker_StoreErrorIsRetried(t *testing.T) {
	f := newFixture(t)
	f.items.GetByIDErr = errors.New("connection reset")
	w := worker.NewWorker(0, f.deps, settings(), zap.NewNop(), worker.MetricHooks{})

	w.Handle(context.Background(), queue.Delivery{Job: epicJob()})

	assert.Empty(t, f.transport.calls())
	assert.Contains(t, f.jobs.PendingRetries(), "job-1")
}

func TestRetryWorker_PutsBackWhenQueueRefuses(t *testing.T) {
	ctx := context.Background()
	jobs := repository.NewMockJobRepository()
	q := queue.New(1)
	require.NoError(t, q.Enqueue(ctx, domain.NotificationJob{ID: "filler", Priority: domain.PriorityLow}))

	job := epicJob()
	job.Priority = domain.PriorityLow
	require.NoError(t, jobs.ScheduleRetry(ctx, job, time.Now().Add(-time.Minute), "relay down"))

	n := worker.NewRetryWorker(jobs, q, time.Hour, 10, zap.NewNop()).Poll(ctx)
	assert.Zero(t, n)
	assert.Contains(t, jobs.PendingRetries(), "job-1")
}

func TestPool_ProcessesUntilCancelled(t *testing.T) {
	f := newFixture(t)
	pool := worker.NewPool(3, f.deps, settings(), zap.NewNop(), worker.MetricHooks{})

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 5; i++ {
		job := epicJob()
		job.ID = "job-" + string(rune('a'+i))
		require.NoError(t, f.q.Enqueue(ctx, job))
	}

	require.Eventually(t, func() bool { return len(f.transport.calls()) == 5 },
		2*time.Second, 10*time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}
}

func TestOverdueScanner_RemindsOverdueTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, f.items.Create(ctx, &domain.WorkItem{
		ID: "late", Kind: domain.KindTask, Title: "Ship it", Status: domain.StatusInProgress,
		Priority: domain.PriorityMedium, OwnerID: strPtr("owner"), ReporterID: "reporter", DueAt: &past,
	}))
	require.NoError(t, f.items.Create(ctx, &domain.WorkItem{
		ID: "finished", Kind: domain.KindTask, Title: "Done already", Status: domain.StatusDone,
		Priority: domain.PriorityMedium, ReporterID: "reporter", DueAt: &past,
	}))

	det := detector.New(f.q, time.Second, zap.NewNop(), detector.Hooks{})
	n := worker.NewOverdueScanner(f.items, det, time.Hour, 100, zap.NewNop()).Scan(ctx)
	require.Equal(t, 1, n)

	d, ok := f.q.Dequeue(ctx)
	require.True(t, ok)
	assert.Equal(t, domain.ReasonOverdueReminder, d.Job.Reason)
	assert.Equal(t, "late", d.Job.EntityID)

	w := worker.NewWorker(0, f.deps, settings(), zap.NewNop(), worker.MetricHooks{})
	w.Handle(ctx, d)
	calls := f.transport.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Task Overdue: Ship it", calls[0].subject)
	assert.Equal(t, []string{"o@x.com", "r@x.com"}, calls[0].to)
}
