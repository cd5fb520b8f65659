package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/workitems/internal/detector"
	"github.com/notifyhub/workitems/internal/domain"
	"github.com/notifyhub/workitems/internal/queue"
	"github.com/notifyhub/workitems/internal/ratelimiter"
	"github.com/notifyhub/workitems/internal/recipient"
	"github.com/notifyhub/workitems/internal/repository"
	"github.com/notifyhub/workitems/internal/service"
	"github.com/notifyhub/workitems/internal/worker"
)

type env struct {
	svc   *service.WorkItemService
	items *repository.MockWorkItemRepository
	users *repository.MockUserRepository
	jobs  *repository.MockJobRepository
	q     *queue.PriorityQueue
	owner string
	rep   string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		items: repository.NewMockWorkItemRepository(),
		users: repository.NewMockUserRepository(),
		jobs:  repository.NewMockJobRepository(),
		q:     queue.New(100),
		owner: uuid.NewString(),
		rep:   uuid.NewString(),
	}
	ctx := context.Background()
	require.NoError(t, e.users.Create(ctx, &domain.User{ID: e.owner, Username: "o", Email: "o@x.com"}))
	require.NoError(t, e.users.Create(ctx, &domain.User{ID: e.rep, Username: "r", Email: "r@x.com"}))

	det := detector.New(e.q, time.Second, zap.NewNop(), detector.Hooks{})
	e.svc = service.NewWorkItemService(e.items, e.jobs, det, zap.NewNop())
	return e
}

func (e *env) depth(t *testing.T) int {
	t.Helper()
	n, err := e.q.Depth(context.Background())
	require.NoError(t, err)
	return n
}

func (e *env) epic(t *testing.T) *service.WorkItemView {
	t.Helper()
	epic, err := e.svc.Create(context.Background(), domain.KindEpic, domain.CreateWorkItemRequest{
		Title: "Checkout revamp", OwnerID: &e.owner,
	}, e.rep)
	require.NoError(t, err)
	return epic
}

func status(s domain.Status) *domain.Status { return &s }

func TestCreate_DefaultsAndNoNotification(t *testing.T) {
	e := newEnv(t)

	epic := e.epic(t)

	assert.NotEmpty(t, epic.ID)
	assert.Equal(t, domain.StatusTodo, epic.Status)
	assert.Equal(t, domain.PriorityMedium, epic.Priority)
	assert.Equal(t, e.rep, epic.ReporterID, "caller becomes the reporter")
	assert.Zero(t, e.depth(t), "creation never notifies")
}

func TestCreate_CreatedAsDoneIsStamped(t *testing.T) {
	e := newEnv(t)
	epic, err := e.svc.Create(context.Background(), domain.KindEpic, domain.CreateWorkItemRequest{
		Title: "Already shipped", Status: domain.StatusDone,
	}, e.rep)
	require.NoError(t, err)
	assert.NotNil(t, epic.CompletedAt)
	assert.Zero(t, e.depth(t))
}

func TestCreate_ParentRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	epic := e.epic(t)

	missing := uuid.NewString()
	_, err := e.svc.Create(ctx, domain.KindUserStory, domain.CreateWorkItemRequest{
		Title: "story", ParentID: &missing,
	}, e.rep)
	assert.ErrorIs(t, err, domain.ErrInvalidParent)

	_, err = e.svc.Create(ctx, domain.KindTask, domain.CreateWorkItemRequest{
		Title: "task under an epic", ParentID: &epic.ID,
	}, e.rep)
	assert.ErrorIs(t, err, domain.ErrInvalidParent, "a Task's parent must be a UserStory")

	_, err = e.svc.Create(ctx, domain.KindUserStory, domain.CreateWorkItemRequest{
		Title: "story",
	}, e.rep)
	assert.ErrorIs(t, err, domain.ErrInvalidParent)

	story, err := e.svc.Create(ctx, domain.KindUserStory, domain.CreateWorkItemRequest{
		Title: "story", ParentID: &epic.ID,
	}, e.rep)
	require.NoError(t, err)
	assert.Equal(t, epic.ID, *story.ParentID)
}

func TestCreate_AssigneeCannotBeReporter(t *testing.T) {
	e := newEnv(t)
	epic := e.epic(t)

	_, err := e.svc.Create(context.Background(), domain.KindUserStory, domain.CreateWorkItemRequest{
		Title: "story", ParentID: &epic.ID, OwnerID: &e.rep,
	}, e.rep)
	assert.ErrorIs(t, err, domain.ErrOwnerIsReporter)
}

func TestUpdate_StatusChangeEnqueuesOneJob(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	epic := e.epic(t)

	updated, err := e.svc.Update(ctx, domain.KindEpic, epic.ID, domain.UpdateWorkItemRequest{
		Status: status(domain.StatusInProgress),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, updated.Status)
	require.Equal(t, 1, e.depth(t))

	d, ok := e.q.Dequeue(ctx)
	require.True(t, ok)
	assert.Equal(t, domain.StatusTodo, d.Job.Previous)
	assert.Equal(t, domain.StatusInProgress, d.Job.New)
	assert.Equal(t, epic.ID, d.Job.EntityID)
}

func TestUpdate_OtherFieldsDoNotNotify(t *testing.T) {
	e := newEnv(t)
	epic := e.epic(t)

	title := "Checkout revamp v2"
	_, err := e.svc.Update(context.Background(), domain.KindEpic, epic.ID, domain.UpdateWorkItemRequest{
		Title:  &title,
		Status: status(domain.StatusTodo),
	})
	require.NoError(t, err)
	assert.Zero(t, e.depth(t))
}

func TestUpdate_InvalidStatusForKind(t *testing.T) {
	e := newEnv(t)
	epic := e.epic(t)

	_, err := e.svc.Update(context.Background(), domain.KindEpic, epic.ID, domain.UpdateWorkItemRequest{
		Status: status(domain.StatusBlocked),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	assert.Zero(t, e.depth(t))
}

func TestUpdate_NotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Update(context.Background(), domain.KindTask, uuid.NewString(), domain.UpdateWorkItemRequest{
		Status: status(domain.StatusDone),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdate_QueueDownStillCommits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	epic := e.epic(t)

	// A capacity-1 queue that is already full stands in for an outage.
	full := queue.New(1)
	require.NoError(t, full.Enqueue(ctx, domain.NotificationJob{ID: "filler", Priority: domain.PriorityMedium}))
	det := detector.New(full, 20*time.Millisecond, zap.NewNop(), detector.Hooks{})
	svc := service.NewWorkItemService(e.items, e.jobs, det, zap.NewNop())

	updated, err := svc.Update(ctx, domain.KindEpic, epic.ID, domain.UpdateWorkItemRequest{
		Status: status(domain.StatusDone),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, updated.Status)

	stored, err := e.items.GetByID(ctx, domain.KindEpic, epic.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, stored.Status)
}

// Concurrent writers may each observe a change, but no committed
// transition is lost or invented: the enqueued transitions chain from the
// initial status to the stored one.
func TestUpdate_ConcurrentStatusWritesKeepEveryTransition(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	epic := e.epic(t)

	targets := []domain.Status{domain.StatusInProgress, domain.StatusDone, domain.StatusTodo}
	var wg conc.WaitGroup
	for i := 0; i < 30; i++ {
		next := targets[i%len(targets)]
		wg.Go(func() {
			_, err := e.svc.Update(ctx, domain.KindEpic, epic.ID, domain.UpdateWorkItemRequest{
				Status: status(next),
			})
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	n := e.depth(t)
	require.Positive(t, n, "at least one change must be notified")

	// Each job is an edge Previous -> New. A lossless history is a walk,
	// so every status is left as often as it is entered except the two ends.
	balance := make(map[domain.Status]int)
	for i := 0; i < n; i++ {
		d, ok := e.q.Dequeue(ctx)
		require.True(t, ok)
		assert.NotEqual(t, d.Job.Previous, d.Job.New)
		assert.Contains(t, targets, d.Job.Previous)
		balance[d.Job.Previous]++
		balance[d.Job.New]--
	}

	stored, err := e.items.GetByID(ctx, domain.KindEpic, epic.ID)
	require.NoError(t, err)
	balance[domain.StatusTodo]--
	balance[stored.Status]++
	for st, b := range balance {
		assert.Zero(t, b, "unbalanced transitions through %s", st)
	}
}

func TestGet_ComputedFields(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	epic := e.epic(t)

	for i, s := range []domain.Status{domain.StatusDone, domain.StatusTodo, domain.StatusInProgress, domain.StatusTodo} {
		_, err := e.svc.Create(ctx, domain.KindUserStory, domain.CreateWorkItemRequest{
			Title: "story", ParentID: &epic.ID, Status: s,
		}, e.rep)
		require.NoError(t, err, "story %d", i)
	}

	view, err := e.svc.Get(ctx, domain.KindEpic, epic.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, view.ChildrenCount)
	assert.Equal(t, 25.0, view.CompletionPercentage)
	assert.False(t, view.IsOverdue)
}

func TestChildrenAndDeleteCascade(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	epic := e.epic(t)
	story, err := e.svc.Create(ctx, domain.KindUserStory, domain.CreateWorkItemRequest{
		Title: "story", ParentID: &epic.ID,
	}, e.rep)
	require.NoError(t, err)

	children, err := e.svc.Children(ctx, domain.KindEpic, epic.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, story.ID, children[0].ID)

	require.NoError(t, e.svc.Delete(ctx, domain.KindEpic, epic.ID))
	_, err = e.svc.Get(ctx, domain.KindUserStory, story.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStatistics(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.epic(t)
	_, err := e.svc.Create(ctx, domain.KindEpic, domain.CreateWorkItemRequest{
		Title: "done", Status: domain.StatusDone,
	}, e.rep)
	require.NoError(t, err)

	stats, err := e.svc.Statistics(ctx, domain.KindEpic)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 50.0, stats.CompletionRate)

	_, err = e.svc.Statistics(ctx, "Bug")
	assert.ErrorIs(t, err, domain.ErrInvalidKind)
}

// An Epic moving TODO -> IN_PROGRESS with owner o@x.com and reporter
// r@x.com notifies exactly those two addresses, once.
func TestStatusChangeNotifiesOwnerAndReporter(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	epic := e.epic(t)

	_, err := e.svc.Update(ctx, domain.KindEpic, epic.ID, domain.UpdateWorkItemRequest{
		Status: status(domain.StatusInProgress),
	})
	require.NoError(t, err)
	require.Equal(t, 1, e.depth(t))

	transport := &recordingTransport{}
	w := worker.NewWorker(0, worker.Deps{
		Queue:     e.q,
		Items:     e.items,
		Jobs:      e.jobs,
		Resolver:  recipient.NewResolver(e.users),
		Transport: transport,
		Limiter:   ratelimiter.New(0),
	}, worker.Settings{MaxAttempts: 3, Backoff: []time.Duration{time.Second}, MailTimeout: time.Second},
		zap.NewNop(), worker.MetricHooks{})

	d, ok := e.q.Dequeue(ctx)
	require.True(t, ok)
	w.Handle(ctx, d)

	require.Len(t, transport.to, 1)
	assert.Equal(t, []string{"o@x.com", "r@x.com"}, transport.to[0])
	assert.Zero(t, e.depth(t))
}

type recordingTransport struct {
	to [][]string
}

func (r *recordingTransport) Send(_ context.Context, to []string, _, _ string) error {
	r.to = append(r.to, to)
	return nil
}
