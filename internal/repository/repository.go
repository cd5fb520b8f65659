package repository

import (
	"context"
	"time"

	"github.com/notifyhub/workitems/internal/domain"
)

// MutateFunc applies a change to the current persisted state of an item.
// It runs inside the write transaction; returning an error aborts the write.
type MutateFunc func(item *domain.WorkItem) error

// WorkItemRepository is the entity store for Epics, UserStories and Tasks.
// The pgx implementation is in pg_workitem_repo.go.
// Tests use a hand-written mock (mock_workitem_repo.go).
type WorkItemRepository interface {
	Create(ctx context.Context, item *domain.WorkItem) error
	GetByID(ctx context.Context, kind domain.Kind, id string) (*domain.WorkItem, error)

	// Update reads the item's status under a row lock, applies mutate and
	// commits, reporting both the prior and the committed status.
	Update(ctx context.Context, kind domain.Kind, id string, mutate MutateFunc) (*domain.WorkItem, domain.WriteResult, error)

	// Delete removes the item; children are removed by cascade.
	Delete(ctx context.Context, kind domain.Kind, id string) error
	List(ctx context.Context, filter domain.ListFilter) ([]*domain.WorkItem, error)
	ChildStatuses(ctx context.Context, parentID string) ([]domain.Status, error)
	Statuses(ctx context.Context, kind domain.Kind) ([]domain.Status, error)
	FindOverdue(ctx context.Context, kind domain.Kind, now time.Time, limit int) ([]*domain.WorkItem, error)
}

// UserRepository resolves the weak user references held by work items.
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// JobRepository persists notification jobs that are waiting for a retry
// and those that exhausted their attempts.
type JobRepository interface {
	ScheduleRetry(ctx context.Context, job domain.NotificationJob, nextAttempt time.Time, errMsg string) error

	// ClaimDueRetries removes and returns up to limit retries due at now.
	// A claimed retry belongs to the caller; put it back with ScheduleRetry
	// if it cannot be re-enqueued.
	ClaimDueRetries(ctx context.Context, now time.Time, limit int) ([]domain.NotificationJob, error)
	DeadLetter(ctx context.Context, dl domain.DeadLetter) error
	ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error)
}
