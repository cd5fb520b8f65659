package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/notifyhub/workitems/internal/domain"
)

type scheduledRetry struct {
	job         domain.NotificationJob
	nextAttempt time.Time
	lastError   string
}

// MockJobRepository is an in-memory JobRepository for tests.
type MockJobRepository struct {
	mu          sync.Mutex
	retries     map[string]scheduledRetry
	deadLetters []domain.DeadLetter

	ScheduleRetryErr error
}

func NewMockJobRepository() *MockJobRepository {
	return &MockJobRepository{retries: make(map[string]scheduledRetry)}
}

func (m *MockJobRepository) ScheduleRetry(_ context.Context, job domain.NotificationJob, nextAttempt time.Time, errMsg string) error {
	if m.ScheduleRetryErr != nil {
		return m.ScheduleRetryErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[job.ID] = scheduledRetry{job: job, nextAttempt: nextAttempt, lastError: errMsg}
	return nil
}

func (m *MockJobRepository) ClaimDueRetries(_ context.Context, now time.Time, limit int) ([]domain.NotificationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []scheduledRetry
	for _, r := range m.retries {
		if !r.nextAttempt.After(now) {
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].nextAttempt.Before(due[j].nextAttempt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	jobs := make([]domain.NotificationJob, 0, len(due))
	for _, r := range due {
		delete(m.retries, r.job.ID)
		jobs = append(jobs, r.job)
	}
	return jobs, nil
}

func (m *MockJobRepository) DeadLetter(_ context.Context, dl domain.DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLetters = append(m.deadLetters, dl)
	return nil
}

func (m *MockJobRepository) ListDeadLetters(_ context.Context, limit int) ([]domain.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]domain.DeadLetter, 0, len(m.deadLetters))
	for i := len(m.deadLetters) - 1; i >= 0; i-- {
		result = append(result, m.deadLetters[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// PendingRetries returns a snapshot of the scheduled retries with their due
// times, for assertions.
func (m *MockJobRepository) PendingRetries() map[string]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]time.Time, len(m.retries))
	for id, r := range m.retries {
		out[id] = r.nextAttempt
	}
	return out
}
