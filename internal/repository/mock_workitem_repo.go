package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/notifyhub/workitems/internal/domain"
)

// MockWorkItemRepository is a hand-written, in-memory implementation of
// WorkItemRepository used in unit tests. Update holds the write lock for
// the whole read-modify-write, mirroring the row lock of the pgx version.
type MockWorkItemRepository struct {
	mu    sync.RWMutex
	items map[string]*domain.WorkItem

	// Optional error overrides, set in tests to simulate failure paths.
	GetByIDErr error
	UpdateErr  error
}

func NewMockWorkItemRepository() *MockWorkItemRepository {
	return &MockWorkItemRepository{items: make(map[string]*domain.WorkItem)}
}

func (m *MockWorkItemRepository) Create(_ context.Context, item *domain.WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *item
	m.items[item.ID] = &clone
	return nil
}

func (m *MockWorkItemRepository) GetByID(_ context.Context, kind domain.Kind, id string) (*domain.WorkItem, error) {
	if m.GetByIDErr != nil {
		return nil, m.GetByIDErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	if !ok || item.Kind != kind {
		return nil, domain.ErrNotFound
	}
	clone := *item
	return &clone, nil
}

func (m *MockWorkItemRepository) Update(_ context.Context, kind domain.Kind, id string, mutate MutateFunc) (*domain.WorkItem, domain.WriteResult, error) {
	res := domain.WriteResult{Kind: kind, ID: id}
	if m.UpdateErr != nil {
		return nil, res, m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.items[id]
	if !ok || stored.Kind != kind {
		return nil, res, domain.ErrNotFound
	}
	res.Existed = true
	res.Prior = stored.Status

	working := *stored
	if err := mutate(&working); err != nil {
		return nil, res, err
	}
	m.items[id] = &working
	res.Current = working.Status
	res.Priority = working.Priority

	clone := working
	return &clone, res, nil
}

// Delete removes the item and, like the ON DELETE CASCADE in the schema,
// every descendant.
func (m *MockWorkItemRepository) Delete(_ context.Context, kind domain.Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || item.Kind != kind {
		return domain.ErrNotFound
	}
	m.deleteTree(id)
	return nil
}

func (m *MockWorkItemRepository) deleteTree(id string) {
	delete(m.items, id)
	for childID, child := range m.items {
		if child.ParentID != nil && *child.ParentID == id {
			m.deleteTree(childID)
		}
	}
}

func (m *MockWorkItemRepository) List(_ context.Context, f domain.ListFilter) ([]*domain.WorkItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*domain.WorkItem, 0, len(m.items))
	for _, item := range m.items {
		if !matches(item, f) {
			continue
		}
		clone := *item
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (m *MockWorkItemRepository) ChildStatuses(_ context.Context, parentID string) ([]domain.Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.Status
	for _, item := range m.items {
		if item.ParentID != nil && *item.ParentID == parentID {
			result = append(result, item.Status)
		}
	}
	return result, nil
}

func (m *MockWorkItemRepository) Statuses(_ context.Context, kind domain.Kind) ([]domain.Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.Status
	for _, item := range m.items {
		if item.Kind == kind {
			result = append(result, item.Status)
		}
	}
	return result, nil
}

func (m *MockWorkItemRepository) FindOverdue(_ context.Context, kind domain.Kind, now time.Time, limit int) ([]*domain.WorkItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.WorkItem
	for _, item := range m.items {
		if item.Kind != kind || item.DueAt == nil || item.Status == domain.StatusDone || !item.DueAt.Before(now) {
			continue
		}
		clone := *item
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DueAt.Before(*result[j].DueAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func matches(item *domain.WorkItem, f domain.ListFilter) bool {
	if f.Kind != "" && item.Kind != f.Kind {
		return false
	}
	if f.Status != nil && item.Status != *f.Status {
		return false
	}
	if f.ParentID != nil && (item.ParentID == nil || *item.ParentID != *f.ParentID) {
		return false
	}
	if f.OwnerID != nil && (item.OwnerID == nil || *item.OwnerID != *f.OwnerID) {
		return false
	}
	return true
}
