package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/notifyhub/workitems/internal/domain"
	"github.com/notifyhub/workitems/internal/hierarchy"
	"github.com/notifyhub/workitems/internal/repository"
)

// ChangeObserver is told about every committed write; *detector.Detector
// satisfies it.
type ChangeObserver interface {
	Observe(ctx context.Context, res domain.WriteResult) bool
}

// WorkItemView is a work item with its derived hierarchy fields.
type WorkItemView struct {
	*domain.WorkItem
	hierarchy.Summary
}

// WorkItemService coordinates the entity store, the hierarchy aggregator
// and change detection. HTTP handlers depend on this service, not on the
// store. Notification failures never surface from here: the observer
// swallows them.
type WorkItemService struct {
	items    repository.WorkItemRepository
	jobs     repository.JobRepository
	agg      *hierarchy.Aggregator
	observer ChangeObserver
	logger   *zap.Logger
	now      func() time.Time
}

func NewWorkItemService(
	items repository.WorkItemRepository,
	jobs repository.JobRepository,
	observer ChangeObserver,
	logger *zap.Logger,
) *WorkItemService {
	return &WorkItemService{
		items:    items,
		jobs:     jobs,
		agg:      hierarchy.NewAggregator(items),
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

// Create validates and persists a new item. The caller becomes the
// reporter unless the request names one. Status defaults to TODO and
// priority to MEDIUM.
func (s *WorkItemService) Create(
	ctx context.Context,
	kind domain.Kind,
	req domain.CreateWorkItemRequest,
	callerID string,
) (*WorkItemView, error) {
	if req.ReporterID == "" {
		req.ReporterID = callerID
	}
	if err := req.Validate(kind); err != nil {
		return nil, err
	}

	if parentKind, ok := kind.ParentKind(); ok {
		if _, err := s.items.GetByID(ctx, parentKind, *req.ParentID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.ErrInvalidParent
			}
			return nil, fmt.Errorf("load parent: %w", err)
		}
	}

	item := s.build(kind, req)
	if err := s.items.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("persist %s: %w", kind, err)
	}

	// Creations pass through the observer like every write; it never
	// reports a change for them.
	s.observer.Observe(ctx, domain.WriteResult{
		Kind: kind, ID: item.ID, Priority: item.Priority, Existed: false, Current: item.Status,
	})
	return s.derive(ctx, item)
}

// Get returns the item with its completion percentage and overdue flag.
func (s *WorkItemService) Get(ctx context.Context, kind domain.Kind, id string) (*WorkItemView, error) {
	item, err := s.items.GetByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	summary, err := s.agg.Summarize(ctx, item)
	if err != nil {
		return nil, err
	}
	return &WorkItemView{WorkItem: item, Summary: summary}, nil
}

func (s *WorkItemService) List(ctx context.Context, filter domain.ListFilter) ([]*WorkItemView, error) {
	if !filter.Kind.IsValid() {
		return nil, domain.ErrInvalidKind
	}
	if filter.Status != nil && !filter.Kind.ValidStatus(*filter.Status) {
		return nil, domain.ErrInvalidStatus
	}
	items, err := s.items.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.deriveAll(ctx, items)
}

// Overdue lists tasks past their due instant that are not DONE, most
// overdue first.
func (s *WorkItemService) Overdue(ctx context.Context, limit int) ([]*WorkItemView, error) {
	items, err := s.items.FindOverdue(ctx, domain.KindTask, s.now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("find overdue tasks: %w", err)
	}
	return s.deriveAll(ctx, items)
}

// Update applies a partial update under the store's row lock and hands
// the write result to the observer, which enqueues a notification when
// the status changed.
func (s *WorkItemService) Update(
	ctx context.Context,
	kind domain.Kind,
	id string,
	req domain.UpdateWorkItemRequest,
) (*WorkItemView, error) {
	if err := req.Validate(kind); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	item, res, err := s.items.Update(ctx, kind, id, func(it *domain.WorkItem) error {
		return req.Apply(it, now)
	})
	if err != nil {
		return nil, err
	}

	if s.observer.Observe(ctx, res) {
		s.logger.Info("status changed",
			zap.String("kind", string(kind)),
			zap.String("id", id),
			zap.String("previous", string(res.Prior)),
			zap.String("new", string(res.Current)))
	}
	return s.derive(ctx, item)
}

// Delete removes the item and, by cascade, its descendants.
func (s *WorkItemService) Delete(ctx context.Context, kind domain.Kind, id string) error {
	return s.items.Delete(ctx, kind, id)
}

// Children lists the direct children of an item. Tasks have none.
func (s *WorkItemService) Children(ctx context.Context, kind domain.Kind, id string) ([]*WorkItemView, error) {
	if _, err := s.items.GetByID(ctx, kind, id); err != nil {
		return nil, err
	}
	childKind, ok := kind.ChildKind()
	if !ok {
		return []*WorkItemView{}, nil
	}
	items, err := s.items.List(ctx, domain.ListFilter{Kind: childKind, ParentID: &id})
	if err != nil {
		return nil, err
	}
	return s.deriveAll(ctx, items)
}

// Statistics breaks all items of kind down by status.
func (s *WorkItemService) Statistics(ctx context.Context, kind domain.Kind) (hierarchy.Statistics, error) {
	if !kind.IsValid() {
		return hierarchy.Statistics{}, domain.ErrInvalidKind
	}
	statuses, err := s.items.Statuses(ctx, kind)
	if err != nil {
		return hierarchy.Statistics{}, fmt.Errorf("load %s statuses: %w", kind, err)
	}
	return hierarchy.Breakdown(kind, statuses), nil
}

// DeadLetters returns the most recent notifications that exhausted their
// delivery attempts.
func (s *WorkItemService) DeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	return s.jobs.ListDeadLetters(ctx, limit)
}

func (s *WorkItemService) derive(ctx context.Context, item *domain.WorkItem) (*WorkItemView, error) {
	summary, err := s.agg.Derive(ctx, item)
	if err != nil {
		return nil, err
	}
	return &WorkItemView{WorkItem: item, Summary: summary}, nil
}

func (s *WorkItemService) deriveAll(ctx context.Context, items []*domain.WorkItem) ([]*WorkItemView, error) {
	views := make([]*WorkItemView, 0, len(items))
	for _, item := range items {
		v, err := s.derive(ctx, item)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *WorkItemService) build(kind domain.Kind, req domain.CreateWorkItemRequest) *domain.WorkItem {
	now := s.now().UTC()
	status := req.Status
	if status == "" {
		status = domain.StatusTodo
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}

	item := &domain.WorkItem{
		ID:             uuid.New().String(),
		Kind:           kind,
		Title:          req.Title,
		Description:    req.Description,
		Status:         status,
		Priority:       priority,
		OwnerID:        req.OwnerID,
		ReporterID:     req.ReporterID,
		ParentID:       req.ParentID,
		StoryPoints:    req.StoryPoints,
		EstimatedHours: req.EstimatedHours,
		ActualHours:    req.ActualHours,
		StartDate:      req.StartDate,
		DueAt:          req.DueAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if status == domain.StatusDone {
		item.CompletedAt = &now
	}
	return item
}
