// Package hierarchy computes read-only metrics derived from the
// Epic → UserStory → Task tree. Nothing here is persisted or cached; every
// value is computed at read time.
package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/notifyhub/workitems/internal/domain"
)

// CompletionPercentage is the share of children in DONE, in [0,100],
// rounded to two decimals. A parent without children is 0% complete.
func CompletionPercentage(children []domain.Status) float64 {
	if len(children) == 0 {
		return 0
	}
	done := 0
	for _, s := range children {
		if s == domain.StatusDone {
			done++
		}
	}
	return percent(done, len(children))
}

// IsOverdue is true iff a due instant is set, it lies strictly before now
// and the item is not DONE.
func IsOverdue(item *domain.WorkItem, now time.Time) bool {
	if item == nil || item.DueAt == nil || item.Status == domain.StatusDone {
		return false
	}
	return item.DueAt.Before(now)
}

func percent(n, total int) float64 {
	return math.Round(float64(n)/float64(total)*100*100) / 100
}

// Store is the read surface the aggregator needs from the entity store.
type Store interface {
	GetByID(ctx context.Context, kind domain.Kind, id string) (*domain.WorkItem, error)
	ChildStatuses(ctx context.Context, parentID string) ([]domain.Status, error)
}

// Summary holds the computed fields attached to entity responses.
type Summary struct {
	ChildrenCount        int     `json:"children_count"`
	CompletionPercentage float64 `json:"completion_percentage"`
	IsOverdue            bool    `json:"is_overdue"`
}

type Aggregator struct {
	store Store
	now   func() time.Time
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// WithClock returns a copy of the aggregator that evaluates against clock.
func (a *Aggregator) WithClock(clock func() time.Time) *Aggregator {
	return &Aggregator{store: a.store, now: clock}
}

// Summarize validates the item's parent link and computes its derived
// fields. An item whose parent is missing or of the wrong kind yields
// domain.ErrDanglingParent.
func (a *Aggregator) Summarize(ctx context.Context, item *domain.WorkItem) (Summary, error) {
	if err := a.checkParent(ctx, item); err != nil {
		return Summary{}, err
	}
	return a.Derive(ctx, item)
}

// Derive computes the derived fields without checking the parent link.
// Collection reads use it so one dangling row does not fail the page.
func (a *Aggregator) Derive(ctx context.Context, item *domain.WorkItem) (Summary, error) {
	s := Summary{IsOverdue: IsOverdue(item, a.now())}
	if _, hasChildren := item.Kind.ChildKind(); !hasChildren {
		return s, nil
	}

	statuses, err := a.store.ChildStatuses(ctx, item.ID)
	if err != nil {
		return Summary{}, fmt.Errorf("load children of %s %s: %w", item.Kind, item.ID, err)
	}
	s.ChildrenCount = len(statuses)
	s.CompletionPercentage = CompletionPercentage(statuses)
	return s, nil
}

func (a *Aggregator) checkParent(ctx context.Context, item *domain.WorkItem) error {
	parentKind, needsParent := item.Kind.ParentKind()
	if !needsParent {
		return nil
	}
	if item.ParentID == nil {
		return domain.ErrDanglingParent
	}
	_, err := a.store.GetByID(ctx, parentKind, *item.ParentID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrDanglingParent
	}
	return err
}
