package domain

import "time"

// Kind identifies which level of the Epic → UserStory → Task hierarchy a
// work item belongs to.
type Kind string

const (
	KindEpic      Kind = "Epic"
	KindUserStory Kind = "UserStory"
	KindTask      Kind = "Task"
)

// Kinds lists every tracked kind, top of the hierarchy first.
var Kinds = []Kind{KindEpic, KindUserStory, KindTask}

func (k Kind) IsValid() bool {
	switch k {
	case KindEpic, KindUserStory, KindTask:
		return true
	}
	return false
}

// ParentKind returns the kind a parent reference must point at.
// Epics have no parent, so ok is false for them.
func (k Kind) ParentKind() (parent Kind, ok bool) {
	switch k {
	case KindUserStory:
		return KindEpic, true
	case KindTask:
		return KindUserStory, true
	}
	return "", false
}

// ChildKind is the inverse of ParentKind. Tasks have no children.
func (k Kind) ChildKind() (child Kind, ok bool) {
	switch k {
	case KindEpic:
		return KindUserStory, true
	case KindUserStory:
		return KindTask, true
	}
	return "", false
}

// Status is a work item's workflow state. The workflow is unconstrained:
// any status of a kind may move to any other status of the same kind.
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusInReview   Status = "IN_REVIEW"
	StatusDone       Status = "DONE"
	StatusBlocked    Status = "BLOCKED"
	StatusCancelled  Status = "CANCELLED"
)

var (
	planningStatuses = []Status{StatusTodo, StatusInProgress, StatusDone, StatusCancelled}
	taskStatuses     = []Status{StatusTodo, StatusInProgress, StatusInReview, StatusDone, StatusBlocked, StatusCancelled}
)

// Statuses returns the closed status set for the kind.
// The returned slice must not be modified.
func (k Kind) Statuses() []Status {
	switch k {
	case KindEpic, KindUserStory:
		return planningStatuses
	case KindTask:
		return taskStatuses
	}
	return nil
}

func (k Kind) ValidStatus(s Status) bool {
	for _, candidate := range k.Statuses() {
		if candidate == s {
			return true
		}
	}
	return false
}

// Priority is carried in notification payloads and decides the queue tier.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// WorkItem generalizes Epic, UserStory and Task.
//
// OwnerID is the Epic owner or the UserStory/Task assignee. OwnerID and
// ReporterID are weak references to users; an empty ReporterID means unset.
type WorkItem struct {
	ID             string     `json:"id"`
	Kind           Kind       `json:"kind"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         Status     `json:"status"`
	Priority       Priority   `json:"priority"`
	OwnerID        *string    `json:"owner_id,omitempty"`
	ReporterID     string     `json:"reporter_id,omitempty"`
	ParentID       *string    `json:"parent_id,omitempty"`
	StoryPoints    *int       `json:"story_points,omitempty"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty"`
	ActualHours    *float64   `json:"actual_hours,omitempty"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	DueAt          *time.Time `json:"due_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// User is the subset of an account the notification pipeline reads.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// WriteResult describes one committed write to a work item.
//
// Prior is the status read inside the write transaction before the
// mutation was applied; Current is the status the write committed.
// Existed is false when there was no prior persisted row.
type WriteResult struct {
	Kind     Kind
	ID       string
	Priority Priority
	Existed  bool
	Prior    Status
	Current  Status
}

// ListFilter holds query parameters for work item listing.
type ListFilter struct {
	Kind     Kind
	Status   *Status
	ParentID *string
	OwnerID  *string
	Limit    int
}
