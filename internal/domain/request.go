package domain

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator registers "singleline", which rejects CR and LF. Titles end
// up in mail headers.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("singleline", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), "\r\n")
	})
	return v
}

// CreateWorkItemRequest is the inbound payload for a new work item.
// Kind is taken from the route, not the body.
type CreateWorkItemRequest struct {
	Title          string     `json:"title" validate:"required,max=200,singleline"`
	Description    string     `json:"description"`
	Status         Status     `json:"status"`
	Priority       Priority   `json:"priority"`
	OwnerID        *string    `json:"owner_id,omitempty" validate:"omitempty,uuid"`
	ReporterID     string     `json:"reporter_id,omitempty" validate:"omitempty,uuid"`
	ParentID       *string    `json:"parent_id,omitempty" validate:"omitempty,uuid"`
	StoryPoints    *int       `json:"story_points,omitempty" validate:"omitempty,min=0"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty" validate:"omitempty,min=0"`
	ActualHours    *float64   `json:"actual_hours,omitempty" validate:"omitempty,min=0"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	DueAt          *time.Time `json:"due_at,omitempty"`
}

// Validate checks field constraints and the kind-specific enum sets.
// Empty Status and Priority are allowed and defaulted by the service.
func (r *CreateWorkItemRequest) Validate(kind Kind) error {
	if !kind.IsValid() {
		return ErrInvalidKind
	}
	if err := validate.Struct(r); err != nil {
		return err
	}
	if r.Status != "" && !kind.ValidStatus(r.Status) {
		return ErrInvalidStatus
	}
	if r.Priority != "" && !r.Priority.IsValid() {
		return ErrInvalidPriority
	}
	_, needsParent := kind.ParentKind()
	if needsParent != (r.ParentID != nil) {
		return ErrInvalidParent
	}
	if kind != KindEpic && r.OwnerID != nil && r.ReporterID != "" && *r.OwnerID == r.ReporterID {
		return ErrOwnerIsReporter
	}
	return nil
}

// UpdateWorkItemRequest is a partial update; nil fields are left unchanged.
type UpdateWorkItemRequest struct {
	Title          *string    `json:"title,omitempty" validate:"omitnil,min=1,max=200,singleline"`
	Description    *string    `json:"description,omitempty"`
	Status         *Status    `json:"status,omitempty"`
	Priority       *Priority  `json:"priority,omitempty"`
	OwnerID        *string    `json:"owner_id,omitempty" validate:"omitempty,uuid"`
	ReporterID     *string    `json:"reporter_id,omitempty" validate:"omitnil,uuid"`
	StoryPoints    *int       `json:"story_points,omitempty" validate:"omitempty,min=0"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty" validate:"omitempty,min=0"`
	ActualHours    *float64   `json:"actual_hours,omitempty" validate:"omitempty,min=0"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	DueAt          *time.Time `json:"due_at,omitempty"`
}

func (r *UpdateWorkItemRequest) Validate(kind Kind) error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if r.Status != nil && !kind.ValidStatus(*r.Status) {
		return ErrInvalidStatus
	}
	if r.Priority != nil && !r.Priority.IsValid() {
		return ErrInvalidPriority
	}
	return nil
}

// Apply copies the set fields onto item. CompletedAt follows the status:
// it is stamped when an item becomes DONE and cleared when it leaves DONE.
func (r *UpdateWorkItemRequest) Apply(item *WorkItem, now time.Time) error {
	if r.Title != nil {
		item.Title = *r.Title
	}
	if r.Description != nil {
		item.Description = *r.Description
	}
	if r.Priority != nil {
		item.Priority = *r.Priority
	}
	if r.OwnerID != nil {
		owner := *r.OwnerID
		item.OwnerID = &owner
	}
	if r.ReporterID != nil {
		item.ReporterID = *r.ReporterID
	}
	if r.StoryPoints != nil {
		item.StoryPoints = r.StoryPoints
	}
	if r.EstimatedHours != nil {
		item.EstimatedHours = r.EstimatedHours
	}
	if r.ActualHours != nil {
		item.ActualHours = r.ActualHours
	}
	if r.StartDate != nil {
		item.StartDate = r.StartDate
	}
	if r.DueAt != nil {
		item.DueAt = r.DueAt
	}
	if r.Status != nil && *r.Status != item.Status {
		item.Status = *r.Status
		if item.Status == StatusDone {
			done := now
			item.CompletedAt = &done
		} else {
			item.CompletedAt = nil
		}
	}
	if item.Kind != KindEpic && item.OwnerID != nil && item.ReporterID != "" && *item.OwnerID == item.ReporterID {
		return ErrOwnerIsReporter
	}
	item.UpdatedAt = now
	return nil
}
