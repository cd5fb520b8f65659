package domain

import (
	"fmt"
	"time"
)

// StatusChangeEvent is produced once per detected status transition.
// It lives only as long as the queue holds the job built from it.
type StatusChangeEvent struct {
	Kind       Kind      `json:"kind"`
	EntityID   string    `json:"entity_id"`
	Previous   Status    `json:"previous"`
	New        Status    `json:"new"`
	DetectedAt time.Time `json:"detected_at"`
}

// Reason tells the worker which message to render for a job.
type Reason string

const (
	ReasonStatusChanged   Reason = "status_changed"
	ReasonOverdueReminder Reason = "overdue_reminder"
)

// NotificationJob is the queue payload.
//
// Seq increases monotonically per producer process and exists for log
// correlation only; it implies no ordering across kinds or entities.
// Attempt counts delivery attempts already made for this job.
type NotificationJob struct {
	ID         string    `json:"id"`
	Seq        int64     `json:"seq"`
	Reason     Reason    `json:"reason"`
	Kind       Kind      `json:"kind"`
	EntityID   string    `json:"entity_id"`
	Previous   Status    `json:"previous"`
	New        Status    `json:"new"`
	Priority   Priority  `json:"priority"`
	DetectedAt time.Time `json:"detected_at"`
	Attempt    int       `json:"attempt"`
}

// Validate reports ErrMalformedJob for payloads no worker can act on.
func (j NotificationJob) Validate() error {
	if j.EntityID == "" {
		return fmt.Errorf("%w: empty entity id", ErrMalformedJob)
	}
	if !j.Kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedJob, j.Kind)
	}
	switch j.Reason {
	case ReasonStatusChanged:
		if !j.Kind.ValidStatus(j.Previous) || !j.Kind.ValidStatus(j.New) {
			return fmt.Errorf("%w: status %q -> %q not valid for %s", ErrMalformedJob, j.Previous, j.New, j.Kind)
		}
	case ReasonOverdueReminder:
	default:
		return fmt.Errorf("%w: unknown reason %q", ErrMalformedJob, j.Reason)
	}
	return nil
}

// DeadLetter records a job that exhausted its delivery attempts.
type DeadLetter struct {
	ID        string          `json:"id"`
	Job       NotificationJob `json:"job"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error"`
	CreatedAt time.Time       `json:"created_at"`
}
