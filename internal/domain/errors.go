package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidKind      = errors.New("invalid kind: must be Epic, UserStory or Task")
	ErrInvalidStatus    = errors.New("invalid status for this kind")
	ErrInvalidPriority  = errors.New("invalid priority: must be LOW, MEDIUM, HIGH or CRITICAL")
	ErrInvalidParent    = errors.New("parent must reference an existing item of the correct kind")
	ErrDanglingParent   = errors.New("item references a missing or mismatched parent")
	ErrOwnerIsReporter  = errors.New("reporter cannot be the same as the assigned user")
	ErrQueueFull        = errors.New("queue is at capacity")
	ErrQueueUnavailable = errors.New("notification queue unavailable")
	ErrTransport        = errors.New("mail transport error")
	ErrMalformedJob     = errors.New("malformed notification job")
	ErrUnauthorized     = errors.New("unauthorized")
)
