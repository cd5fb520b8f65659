package queue

import (
	"context"

	"github.com/notifyhub/workitems/internal/domain"
)

// Queue is the at-least-once channel between the request path and the
// notification workers.
//
// Enqueue must not block beyond the caller's context; a full or
// unreachable queue is reported as an error for the caller to log and drop.
// Dequeue blocks until a job is available and returns false once ctx is
// cancelled. A dequeued job stays owned by the backend until Ack.
type Queue interface {
	Enqueue(ctx context.Context, job domain.NotificationJob) error
	Dequeue(ctx context.Context) (Delivery, bool)
	Ack(ctx context.Context, d Delivery) error
	Depth(ctx context.Context) (int, error)
}

// Delivery is one dequeued job. Receipt is backend-specific and opaque to
// callers; it identifies the in-flight copy to Ack.
type Delivery struct {
	Job     domain.NotificationJob
	Receipt string
}
