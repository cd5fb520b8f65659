package queue

import (
	"context"
	"fmt"

	"github.com/notifyhub/workitems/internal/domain"
)

// PriorityQueue is the in-memory Queue. It dispatches jobs to one of three
// buffered channels by the work item's priority:
//
//	high:   CRITICAL and HIGH items
//	normal: MEDIUM items
//	low:    LOW items
//
// Workers dequeue via the double-select pattern, so high-tier jobs are
// served before normal or low ones while normal and low compete fairly.
// Jobs are lost on restart; retries and dead letters live in the
// JobRepository, not here.
type PriorityQueue struct {
	high   chan domain.NotificationJob
	normal chan domain.NotificationJob
	low    chan domain.NotificationJob
}

// New creates a queue whose tiers each buffer up to capacity jobs.
func New(capacity int) *PriorityQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &PriorityQueue{
		high:   make(chan domain.NotificationJob, capacity),
		normal: make(chan domain.NotificationJob, capacity),
		low:    make(chan domain.NotificationJob, capacity),
	}
}

// Enqueue places a job on its priority tier. It never blocks: if the tier
// is full, ErrQueueFull is returned immediately.
func (q *PriorityQueue) Enqueue(_ context.Context, job domain.NotificationJob) error {
	tier, err := q.tier(job.Priority)
	if err != nil {
		return err
	}
	select {
	case tier <- job:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

func (q *PriorityQueue) tier(p domain.Priority) (chan domain.NotificationJob, error) {
	switch p {
	case domain.PriorityCritical, domain.PriorityHigh:
		return q.high, nil
	case domain.PriorityMedium, "":
		return q.normal, nil
	case domain.PriorityLow:
		return q.low, nil
	default:
		return nil, fmt.Errorf("unknown priority %q", p)
	}
}

// Dequeue blocks until a job is available or ctx is cancelled.
//
// Priority guarantee uses a double select:
//  1. A non-blocking select checks the high tier first.
//  2. Only when high is empty does the goroutine enter a fair blocking
//     select across all three tiers plus the done signal.
//
// Returns (Delivery{}, false) when ctx is cancelled.
func (q *PriorityQueue) Dequeue(ctx context.Context) (Delivery, bool) {
	select {
	case job := <-q.high:
		return Delivery{Job: job}, true
	default:
	}

	select {
	case job := <-q.high:
		return Delivery{Job: job}, true
	case job := <-q.normal:
		return Delivery{Job: job}, true
	case job := <-q.low:
		return Delivery{Job: job}, true
	case <-ctx.Done():
		return Delivery{}, false
	}
}

// Ack is a no-op: a job leaves the channel when it is dequeued.
func (q *PriorityQueue) Ack(context.Context, Delivery) error { return nil }

func (q *PriorityQueue) Depth(context.Context) (int, error) {
	high, normal, low := q.Depths()
	return high + normal + low, nil
}

// Depths returns the current number of jobs waiting in each tier.
func (q *PriorityQueue) Depths() (high, normal, low int) {
	return len(q.high), len(q.normal), len(q.low)
}

var _ Queue = (*PriorityQueue)(nil)
