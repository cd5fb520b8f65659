package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/notifyhub/workitems/internal/domain"
	"github.com/notifyhub/workitems/internal/queue"
)

func job(id string, p domain.Priority) domain.NotificationJob {
	return domain.NotificationJob{
		ID:       id,
		Reason:   domain.ReasonStatusChanged,
		Kind:     domain.KindTask,
		EntityID: "task-" + id,
		Previous: domain.StatusTodo,
		New:      domain.StatusInProgress,
		Priority: p,
	}
}

func TestPriorityQueue_BasicEnqueueDequeue(t *testing.T) {
	q := queue.New(10)
	ctx := context.Background()

	if err := q.Enqueue(ctx, job("1", domain.PriorityMedium)); err != nil {
		t.Fatal(err)
	}

	got, ok := q.Dequeue(ctx)
	if !ok {
		t.Fatal("expected job, got nothing")
	}
	if got.Job.ID != "1" {
		t.Fatalf("expected id=1, got %s", got.Job.ID)
	}
}

// TestPriorityQueue_CriticalBeforeMedium verifies that a critical item
// enqueued after a medium one is still served first.
func TestPriorityQueue_CriticalBeforeMedium(t *testing.T) {
	q := queue.New(10)
	ctx := context.Background()

	_ = q.Enqueue(ctx, job("medium", domain.PriorityMedium))
	_ = q.Enqueue(ctx, job("critical", domain.PriorityCritical))

	first, _ := q.Dequeue(ctx)
	if first.Job.ID != "critical" {
		t.Fatalf("expected critical to be dequeued first, got %q", first.Job.ID)
	}
}

// TestPriorityQueue_ContextCancellation verifies Dequeue returns (_, false)
// when the context is cancelled while blocking.
func TestPriorityQueue_ContextCancellation(t *testing.T) {
	q := queue.New(10)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue(ctx)
		done <- ok
	}()

	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected ok=false after context cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after context cancellation")
	}
}

// TestPriorityQueue_ErrQueueFull verifies Enqueue fails fast instead of
// blocking when the tier is saturated.
func TestPriorityQueue_ErrQueueFull(t *testing.T) {
	q := queue.New(2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(ctx, job("x", domain.PriorityLow)); err != nil {
			t.Fatalf("unexpected error filling queue: %v", err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(ctx, job("overflow", domain.PriorityLow)) }()

	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrQueueFull) {
			t.Fatalf("expected ErrQueueFull, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full tier")
	}

	// Other tiers are unaffected.
	if err := q.Enqueue(ctx, job("h", domain.PriorityHigh)); err != nil {
		t.Fatalf("expected high tier to accept, got %v", err)
	}
}

func TestPriorityQueue_UnknownPriority(t *testing.T) {
	q := queue.New(2)
	if err := q.Enqueue(context.Background(), job("x", "URGENT")); err == nil {
		t.Fatal("expected error for unknown priority")
	}
}

// TestPriorityQueue_ConcurrentEnqueueDequeue verifies there are no races
// when multiple goroutines enqueue and dequeue simultaneously.
func TestPriorityQueue_ConcurrentEnqueueDequeue(t *testing.T) {
	q := queue.New(1000)

	const producers = 5
	const itemsPerProducer = 100
	const total = producers * itemsPerProducer

	received := make(chan struct{}, total)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var consumerDone sync.WaitGroup
	consumerDone.Add(1)
	go func() {
		defer consumerDone.Done()
		for {
			_, ok := q.Dequeue(ctx)
			if !ok {
				return
			}
			received <- struct{}{}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < itemsPerProducer; j++ {
				_ = q.Enqueue(ctx, job("id", domain.PriorityMedium))
			}
		}()
	}
	wg.Wait()

	for i := 0; i < total; i++ {
		select {
		case <-received:
		case <-ctx.Done():
			t.Fatalf("timeout: only received %d/%d items", i, total)
		}
	}
	cancel()
	consumerDone.Wait()
}

func TestPriorityQueue_Depths(t *testing.T) {
	q := queue.New(10)
	ctx := context.Background()

	_ = q.Enqueue(ctx, job("c", domain.PriorityCritical))
	_ = q.Enqueue(ctx, job("h", domain.PriorityHigh))
	_ = q.Enqueue(ctx, job("m", domain.PriorityMedium))
	_ = q.Enqueue(ctx, job("l", domain.PriorityLow))

	high, normal, low := q.Depths()
	if high != 2 || normal != 1 || low != 1 {
		t.Fatalf("unexpected depths: high=%d normal=%d low=%d", high, normal, low)
	}
	if total, _ := q.Depth(ctx); total != 4 {
		t.Fatalf("expected total depth 4, got %d", total)
	}
}
