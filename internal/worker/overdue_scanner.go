package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/workitems/internal/domain"
	"github.com/notifyhub/workitems/internal/hierarchy"
	"github.com/notifyhub/workitems/internal/repository"
)

// Publisher stamps and enqueues jobs; *detector.Detector satisfies it.
type Publisher interface {
	NewJob(reason domain.Reason, event domain.StatusChangeEvent, priority domain.Priority) domain.NotificationJob
	Publish(ctx context.Context, job domain.NotificationJob) bool
}

// OverdueScanner periodically looks for Tasks past their due date and
// sends their owner and reporter a reminder through the normal pipeline.
type OverdueScanner struct {
	items     repository.WorkItemRepository
	pub       Publisher
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
}

func NewOverdueScanner(
	items repository.WorkItemRepository,
	pub Publisher,
	interval time.Duration,
	batchSize int,
	logger *zap.Logger,
) *OverdueScanner {
	return &OverdueScanner{items: items, pub: pub, interval: interval, batchSize: batchSize, logger: logger, now: time.Now}
}

// Run ticks every interval and publishes reminders for overdue Tasks.
// Stops cleanly when ctx is cancelled.
func (s *OverdueScanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("overdue scanner started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("overdue scanner stopping")
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan publishes one reminder per overdue Task and returns how many were
// enqueued.
func (s *OverdueScanner) Scan(ctx context.Context) int {
	now := s.now().UTC()
	items, err := s.items.FindOverdue(ctx, domain.KindTask, now, s.batchSize)
	if err != nil {
		s.logger.Error("overdue scan error", zap.Error(err))
		return 0
	}

	sent := 0
	for _, item := range items {
		if !hierarchy.IsOverdue(item, now) {
			continue
		}
		job := s.pub.NewJob(domain.ReasonOverdueReminder, domain.StatusChangeEvent{
			Kind:       item.Kind,
			EntityID:   item.ID,
			Previous:   item.Status,
			New:        item.Status,
			DetectedAt: now,
		}, item.Priority)
		if s.pub.Publish(ctx, job) {
			sent++
		}
	}

	if sent > 0 {
		s.logger.Info("enqueued overdue reminders", zap.Int("count", sent))
	}
	return sent
}
