package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/notifyhub/workitems/internal/domain"
)

// RedisQueue is the durable Queue. Jobs are JSON documents in a Redis list.
//
// Dequeue atomically moves a job from the pending list to the processing
// list (BLMOVE); Ack removes it from processing. A worker that dies between
// the two leaves the job in processing, and Recover puts it back on
// pending at the next start. That gives at-least-once delivery; workers
// must tolerate duplicates.
type RedisQueue struct {
	client     *redis.Client
	pending    string
	processing string
	block      time.Duration
	logger     *zap.Logger
}

// NewRedisQueue creates a queue whose lists are named "<prefix>:pending"
// and "<prefix>:processing".
func NewRedisQueue(client *redis.Client, prefix string, logger *zap.Logger) *RedisQueue {
	return &RedisQueue{
		client:     client,
		pending:    prefix + ":pending",
		processing: prefix + ":processing",
		block:      time.Second,
		logger:     logger,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job domain.NotificationJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedJob, err)
	}
	if err := q.client.LPush(ctx, q.pending, payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	return nil
}

// Dequeue polls with a bounded BLMOVE so cancellation is observed within
// one block interval. Payloads that do not decode are malformed jobs: they
// are logged, removed and skipped.
func (q *RedisQueue) Dequeue(ctx context.Context) (Delivery, bool) {
	for {
		if ctx.Err() != nil {
			return Delivery{}, false
		}

		raw, err := q.client.BLMove(ctx, q.pending, q.processing, "RIGHT", "LEFT", q.block).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Delivery{}, false
			}
			q.logger.Warn("redis dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return Delivery{}, false
			case <-time.After(q.block):
			}
			continue
		}

		var job domain.NotificationJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.logger.Error("discarding malformed job",
				zap.Error(fmt.Errorf("%w: %v", domain.ErrMalformedJob, err)),
				zap.String("payload", raw))
			if err := q.client.LRem(ctx, q.processing, 1, raw).Err(); err != nil {
				q.logger.Warn("failed to remove malformed job", zap.Error(err))
			}
			continue
		}
		return Delivery{Job: job, Receipt: raw}, true
	}
}

func (q *RedisQueue) Ack(ctx context.Context, d Delivery) error {
	if err := q.client.LRem(ctx, q.processing, 1, d.Receipt).Err(); err != nil {
		return fmt.Errorf("ack job %s: %w", d.Job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Depth(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.pending).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	return int(n), nil
}

// Recover moves every job left in the processing list back to pending and
// returns how many were moved. Call it once at startup, before workers run.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.pending, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover in-flight jobs: %w", err)
		}
		moved++
	}
}

var _ Queue = (*RedisQueue)(nil)
