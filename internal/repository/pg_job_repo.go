package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/notifyhub/workitems/internal/domain"
)

type pgJobRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgJobRepository returns a JobRepository backed by PostgreSQL.
// Retry rows survive restarts, so scheduled retries are not lost with the
// in-memory queue.
func NewPgJobRepository(pool *pgxpool.Pool, logger *zap.Logger) JobRepository {
	return &pgJobRepository{pool: pool, logger: logger}
}

func (r *pgJobRepository) ScheduleRetry(ctx context.Context, job domain.NotificationJob, nextAttempt time.Time, errMsg string) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO notification_retries (job_id, payload, attempt, next_attempt_at, last_error)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id) DO UPDATE
		SET payload = EXCLUDED.payload,
		    attempt = EXCLUDED.attempt,
		    next_attempt_at = EXCLUDED.next_attempt_at,
		    last_error = EXCLUDED.last_error`,
		job.ID, payload, job.Attempt, nextAttempt, errMsg)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return nil
}

// ClaimDueRetries deletes due rows and returns their payloads in one
// statement. SKIP LOCKED lets several processes poll without claiming the
// same row twice.
func (r *pgJobRepository) ClaimDueRetries(ctx context.Context, now time.Time, limit int) ([]domain.NotificationJob, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM notification_retries
		WHERE job_id IN (
			SELECT job_id FROM notification_retries
			WHERE next_attempt_at <= $1
			ORDER BY next_attempt_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING job_id, payload`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due retries: %w", err)
	}
	defer rows.Close()

	var claimed []claimedRow
	for rows.Next() {
		var c claimedRow
		if err := rows.Scan(&c.jobID, &c.payload); err != nil {
			return nil, err
		}
		claimed = append(claimed, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return decodeClaimed(claimed, r.logger), nil
}

type claimedRow struct {
	jobID   string
	payload []byte
}

// decodeClaimed decodes claimed retry rows. The rows are already deleted,
// so one bad payload is logged and skipped rather than failing the batch.
func decodeClaimed(rows []claimedRow, logger *zap.Logger) []domain.NotificationJob {
	jobs := make([]domain.NotificationJob, 0, len(rows))
	for _, row := range rows {
		var job domain.NotificationJob
		if err := json.Unmarshal(row.payload, &job); err != nil {
			logger.Error("dropping undecodable retry",
				zap.String("job_id", row.jobID),
				zap.ByteString("payload", row.payload),
				zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}

func (r *pgJobRepository) DeadLetter(ctx context.Context, dl domain.DeadLetter) error {
	payload, err := json.Marshal(dl.Job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO notification_dead_letters (id, job_id, payload, attempts, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		dl.ID, dl.Job.ID, payload, dl.Attempts, dl.LastError, dl.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

func (r *pgJobRepository) ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, payload, attempts, last_error, created_at
		FROM notification_dead_letters
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var result []domain.DeadLetter
	for rows.Next() {
		var (
			dl      domain.DeadLetter
			payload []byte
		)
		if err := rows.Scan(&dl.ID, &payload, &dl.Attempts, &dl.LastError, &dl.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &dl.Job); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedJob, err)
		}
		result = append(result, dl)
	}
	return result, rows.Err()
}
