package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/workitems/internal/domain"
)

const workItemColumns = `id, kind, title, description, status, priority,
       owner_id, reporter_id, parent_id, story_points, estimated_hours,
       actual_hours, start_date, due_at, completed_at, created_at, updated_at`

type pgWorkItemRepository struct {
	pool *pgxpool.Pool
}

// NewPgWorkItemRepository returns a WorkItemRepository backed by PostgreSQL.
func NewPgWorkItemRepository(pool *pgxpool.Pool) WorkItemRepository {
	return &pgWorkItemRepository{pool: pool}
}

func (r *pgWorkItemRepository) Create(ctx context.Context, item *domain.WorkItem) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO work_items
			(id, kind, title, description, status, priority, owner_id, reporter_id,
			 parent_id, story_points, estimated_hours, actual_hours, start_date,
			 due_at, completed_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		item.ID, item.Kind, item.Title, item.Description, item.Status, item.Priority,
		item.OwnerID, nullString(item.ReporterID), item.ParentID, item.StoryPoints,
		item.EstimatedHours, item.ActualHours, item.StartDate, item.DueAt,
		item.CompletedAt, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "work_items_parent_id_fkey") {
			return domain.ErrInvalidParent
		}
		return fmt.Errorf("insert work item: %w", err)
	}
	return nil
}

func (r *pgWorkItemRepository) GetByID(ctx context.Context, kind domain.Kind, id string) (*domain.WorkItem, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE id = $1 AND kind = $2`, id, kind)

	item, err := scanWorkItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return item, err
}

// Update holds the row lock from the prior-status read through the commit,
// so concurrent writers to the same item serialize and each one observes
// the other's committed status as its prior.
func (r *pgWorkItemRepository) Update(ctx context.Context, kind domain.Kind, id string, mutate MutateFunc) (*domain.WorkItem, domain.WriteResult, error) {
	res := domain.WriteResult{Kind: kind, ID: id}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, res, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	row := tx.QueryRow(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE id = $1 AND kind = $2 FOR UPDATE`, id, kind)
	item, err := scanWorkItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, res, domain.ErrNotFound
	}
	if err != nil {
		return nil, res, fmt.Errorf("lock work item: %w", err)
	}
	res.Existed = true
	res.Prior = item.Status

	if err := mutate(item); err != nil {
		return nil, res, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE work_items
		SET title = $1, description = $2, status = $3, priority = $4,
		    owner_id = $5, reporter_id = $6, story_points = $7,
		    estimated_hours = $8, actual_hours = $9, start_date = $10,
		    due_at = $11, completed_at = $12, updated_at = $13
		WHERE id = $14
		RETURNING status, priority`,
		item.Title, item.Description, item.Status, item.Priority,
		item.OwnerID, nullString(item.ReporterID), item.StoryPoints,
		item.EstimatedHours, item.ActualHours, item.StartDate,
		item.DueAt, item.CompletedAt, item.UpdatedAt, id,
	).Scan(&res.Current, &res.Priority)
	if err != nil {
		return nil, res, fmt.Errorf("update work item: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, res, fmt.Errorf("commit work item update: %w", err)
	}
	item.Status = res.Current
	return item, res, nil
}

func (r *pgWorkItemRepository) Delete(ctx context.Context, kind domain.Kind, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM work_items WHERE id = $1 AND kind = $2`, id, kind)
	if err != nil {
		return fmt.Errorf("delete work item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgWorkItemRepository) List(ctx context.Context, f domain.ListFilter) ([]*domain.WorkItem, error) {
	where, args := buildListWhere(f)

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM work_items%s ORDER BY created_at DESC LIMIT $%d`,
		workItemColumns, where, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	defer rows.Close()
	return scanWorkItems(rows)
}

func (r *pgWorkItemRepository) ChildStatuses(ctx context.Context, parentID string) ([]domain.Status, error) {
	return r.statuses(ctx, `SELECT status FROM work_items WHERE parent_id = $1`, parentID)
}

func (r *pgWorkItemRepository) Statuses(ctx context.Context, kind domain.Kind) ([]domain.Status, error) {
	return r.statuses(ctx, `SELECT status FROM work_items WHERE kind = $1`, kind)
}

func (r *pgWorkItemRepository) FindOverdue(ctx context.Context, kind domain.Kind, now time.Time, limit int) ([]*domain.WorkItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+workItemColumns+`
		FROM work_items
		WHERE kind = $1
		  AND due_at IS NOT NULL
		  AND due_at < $2
		  AND status <> 'DONE'
		ORDER BY due_at ASC
		LIMIT $3`, kind, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find overdue: %w", err)
	}
	defer rows.Close()
	return scanWorkItems(rows)
}

func (r *pgWorkItemRepository) statuses(ctx context.Context, query string, arg any) ([]domain.Status, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	defer rows.Close()

	var result []domain.Status
	for rows.Next() {
		var s domain.Status
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// ---- helpers ----

// scanWorkItem reads a single work item row from any pgx row type.
func scanWorkItem(row pgx.Row) (*domain.WorkItem, error) {
	var (
		item     domain.WorkItem
		reporter *string
	)
	err := row.Scan(
		&item.ID, &item.Kind, &item.Title, &item.Description, &item.Status,
		&item.Priority, &item.OwnerID, &reporter, &item.ParentID,
		&item.StoryPoints, &item.EstimatedHours, &item.ActualHours,
		&item.StartDate, &item.DueAt, &item.CompletedAt,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reporter != nil {
		item.ReporterID = *reporter
	}
	return &item, nil
}

func scanWorkItems(rows pgx.Rows) ([]*domain.WorkItem, error) {
	var result []*domain.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// buildListWhere builds a parameterised WHERE clause from a ListFilter.
func buildListWhere(f domain.ListFilter) (string, []any) {
	var conditions []string
	var args []any

	add := func(condition string, val any) {
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if f.Kind != "" {
		add("kind = $%d", f.Kind)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.ParentID != nil {
		add("parent_id = $%d", *f.ParentID)
	}
	if f.OwnerID != nil {
		add("owner_id = $%d", *f.OwnerID)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
