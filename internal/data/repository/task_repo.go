package repository

import (
	"context"
	"fmt"
	"time"

	"isp-portal/internal/data/entity"
	"isp-portal/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// TaskRepository is the outbox queue drained by the background worker.
type TaskRepository interface {
	// Enqueue returns false when a task with the same dedupe key exists.
	Enqueue(ctx context.Context, t *entity.Task) (bool, error)
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*entity.Task, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	Reschedule(ctx context.Context, id uuid.UUID, attempts int, runAt time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string) error

	// Admin queries
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Task, error)
	List(ctx context.Context, status string, limit, offset int) ([]*entity.Task, error)
	Count(ctx context.Context, status string) (int64, error)
	Requeue(ctx context.Context, id uuid.UUID) (bool, error)
}

type taskRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewTaskRepository(db database.Querier, log *zap.Logger) TaskRepository {
	return &taskRepository{
		db:  db,
		log: log.With(zap.String("repository", "task")),
	}
}

const taskColumns = `id, task_type, dedupe_key, payload, status, attempts, max_attempts, run_at, locked_until, last_error, created_at, updated_at`

func scanTask(row pgx.Row) (*entity.Task, error) {
	var (
		t       entity.Task
		payload []byte
	)
	err := row.Scan(
		&t.ID,
		&t.Type,
		&t.DedupeKey,
		&payload,
		&t.Status,
		&t.Attempts,
		&t.MaxAttempts,
		&t.RunAt,
		&t.LockedUntil,
		&t.LastError,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	t.Payload = payload
	return &t, err
}

func (r *taskRepository) Enqueue(ctx context.Context, t *entity.Task) (bool, error) {
	query := `
		INSERT INTO tasks (id, task_type, dedupe_key, payload, status, attempts, max_attempts, run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'PENDING', 0, $5, $6, $7, $7)
		ON CONFLICT (dedupe_key) DO NOTHING
	`

	result, err := r.db.Exec(ctx, query,
		t.ID,
		t.Type,
		t.DedupeKey,
		[]byte(t.Payload),
		t.MaxAttempts,
		t.RunAt,
		t.CreatedAt,
	)

	if err != nil {
		r.log.Error("Failed to enqueue task",
			zap.Error(err),
			zap.String("task_type", string(t.Type)),
			zap.String("dedupe_key", t.DedupeKey),
		)
		return false, fmt.Errorf("enqueue task %s: %w", t.DedupeKey, err)
	}

	return result.RowsAffected() > 0, nil
}

// ClaimDue leases up to limit due tasks. Rows locked by another worker are
// skipped; RUNNING rows whose lease lapsed are picked up again.
func (r *taskRepository) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*entity.Task, error) {
	query := `
		UPDATE tasks
		SET status = 'RUNNING', locked_until = $2, updated_at = $1
		WHERE id IN (
			SELECT id FROM tasks
			WHERE (status = 'PENDING' AND run_at <= $1)
			   OR (status = 'RUNNING' AND locked_until < $1)
			ORDER BY run_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskColumns

	rows, err := r.db.Query(ctx, query, now, now.Add(lease), limit)
	if err != nil {
		r.log.Error("Failed to claim tasks", zap.Error(err))
		return nil, fmt.Errorf("claim due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*entity.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			r.log.Error("Failed to scan task row", zap.Error(err))
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

func (r *taskRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE tasks SET status = 'DONE', locked_until = NULL, last_error = NULL, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		r.log.Error("Failed to mark task done",
			zap.Error(err),
			zap.String("task_id", id.String()),
		)
		return fmt.Errorf("mark task %s done: %w", id.String(), err)
	}

	return nil
}

func (r *taskRepository) Reschedule(ctx context.Context, id uuid.UUID, attempts int, runAt time.Time, lastErr string) error {
	query := `
		UPDATE tasks
		SET status = 'PENDING', attempts = $2, run_at = $3, last_error = $4, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.Exec(ctx, query, id, attempts, runAt, lastErr); err != nil {
		r.log.Error("Failed to reschedule task",
			zap.Error(err),
			zap.String("task_id", id.String()),
		)
		return fmt.Errorf("reschedule task %s: %w", id.String(), err)
	}

	return nil
}

func (r *taskRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string) error {
	query := `
		UPDATE tasks
		SET status = 'FAILED', attempts = $2, last_error = $3, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.Exec(ctx, query, id, attempts, lastErr); err != nil {
		r.log.Error("Failed to mark task failed",
			zap.Error(err),
			zap.String("task_id", id.String()),
		)
		return fmt.Errorf("mark task %s failed: %w", id.String(), err)
	}

	return nil
}

func (r *taskRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	t, err := scanTask(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find task",
			zap.Error(err),
			zap.String("task_id", id.String()),
		)
		return nil, fmt.Errorf("find task %s: %w", id.String(), err)
	}

	return t, nil
}

func (r *taskRepository) List(ctx context.Context, status string, limit, offset int) ([]*entity.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE ($1 = '' OR status = $1)
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, status, limit, offset)
	if err != nil {
		r.log.Error("Failed to list tasks",
			zap.Error(err),
			zap.String("status", status),
		)
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*entity.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

func (r *taskRepository) Count(ctx context.Context, status string) (int64, error) {
	query := `SELECT COUNT(*) FROM tasks WHERE ($1 = '' OR status = $1)`

	var count int64
	if err := r.db.QueryRow(ctx, query, status).Scan(&count); err != nil {
		r.log.Error("Failed to count tasks", zap.Error(err))
		return 0, fmt.Errorf("count tasks: %w", err)
	}

	return count, nil
}

// Requeue puts a dead task back in line with a fresh attempt budget.
func (r *taskRepository) Requeue(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE tasks
		SET status = 'PENDING', attempts = 0, run_at = NOW(), locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'FAILED'
	`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.log.Error("Failed to requeue task",
			zap.Error(err),
			zap.String("task_id", id.String()),
		)
		return false, fmt.Errorf("requeue task %s: %w", id.String(), err)
	}

	return result.RowsAffected() > 0, nil
}
