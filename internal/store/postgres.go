package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"favsync/internal/domain"
	"favsync/shared/postgresql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id            BIGSERIAL PRIMARY KEY,
	task_type     VARCHAR(50)  NOT NULL,
	task_key      VARCHAR(500) NOT NULL,
	payload       TEXT         NOT NULL,
	status        VARCHAR(20)  NOT NULL DEFAULT 'PENDING',
	retry_count   INT          NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
	completed_at  TIMESTAMPTZ,
	error_message TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS ix_tasks_task_key ON tasks (task_key);
CREATE INDEX IF NOT EXISTS ix_tasks_task_type ON tasks (task_type);
CREATE INDEX IF NOT EXISTS ix_tasks_status ON tasks (status);
CREATE INDEX IF NOT EXISTS ix_tasks_created_at ON tasks (created_at);
`

const taskColumns = `id, task_type, task_key, payload, status, retry_count, created_at, updated_at, completed_at, error_message`

// PostgresStore is the production Store backed by the tasks table.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore creates the store and ensures the schema exists. A failure
// here is fatal for the service.
func NewPostgresStore(client *postgresql.Client, logger *slog.Logger) (*PostgresStore, error) {
	db := client.GetDB()
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize tasks schema: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

func (s *PostgresStore) Create(ctx context.Context, taskType, taskKey, payload string) (*domain.Task, error) {
	query := `
		INSERT INTO tasks (task_type, task_key, payload, status)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + taskColumns

	var task domain.Task
	err := s.db.GetContext(ctx, &task, query, taskType, taskKey, payload, domain.TaskStatusPending)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return nil, domain.ErrDuplicateTask
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Debug("Task created",
		slog.String("task_key", taskKey),
		slog.String("task_type", taskType),
	)

	return &task, nil
}

func (s *PostgresStore) GetByKey(ctx context.Context, taskKey string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE task_key = $1`

	var task domain.Task
	if err := s.db.GetContext(ctx, &task, query, taskKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return &task, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	var task domain.Task
	if err := s.db.GetContext(ctx, &task, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return &task, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, taskKey, status, errMsg string) (*domain.Task, error) {
	if !domain.ValidStatus(status) {
		return nil, domain.ErrInvalidStatus
	}

	query := `
		UPDATE tasks
		SET status = $1,
			completed_at = CASE WHEN $1 = $2 THEN NOW() ELSE NULL END,
			error_message = CASE WHEN $1 = $3 THEN $4 ELSE NULL END,
			retry_count = CASE WHEN $1 = $3 THEN retry_count + 1 ELSE retry_count END,
			updated_at = NOW()
		WHERE task_key = $5
		RETURNING ` + taskColumns

	var task domain.Task
	err := s.db.GetContext(ctx, &task, query,
		status, domain.TaskStatusCompleted, domain.TaskStatusFailed, errMsg, taskKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}

	s.logger.Info("Task status updated",
		slog.String("task_key", taskKey),
		slog.String("status", status),
	)

	return &task, nil
}

func (s *PostgresStore) UpdatePayload(ctx context.Context, taskKey, payload string, resetToPending bool) (*domain.Task, error) {
	query := `
		UPDATE tasks
		SET payload = $1,
			status = CASE WHEN $2 THEN $3 ELSE status END,
			error_message = CASE WHEN $2 THEN NULL ELSE error_message END,
			completed_at = CASE WHEN $2 THEN NULL ELSE completed_at END,
			updated_at = NOW()
		WHERE task_key = $4
		RETURNING ` + taskColumns

	var task domain.Task
	err := s.db.GetContext(ctx, &task, query, payload, resetToPending, domain.TaskStatusPending, taskKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to update task payload: %w", err)
	}

	return &task, nil
}

// ClaimPending uses a conditional UPDATE so two concurrent claimers can never
// both win; the loser sees zero rows.
func (s *PostgresStore) ClaimPending(ctx context.Context, taskKey string) (*domain.Task, error) {
	query := `
		UPDATE tasks
		SET status = $1,
			updated_at = NOW()
		WHERE task_key = $2
		  AND status = $3
		RETURNING ` + taskColumns

	var task domain.Task
	err := s.db.GetContext(ctx, &task, query,
		domain.TaskStatusExecuting, taskKey, domain.TaskStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTaskAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}

	return &task, nil
}

func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = $1
		ORDER BY created_at ASC`

	args := []interface{}{domain.TaskStatusPending}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var tasks []domain.Task
	if err := s.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list pending tasks: %w", err)
	}

	return tasks, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (map[string]int, error) {
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}{}

	query := `SELECT status, COUNT(*) AS count FROM tasks GROUP BY status`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to get task stats: %w", err)
	}

	stats := make(map[string]int, len(domain.AllStatuses))
	for _, status := range domain.AllStatuses {
		stats[status] = 0
	}
	for _, row := range rows {
		stats[row.Status] = row.Count
	}

	return stats, nil
}

func (s *PostgresStore) Paginate(ctx context.Context, page, pageSize int, statusFilter string) (*Page, error) {
	if page < 1 {
		page = 1
	}

	where := ""
	args := []interface{}{}
	if statusFilter != "" {
		where = "WHERE status = $1"
		args = append(args, statusFilter)
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM tasks %s`, where)
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	listQuery := fmt.Sprintf(`
		SELECT %s FROM tasks %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		taskColumns, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	var tasks []domain.Task
	if err := s.db.SelectContext(ctx, &tasks, listQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to paginate tasks: %w", err)
	}

	return &Page{
		Items:    tasks,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (s *PostgresStore) Delete(ctx context.Context, taskKey string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE task_key = $1`, taskKey)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

func (s *PostgresStore) CompletedBvids(ctx context.Context, favid string) (map[string]struct{}, error) {
	query := `
		SELECT task_key::jsonb->>'bvid'
		FROM tasks
		WHERE task_type = $1
		  AND status = $2
		  AND task_key::jsonb->>'favid' = $3`

	var bvids []string
	err := s.db.SelectContext(ctx, &bvids, query,
		domain.TaskTypeMediaDownload, domain.TaskStatusCompleted, favid)
	if err != nil {
		return nil, fmt.Errorf("failed to get completed items: %w", err)
	}

	set := make(map[string]struct{}, len(bvids))
	for _, bvid := range bvids {
		set[bvid] = struct{}{}
	}

	return set, nil
}

func (s *PostgresStore) DeleteStale(ctx context.Context, favid string, bvids map[string]struct{}) ([]string, error) {
	if len(bvids) == 0 {
		return nil, nil
	}

	list := make([]string, 0, len(bvids))
	for bvid := range bvids {
		list = append(list, bvid)
	}

	query := `
		DELETE FROM tasks
		WHERE task_type = $1
		  AND status IN ($2, $3)
		  AND task_key::jsonb->>'favid' = $4
		  AND task_key::jsonb->>'bvid' = ANY($5)
		RETURNING task_key::jsonb->>'bvid'`

	var deleted []string
	err := s.db.SelectContext(ctx, &deleted, query,
		domain.TaskTypeMediaDownload,
		domain.TaskStatusPending, domain.TaskStatusExecuting,
		favid, pq.Array(list))
	if err != nil {
		return nil, fmt.Errorf("failed to delete stale tasks: %w", err)
	}

	return deleted, nil
}

// Close is a no-op; the underlying pool is owned by the postgresql client.
func (s *PostgresStore) Close() error {
	return nil
}
