package store

import (
	"context"

	"favsync/internal/domain"
)

// Page is one page of a task listing, ordered by created_at descending.
type Page struct {
	Items    []domain.Task `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// Store is the durable task table. All mutations are atomic per row, keyed by
// the unique task_key; the unique constraint is the source of truth for
// deduplication, never a prior existence check.
type Store interface {
	// Create inserts a new PENDING task. A row with the same task_key makes it
	// fail with domain.ErrDuplicateTask.
	Create(ctx context.Context, taskType, taskKey, payload string) (*domain.Task, error)

	GetByKey(ctx context.Context, taskKey string) (*domain.Task, error)
	GetByID(ctx context.Context, id int64) (*domain.Task, error)

	// UpdateStatus transitions a task and keeps the completed_at/error_message
	// invariants: COMPLETED sets completed_at and clears error_message; FAILED
	// sets error_message, clears completed_at and consumes one retry; any other
	// status clears both.
	UpdateStatus(ctx context.Context, taskKey, status, errMsg string) (*domain.Task, error)

	// UpdatePayload overwrites the payload and optionally forces the task back
	// to PENDING, clearing error_message.
	UpdatePayload(ctx context.Context, taskKey, payload string, resetToPending bool) (*domain.Task, error)

	// ClaimPending atomically moves a PENDING task to EXECUTING. Losing the
	// race returns domain.ErrTaskAlreadyClaimed.
	ClaimPending(ctx context.Context, taskKey string) (*domain.Task, error)

	// ListPending returns PENDING tasks oldest first. limit <= 0 means all.
	ListPending(ctx context.Context, limit int) ([]domain.Task, error)

	// Stats returns per-status counts with every status present.
	Stats(ctx context.Context) (map[string]int, error)

	Paginate(ctx context.Context, page, pageSize int, statusFilter string) (*Page, error)

	// Delete removes a task, reporting whether a row existed.
	Delete(ctx context.Context, taskKey string) (bool, error)

	// CompletedBvids returns the item ids of COMPLETED tasks in one favorite list.
	CompletedBvids(ctx context.Context, favid string) (map[string]struct{}, error)

	// DeleteStale removes PENDING/EXECUTING rows in a favorite list whose item
	// is already in the given set, returning the deleted item ids.
	DeleteStale(ctx context.Context, favid string, bvids map[string]struct{}) ([]string, error)

	Close() error
}
