package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"favsync/internal/domain"
)

// MemoryStore is an in-process Store. It backs the "memory" database driver
// and the engine tests. Semantics match PostgresStore, including the unique
// key constraint and the atomic PENDING->EXECUTING claim.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	byKey  map[string]*domain.Task
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		byKey:  make(map[string]*domain.Task),
	}
}

func (s *MemoryStore) Create(_ context.Context, taskType, taskKey, payload string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byKey[taskKey]; exists {
		return nil, domain.ErrDuplicateTask
	}

	now := time.Now()
	task := &domain.Task{
		ID:        s.nextID,
		TaskType:  taskType,
		TaskKey:   taskKey,
		Payload:   payload,
		Status:    domain.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.nextID++
	s.byKey[taskKey] = task

	copied := *task
	return &copied, nil
}

func (s *MemoryStore) GetByKey(_ context.Context, taskKey string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.byKey[taskKey]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}

	copied := *task
	return &copied, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id int64) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.byKey {
		if task.ID == id {
			copied := *task
			return &copied, nil
		}
	}

	return nil, domain.ErrTaskNotFound
}

func (s *MemoryStore) UpdateStatus(_ context.Context, taskKey, status, errMsg string) (*domain.Task, error) {
	if !domain.ValidStatus(status) {
		return nil, domain.ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.byKey[taskKey]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}

	task.Status = status
	task.UpdatedAt = time.Now()

	switch status {
	case domain.TaskStatusCompleted:
		now := time.Now()
		task.CompletedAt = &now
		task.ErrorMessage = nil
	case domain.TaskStatusFailed:
		msg := errMsg
		task.ErrorMessage = &msg
		task.CompletedAt = nil
		task.RetryCount++
	default:
		task.CompletedAt = nil
		task.ErrorMessage = nil
	}

	copied := *task
	return &copied, nil
}

func (s *MemoryStore) UpdatePayload(_ context.Context, taskKey, payload string, resetToPending bool) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.byKey[taskKey]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}

	task.Payload = payload
	task.UpdatedAt = time.Now()
	if resetToPending {
		task.Status = domain.TaskStatusPending
		task.ErrorMessage = nil
		task.CompletedAt = nil
	}

	copied := *task
	return &copied, nil
}

func (s *MemoryStore) ClaimPending(_ context.Context, taskKey string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.byKey[taskKey]
	if !ok || task.Status != domain.TaskStatusPending {
		return nil, domain.ErrTaskAlreadyClaimed
	}

	task.Status = domain.TaskStatusExecuting
	task.UpdatedAt = time.Now()

	copied := *task
	return &copied, nil
}

func (s *MemoryStore) ListPending(_ context.Context, limit int) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []domain.Task
	for _, task := range s.byKey {
		if task.Status == domain.TaskStatusPending {
			tasks = append(tasks, *task)
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}

	return tasks, nil
}

func (s *MemoryStore) Stats(_ context.Context) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]int, len(domain.AllStatuses))
	for _, status := range domain.AllStatuses {
		stats[status] = 0
	}
	for _, task := range s.byKey {
		stats[task.Status]++
	}

	return stats, nil
}

func (s *MemoryStore) Paginate(_ context.Context, page, pageSize int, statusFilter string) (*Page, error) {
	if page < 1 {
		page = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []domain.Task
	for _, task := range s.byKey {
		if statusFilter == "" || task.Status == statusFilter {
			tasks = append(tasks, *task)
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID > tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	total := len(tasks)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &Page{
		Items:    tasks[start:end],
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (s *MemoryStore) Delete(_ context.Context, taskKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byKey[taskKey]; !ok {
		return false, nil
	}

	delete(s.byKey, taskKey)
	return true, nil
}

func (s *MemoryStore) CompletedBvids(_ context.Context, favid string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[string]struct{})
	for _, task := range s.byKey {
		if task.TaskType != domain.TaskTypeMediaDownload || task.Status != domain.TaskStatusCompleted {
			continue
		}
		bvid, taskFavid, err := domain.ParseTaskKey(task.TaskKey)
		if err != nil {
			continue
		}
		if taskFavid == favid {
			set[bvid] = struct{}{}
		}
	}

	return set, nil
}

func (s *MemoryStore) DeleteStale(_ context.Context, favid string, bvids map[string]struct{}) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted []string
	for key, task := range s.byKey {
		if task.TaskType != domain.TaskTypeMediaDownload {
			continue
		}
		if task.Status != domain.TaskStatusPending && task.Status != domain.TaskStatusExecuting {
			continue
		}
		bvid, taskFavid, err := domain.ParseTaskKey(task.TaskKey)
		if err != nil {
			continue
		}
		if taskFavid != favid {
			continue
		}
		if _, ok := bvids[bvid]; ok {
			delete(s.byKey, key)
			deleted = append(deleted, bvid)
		}
	}

	return deleted, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
